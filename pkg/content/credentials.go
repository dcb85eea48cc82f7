package content

import (
	"crypto/tls"
	"strings"
)

// StaticCredentials is a CredentialProvider backed by a fixed user table
// and a set of protected URI prefixes. It is what cmd/dhttpd builds from
// its configuration; embedders with a real user database implement
// CredentialProvider themselves.
type StaticCredentials struct {
	// Users maps usernames to passwords. An empty password leaves that
	// user unprotected.
	Users map[string]string

	// ProtectedPrefixes lists URI prefixes requiring authentication.
	// An entry of "/" protects everything.
	ProtectedPrefixes []string
}

func (c *StaticCredentials) IsProtected(uri string) bool {
	for _, prefix := range c.ProtectedPrefixes {
		if strings.HasPrefix(uri, prefix) {
			return true
		}
	}
	return false
}

func (c *StaticCredentials) PasswordFor(username string) (string, bool) {
	password, ok := c.Users[username]
	return password, ok
}

// StaticTLSIdentity is a TLSIdentityProvider holding a fixed certificate
// set loaded at startup.
type StaticTLSIdentity struct {
	Certs []tls.Certificate
}

func (p *StaticTLSIdentity) Certificates() ([]tls.Certificate, bool) {
	return p.Certs, len(p.Certs) > 0
}
