package digest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/marmos91/dhttpd/internal/logger"
	"github.com/marmos91/dhttpd/pkg/nonce"
)

// ConnState is the per-connection authentication state: the nonce the
// connection last validated against and the highest nonce-count accepted
// for it. One exists per connection; the connection owns it and no locking
// is needed since all events for a connection are serialized.
type ConnState struct {
	// Nonce is a non-owning copy of the last adopted nonce token.
	Nonce string

	// LastNC is the highest accepted nonce-count for Nonce.
	// Starts at 0; each accepted request must carry a strictly
	// greater value.
	LastNC uint64
}

// PasswordLookup resolves a username to its expected password. The second
// return value reports whether the user is known.
type PasswordLookup func(username string) (string, bool)

// Validator checks Digest credentials against a realm and a shared nonce
// registry. One validator is shared by all connections of a server.
type Validator struct {
	realm  string
	nonces nonce.Registry
}

// NewValidator creates a Validator for the given realm.
func NewValidator(realm string, nonces nonce.Registry) *Validator {
	return &Validator{realm: realm, nonces: nonces}
}

// Realm returns the protection realm presented in challenges.
func (v *Validator) Realm() string {
	return v.realm
}

// Challenge issues a fresh nonce and returns the WWW-Authenticate header
// value for a 401 response. A new nonce is registered every time,
// independent of any nonce the connection may already hold.
func (v *Validator) Challenge(ctx context.Context) (string, error) {
	token, err := v.nonces.Issue(ctx)
	if err != nil {
		return "", fmt.Errorf("issue nonce: %w", err)
	}
	return fmt.Sprintf("%s realm=%q, qop=\"auth\", nonce=%q", scheme, v.realm, token), nil
}

// Validate runs the full Digest check for one request.
//
// The method and target come from the request line; creds are the parsed
// Authorization fields (nil when the header was absent); lookup resolves
// passwords; state is the calling connection's nonce state and is mutated
// on nonce adoption and nonce-count acceptance.
//
// A user whose password is absent or empty is treated as unprotected and
// passes immediately.
//
// The nonce-count is committed as soon as it passes the monotonicity check,
// before the response hash is verified. A request whose final hash check
// fails therefore still consumes its nc. Rolling back would let an attacker
// probe hashes without burning counts, so the accept-before-verify ordering
// is kept.
func (v *Validator) Validate(ctx context.Context, method, target string, creds *Credentials, lookup PasswordLookup, state *ConnState) bool {
	if creds == nil || creds.Username == "" {
		return false
	}

	password, ok := lookup(creds.Username)
	if !ok || password == "" {
		// Empty or missing password means the resource is effectively
		// unprotected for this user.
		return true
	}

	// The digest-uri must match the request target exactly, or the
	// credentials could be replayed against a different resource.
	if creds.URI != target {
		logger.Debug("Digest uri mismatch: credentials=%q request=%q", creds.URI, target)
		return false
	}

	// A fresh connection holds no nonce, so an empty presented nonce
	// would string-equal the zero-value cache and bypass the registry.
	// Reject it before the cache comparison.
	if creds.Nonce == "" {
		logger.Debug("Digest credentials carry no nonce for user %q", creds.Username)
		return false
	}

	// Nonce check: the connection's cached nonce is accepted directly;
	// any other nonce must still be live in the registry and is adopted
	// with a reset nonce-count.
	if creds.Nonce != state.Nonce {
		if !v.nonces.Contains(ctx, creds.Nonce) {
			logger.Debug("Digest nonce unknown or expired for user %q", creds.Username)
			return false
		}
		state.Nonce = creds.Nonce
		state.LastNC = 0
	}

	// Nonce-count must strictly increase per nonce (replay protection).
	nc, err := strconv.ParseUint(creds.NC, 16, 64)
	if err != nil {
		logger.Debug("Digest nc %q not parseable: %v", creds.NC, err)
		return false
	}
	if nc <= state.LastNC {
		logger.Debug("Digest replay rejected: nc=%d last=%d", nc, state.LastNC)
		return false
	}
	state.LastNC = nc

	expected := Response(creds.Username, v.realm, password, method, creds.URI,
		creds.Nonce, creds.NC, creds.CNonce, creds.QOP)
	return expected == creds.Response
}

// Response computes the Digest response hash for the given inputs:
//
//	HA1 = MD5(username:realm:password)
//	HA2 = MD5(method:uri)
//	response = MD5(HA1:nonce:nc:cnonce:qop:HA2)
//
// Exported so clients and tests can compute valid credentials.
func Response(username, realm, password, method, uri, nonceToken, nc, cnonce, qop string) string {
	ha1 := md5Hex(username + ":" + realm + ":" + password)
	ha2 := md5Hex(method + ":" + uri)
	return md5Hex(ha1 + ":" + nonceToken + ":" + nc + ":" + cnonce + ":" + qop + ":" + ha2)
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
