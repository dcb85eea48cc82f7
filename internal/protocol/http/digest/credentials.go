// Package digest implements HTTP Digest authentication (RFC 2617):
// Authorization header parsing, challenge construction, and the validation
// engine with nonce-count replay protection.
package digest

import "strings"

// scheme is the authorization scheme prefix this package understands.
const scheme = "Digest"

// Credentials are the parsed fields of a Digest Authorization header.
// Immutable once parsed; absent fields are empty strings.
type Credentials struct {
	Username string
	Realm    string
	Nonce    string
	URI      string
	QOP      string
	NC       string
	CNonce   string
	Response string
}

// ParseCredentials parses the value of an Authorization header.
//
// Returns nil and false when the header is absent, uses another scheme, or
// carries no parameters; a syntactically odd parameter list still yields
// whatever fields could be read, since validation rejects incomplete
// credentials anyway.
func ParseCredentials(header string) (*Credentials, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, false
	}

	rest, ok := cutScheme(header)
	if !ok {
		return nil, false
	}

	creds := &Credentials{}
	found := false
	for _, param := range splitParams(rest) {
		name, value, ok := strings.Cut(param, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		value = unquote(strings.TrimSpace(value))

		switch strings.ToLower(name) {
		case "username":
			creds.Username = value
		case "realm":
			creds.Realm = value
		case "nonce":
			creds.Nonce = value
		case "uri":
			creds.URI = value
		case "qop":
			creds.QOP = value
		case "nc":
			creds.NC = value
		case "cnonce":
			creds.CNonce = value
		case "response":
			creds.Response = value
		default:
			continue
		}
		found = true
	}

	if !found {
		return nil, false
	}
	return creds, true
}

// cutScheme strips the "Digest " prefix, case-insensitively.
func cutScheme(header string) (string, bool) {
	if len(header) <= len(scheme) {
		return "", false
	}
	if !strings.EqualFold(header[:len(scheme)], scheme) {
		return "", false
	}
	rest := header[len(scheme):]
	if rest[0] != ' ' && rest[0] != '\t' {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// splitParams splits a comma-separated parameter list, keeping commas that
// appear inside quoted strings.
func splitParams(s string) []string {
	var params []string
	var b strings.Builder
	inQuotes := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			b.WriteByte(c)
		case c == ',' && !inQuotes:
			params = append(params, b.String())
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	if b.Len() > 0 {
		params = append(params, b.String())
	}
	return params
}

// unquote strips surrounding double quotes if present.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
