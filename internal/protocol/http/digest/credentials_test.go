package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCredentials_FullHeader(t *testing.T) {
	header := `Digest username="alice", realm="dhttpd", nonce="abc123", ` +
		`uri="/secret.txt", qop=auth, nc=00000001, cnonce="deadbeef", ` +
		`response="0123456789abcdef0123456789abcdef"`

	creds, ok := ParseCredentials(header)
	require.True(t, ok)

	assert.Equal(t, "alice", creds.Username)
	assert.Equal(t, "dhttpd", creds.Realm)
	assert.Equal(t, "abc123", creds.Nonce)
	assert.Equal(t, "/secret.txt", creds.URI)
	assert.Equal(t, "auth", creds.QOP)
	assert.Equal(t, "00000001", creds.NC)
	assert.Equal(t, "deadbeef", creds.CNonce)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", creds.Response)
}

func TestParseCredentials_SchemeIsCaseInsensitive(t *testing.T) {
	creds, ok := ParseCredentials(`digest username="bob", nonce="n1"`)
	require.True(t, ok)
	assert.Equal(t, "bob", creds.Username)
}

func TestParseCredentials_QuotedCommaInValue(t *testing.T) {
	creds, ok := ParseCredentials(`Digest username="a,b", nonce="n"`)
	require.True(t, ok)
	assert.Equal(t, "a,b", creds.Username)
	assert.Equal(t, "n", creds.Nonce)
}

func TestParseCredentials_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		header string
	}{
		{"Empty", ""},
		{"BasicScheme", "Basic dXNlcjpwYXNz"},
		{"SchemeOnly", "Digest"},
		{"NoParameters", "Digest    "},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			creds, ok := ParseCredentials(tc.header)
			assert.False(t, ok)
			assert.Nil(t, creds)
		})
	}
}

func TestParseCredentials_UnknownParamsIgnored(t *testing.T) {
	creds, ok := ParseCredentials(`Digest username="carol", opaque="xyz", algorithm=MD5`)
	require.True(t, ok)
	assert.Equal(t, "carol", creds.Username)
}
