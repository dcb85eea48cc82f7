package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticCredentials_Protection(t *testing.T) {
	creds := &StaticCredentials{
		Users:             map[string]string{"alice": "secret", "guest": ""},
		ProtectedPrefixes: []string{"/private/", "/admin"},
	}

	assert.True(t, creds.IsProtected("/private/report.pdf"))
	assert.True(t, creds.IsProtected("/admin"))
	assert.False(t, creds.IsProtected("/public/index.html"))
	assert.False(t, creds.IsProtected("/"))

	password, ok := creds.PasswordFor("alice")
	assert.True(t, ok)
	assert.Equal(t, "secret", password)

	password, ok = creds.PasswordFor("guest")
	assert.True(t, ok)
	assert.Empty(t, password)

	_, ok = creds.PasswordFor("mallory")
	assert.False(t, ok)
}

func TestDefaults(t *testing.T) {
	assert.False(t, NoProtection{}.IsProtected("/anything"))

	_, ok := NoProtection{}.PasswordFor("alice")
	assert.False(t, ok)

	_, ok = NoTLS{}.Certificates()
	assert.False(t, ok)

	_, ok = NoContent{}.Data(t.Context(), "/x")
	assert.False(t, ok)
	assert.Zero(t, NoContent{}.Size(t.Context(), "/x"))
}
