package digest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dhttpd/pkg/nonce"
)

const (
	testRealm    = "dhttpd-test"
	testUser     = "alice"
	testPassword = "opensesame"
	testTarget   = "/files/secret.txt"
)

func testLookup(username string) (string, bool) {
	if username == testUser {
		return testPassword, true
	}
	if username == "open" {
		return "", true
	}
	return "", false
}

// makeCredentials computes a fully valid credential set for the given
// nonce and nc.
func makeCredentials(nonceToken, nc string) *Credentials {
	cnonce := "0a4f113b"
	return &Credentials{
		Username: testUser,
		Realm:    testRealm,
		Nonce:    nonceToken,
		URI:      testTarget,
		QOP:      "auth",
		NC:       nc,
		CNonce:   cnonce,
		Response: Response(testUser, testRealm, testPassword, "GET", testTarget, nonceToken, nc, cnonce, "auth"),
	}
}

func newValidator(t *testing.T) (*Validator, *nonce.MemoryRegistry) {
	t.Helper()
	reg := nonce.NewMemoryRegistry(nonce.DefaultTTL)
	return NewValidator(testRealm, reg), reg
}

func issuedNonce(t *testing.T, reg *nonce.MemoryRegistry) string {
	t.Helper()
	token, err := reg.Issue(context.Background())
	require.NoError(t, err)
	return token
}

func TestValidate_ValidCredentials(t *testing.T) {
	v, reg := newValidator(t)
	token := issuedNonce(t, reg)
	state := &ConnState{}

	creds := makeCredentials(token, "00000001")
	assert.True(t, v.Validate(context.Background(), "GET", testTarget, creds, testLookup, state))

	// The registry nonce was adopted into the connection state
	assert.Equal(t, token, state.Nonce)
	assert.Equal(t, uint64(1), state.LastNC)
}

func TestValidate_AnySingleFieldPerturbationFails(t *testing.T) {
	perturb := []struct {
		name   string
		mutate func(*Credentials)
	}{
		{"Username", func(c *Credentials) { c.Username = "alicf" }},
		{"URI", func(c *Credentials) { c.URI = "/files/secret.txu" }},
		{"CNonce", func(c *Credentials) { c.CNonce = c.CNonce + "0" }},
		{"QOP", func(c *Credentials) { c.QOP = "autg" }},
		{"Response", func(c *Credentials) {
			// Flip the last hex digit
			last := c.Response[len(c.Response)-1]
			repl := "0"
			if last == '0' {
				repl = "1"
			}
			c.Response = c.Response[:len(c.Response)-1] + repl
		}},
	}

	for _, tc := range perturb {
		t.Run(tc.name, func(t *testing.T) {
			v, reg := newValidator(t)
			token := issuedNonce(t, reg)

			creds := makeCredentials(token, "00000001")
			tc.mutate(creds)

			ok := v.Validate(context.Background(), "GET", testTarget, creds, testLookup, &ConnState{})
			assert.False(t, ok)
		})
	}
}

func TestValidate_NoUsername(t *testing.T) {
	v, _ := newValidator(t)
	assert.False(t, v.Validate(context.Background(), "GET", testTarget, nil, testLookup, &ConnState{}))
	assert.False(t, v.Validate(context.Background(), "GET", testTarget, &Credentials{}, testLookup, &ConnState{}))
}

func TestValidate_EmptyPasswordMeansUnprotected(t *testing.T) {
	v, _ := newValidator(t)

	// Known user with empty password: passes without any digest math
	creds := &Credentials{Username: "open"}
	assert.True(t, v.Validate(context.Background(), "GET", testTarget, creds, testLookup, &ConnState{}))

	// Unknown user: also treated as unprotected
	creds = &Credentials{Username: "nobody"}
	assert.True(t, v.Validate(context.Background(), "GET", testTarget, creds, testLookup, &ConnState{}))
}

func TestValidate_URIMismatch(t *testing.T) {
	v, reg := newValidator(t)
	token := issuedNonce(t, reg)

	creds := makeCredentials(token, "00000001")
	ok := v.Validate(context.Background(), "GET", "/other/resource", creds, testLookup, &ConnState{})
	assert.False(t, ok)
}

func TestValidate_UnknownNonce(t *testing.T) {
	v, _ := newValidator(t)

	creds := makeCredentials("never-issued-nonce", "00000001")
	assert.False(t, v.Validate(context.Background(), "GET", testTarget, creds, testLookup, &ConnState{}))
}

func TestValidate_EmptyNonceRejected(t *testing.T) {
	// A fresh connection's cached nonce is the empty string. Credentials
	// presenting an empty nonce with an otherwise correct hash must not
	// match it; only issued nonces validate.
	v, _ := newValidator(t)

	creds := makeCredentials("", "00000001")
	state := &ConnState{}
	assert.False(t, v.Validate(context.Background(), "GET", testTarget, creds, testLookup, state))
	assert.Empty(t, state.Nonce)
	assert.Equal(t, uint64(0), state.LastNC)
}

func TestValidate_NonceCountMonotonicity(t *testing.T) {
	v, reg := newValidator(t)
	token := issuedNonce(t, reg)
	state := &ConnState{}
	ctx := context.Background()

	require.True(t, v.Validate(ctx, "GET", testTarget, makeCredentials(token, "00000001"), testLookup, state))

	// Same nc again: replay
	assert.False(t, v.Validate(ctx, "GET", testTarget, makeCredentials(token, "00000001"), testLookup, state))

	// Lower nc: replay
	assert.False(t, v.Validate(ctx, "GET", testTarget, makeCredentials(token, "00000000"), testLookup, state))

	// Exactly one greater: accepted
	assert.True(t, v.Validate(ctx, "GET", testTarget, makeCredentials(token, "00000002"), testLookup, state))

	// Gaps are fine as long as the count increases
	assert.True(t, v.Validate(ctx, "GET", testTarget, makeCredentials(token, "0000000a"), testLookup, state))
	assert.Equal(t, uint64(10), state.LastNC)
}

func TestValidate_FailedHashStillConsumesNC(t *testing.T) {
	// Accept-before-verify: a request whose response hash is wrong still
	// advances the accepted nonce-count, so the same nc cannot be retried.
	v, reg := newValidator(t)
	token := issuedNonce(t, reg)
	state := &ConnState{}
	ctx := context.Background()

	bad := makeCredentials(token, "00000003")
	bad.Response = strings.Repeat("0", 32)
	assert.False(t, v.Validate(ctx, "GET", testTarget, bad, testLookup, state))
	assert.Equal(t, uint64(3), state.LastNC)

	// Retrying the same nc with a correct hash is rejected as a replay
	assert.False(t, v.Validate(ctx, "GET", testTarget, makeCredentials(token, "00000003"), testLookup, state))

	// The next count works
	assert.True(t, v.Validate(ctx, "GET", testTarget, makeCredentials(token, "00000004"), testLookup, state))
}

func TestValidate_NonceAdoptionResetsCount(t *testing.T) {
	v, reg := newValidator(t)
	ctx := context.Background()

	first := issuedNonce(t, reg)
	state := &ConnState{}
	require.True(t, v.Validate(ctx, "GET", testTarget, makeCredentials(first, "00000005"), testLookup, state))
	assert.Equal(t, uint64(5), state.LastNC)

	// Switching to a newly issued nonce resets the count, so nc=1 passes
	second := issuedNonce(t, reg)
	require.True(t, v.Validate(ctx, "GET", testTarget, makeCredentials(second, "00000001"), testLookup, state))
	assert.Equal(t, second, state.Nonce)
	assert.Equal(t, uint64(1), state.LastNC)
}

func TestValidate_CrossConnectionNonceReuse(t *testing.T) {
	// A nonce issued while serving one connection is valid on another
	// connection as long as the registry still holds it.
	v, reg := newValidator(t)
	token := issuedNonce(t, reg)
	ctx := context.Background()

	connA := &ConnState{}
	require.True(t, v.Validate(ctx, "GET", testTarget, makeCredentials(token, "00000001"), testLookup, connA))

	connB := &ConnState{}
	assert.True(t, v.Validate(ctx, "GET", testTarget, makeCredentials(token, "00000001"), testLookup, connB))
}

func TestValidate_MalformedNC(t *testing.T) {
	v, reg := newValidator(t)
	token := issuedNonce(t, reg)

	creds := makeCredentials(token, "notahexnumber")
	assert.False(t, v.Validate(context.Background(), "GET", testTarget, creds, testLookup, &ConnState{}))
}

func TestChallenge_IssuesFreshNonce(t *testing.T) {
	v, reg := newValidator(t)
	ctx := context.Background()

	header, err := v.Challenge(ctx)
	require.NoError(t, err)

	assert.Contains(t, header, fmt.Sprintf("realm=%q", testRealm))
	assert.Contains(t, header, `qop="auth"`)

	creds, ok := ParseCredentials(header)
	require.True(t, ok)
	assert.True(t, reg.Contains(ctx, creds.Nonce))

	// Every challenge registers a distinct nonce
	second, err := v.Challenge(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, header, second)
}

func TestResponse_KnownVector(t *testing.T) {
	// RFC 2617 section 3.5 example
	got := Response("Mufasa", "testrealm@host.com", "Circle Of Life",
		"GET", "/dir/index.html",
		"dcd98b7102dd2f0e8b11d0f600bfb0c093", "00000001",
		"0a4f113b", "auth")
	assert.Equal(t, "6629fae49393a05397450978507c4ef1", got)
}
