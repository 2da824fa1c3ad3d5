package http

import (
	"errors"
	"testing"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkerbell/campus-market-chat/internal/core"
)

// stubValidator accepts exactly one token.
type stubValidator struct {
	valid    string
	identity *core.Identity
	seen     []string
}

func (v *stubValidator) Validate(token string) bool {
	v.seen = append(v.seen, token)
	return token != "" && token == v.valid
}

func (v *stubValidator) ResolveIdentity(token string) *core.Identity {
	if token != v.valid {
		return nil
	}
	return v.identity
}

func newStubAuthenticator(v *stubValidator) *ConnectionAuthenticator {
	logger := zerolog.Nop()
	return NewConnectionAuthenticator(v, &logger)
}

func TestAuthenticateSources(t *testing.T) {
	cases := []struct {
		name    string
		attrs   map[string]string
		headers []string
		wantOK  bool
	}{
		{name: "native header", headers: []string{"Authorization", "Bearer good"}, wantOK: true},
		{name: "lowercase native header", headers: []string{"authorization", "Bearer good"}, wantOK: true},
		{name: "raw token without scheme", headers: []string{"Authorization", "good"}, wantOK: true},
		{name: "handshake attribute", attrs: map[string]string{AttrAuthorization: "Bearer good"}, wantOK: true},
		{name: "attribute wins over header", attrs: map[string]string{AttrAuthorization: "Bearer good"}, headers: []string{"Authorization", "Bearer bad"}, wantOK: true},
		{name: "bad attribute is not rescued by header", attrs: map[string]string{AttrAuthorization: "Bearer bad"}, headers: []string{"Authorization", "Bearer good"}},
		{name: "missing"},
		{name: "bearer without token", headers: []string{"Authorization", "Bearer "}},
		{name: "wrong token", headers: []string{"Authorization", "Bearer bad"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := &stubValidator{valid: "good", identity: &core.Identity{UserID: 7, Role: "user"}}
			a := newStubAuthenticator(v)
			session := core.NewSession("s1", tc.attrs, 4)

			identity, err := a.Authenticate(session, frame.New(frame.CONNECT, tc.headers...))
			if !tc.wantOK {
				require.ErrorIs(t, err, core.ErrUnauthorized)
				assert.False(t, session.Authenticated())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(7), identity.UserID)

			attached, ok := session.Identity()
			require.True(t, ok)
			assert.Equal(t, identity, attached)
		})
	}
}

func TestAuthenticateValidTokenWithoutIdentity(t *testing.T) {
	v := &stubValidator{valid: "good"}
	a := newStubAuthenticator(v)
	session := core.NewSession("s1", nil, 4)

	_, err := a.Authenticate(session, frame.New(frame.CONNECT, "Authorization", "Bearer good"))
	assert.True(t, errors.Is(err, core.ErrUnauthorized))
	assert.False(t, session.Authenticated())
}

func TestAuthenticateTwiceFails(t *testing.T) {
	v := &stubValidator{valid: "good", identity: &core.Identity{UserID: 7}}
	a := newStubAuthenticator(v)
	session := core.NewSession("s1", nil, 4)
	f := frame.New(frame.CONNECT, "Authorization", "Bearer good")

	_, err := a.Authenticate(session, f)
	require.NoError(t, err)

	_, err = a.Authenticate(session, f)
	assert.ErrorIs(t, err, core.ErrAlreadyAuthenticated)
}

func TestExtractToken(t *testing.T) {
	assert.Equal(t, "abc", extractToken("Bearer abc"))
	assert.Equal(t, "abc", extractToken("  Bearer   abc "))
	assert.Equal(t, "abc", extractToken("abc"))
	assert.Equal(t, "", extractToken("Bearer "))
	assert.Equal(t, "", extractToken(""))
}
