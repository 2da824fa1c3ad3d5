package http

import (
	"strings"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/rs/zerolog"

	"github.com/linkerbell/campus-market-chat/internal/core"
	"github.com/linkerbell/campus-market-chat/internal/metrics"
	"github.com/linkerbell/campus-market-chat/internal/proto"
)

// AttrAuthorization is the session attribute holding the credential captured at handshake.
const AttrAuthorization = "Authorization"

const bearerScheme = "Bearer"

// TokenValidator checks bearer credentials.
type TokenValidator interface {
	Validate(token string) bool
	ResolveIdentity(token string) *core.Identity
}

// ConnectionAuthenticator gates CONNECT frames: it finds the credential, validates
// it and attaches the resulting identity to the session.
type ConnectionAuthenticator struct {
	validator TokenValidator
	log       *zerolog.Logger
}

// NewConnectionAuthenticator creates an authenticator backed by validator.
func NewConnectionAuthenticator(validator TokenValidator, logger *zerolog.Logger) *ConnectionAuthenticator {
	return &ConnectionAuthenticator{validator: validator, log: logger}
}

// Authenticate handles a CONNECT frame. The handshake attribute wins over the
// frame's native header. On failure nothing is attached and core.ErrUnauthorized
// is returned.
func (a *ConnectionAuthenticator) Authenticate(session *core.Session, f *frame.Frame) (core.Identity, error) {
	credential := session.Attribute(AttrAuthorization)
	if credential == "" {
		credential = nativeAuthorization(f)
	}
	token := extractToken(credential)

	if !a.validator.Validate(token) {
		metrics.ConnectAttempts.WithLabelValues("rejected").Inc()
		a.log.Debug().Str("session_id", session.ID).Bool("credential_present", credential != "").Msg("connect rejected")
		return core.Identity{}, core.ErrUnauthorized
	}

	identity := a.validator.ResolveIdentity(token)
	if identity == nil {
		metrics.ConnectAttempts.WithLabelValues("rejected").Inc()
		a.log.Error().Str("session_id", session.ID).Msg("valid token resolved to no identity")
		return core.Identity{}, core.ErrUnauthorized
	}

	if err := session.Attach(identity); err != nil {
		metrics.ConnectAttempts.WithLabelValues("rejected").Inc()
		return core.Identity{}, err
	}

	metrics.ConnectAttempts.WithLabelValues("accepted").Inc()
	a.log.Info().Str("session_id", session.ID).Int64("user_id", identity.UserID).Msg("connection authenticated")
	return *identity, nil
}

func nativeAuthorization(f *frame.Frame) string {
	if f == nil || f.Header == nil {
		return ""
	}
	if v := f.Header.Get(proto.HeaderAuthorization); v != "" {
		return v
	}
	return f.Header.Get(strings.ToLower(proto.HeaderAuthorization))
}

// extractToken strips the bearer scheme; any other value is taken as the raw token.
func extractToken(credential string) string {
	credential = strings.TrimSpace(credential)
	scheme, rest, _ := strings.Cut(credential, " ")
	if strings.EqualFold(scheme, bearerScheme) {
		return strings.TrimSpace(rest)
	}
	return credential
}
