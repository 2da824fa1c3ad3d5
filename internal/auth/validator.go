package auth

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/linkerbell/campus-market-chat/internal/core"
	"github.com/linkerbell/campus-market-chat/internal/log"
)

// Validator checks bearer credentials and turns them into identities.
type Validator struct {
	cfg    *JWTConfig
	logger *zerolog.Logger
}

// NewValidator creates a validator for HS256 tokens signed with cfg.Secret.
func NewValidator(cfg *JWTConfig, logger *zerolog.Logger) *Validator {
	if logger == nil {
		logger = log.Nop()
	}
	l := logger.With().Str("component", "auth").Logger()
	return &Validator{cfg: cfg, logger: &l}
}

// Validate reports whether token is a well-formed, unexpired credential.
// Empty input is never valid.
func (v *Validator) Validate(token string) bool {
	if strings.TrimSpace(token) == "" {
		return false
	}
	if _, err := ValidateToken(v.cfg, token); err != nil {
		v.logger.Debug().Err(err).Msg("token rejected")
		return false
	}
	return true
}

// ResolveIdentity derives the principal from a token. It returns nil when the
// token carries no usable identity.
func (v *Validator) ResolveIdentity(token string) *core.Identity {
	claims, err := ValidateToken(v.cfg, token)
	if err != nil {
		return nil
	}
	return &core.Identity{UserID: claims.UserID, Role: claims.Role}
}
