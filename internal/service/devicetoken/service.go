package devicetoken

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/linkerbell/campus-market-chat/internal/core"
	"github.com/linkerbell/campus-market-chat/internal/log"
	"github.com/linkerbell/campus-market-chat/internal/metrics"
	"github.com/linkerbell/campus-market-chat/internal/store"
)

// Service manages push registration tokens.
type Service struct {
	store  store.DeviceTokenStore
	logger *zerolog.Logger
}

// New creates a new device token service.
func New(st store.DeviceTokenStore, logger *zerolog.Logger) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	l := logger.With().Str("component", "devicetoken").Logger()
	return &Service{store: st, logger: &l}
}

// Register stores token for the user, taking it over if another user held it.
func (s *Service) Register(ctx context.Context, userID int64, token string) (*store.DeviceToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", core.ErrBadRequest)
	}

	dt, err := s.store.SaveDeviceToken(ctx, userID, token)
	if err != nil {
		return nil, fmt.Errorf("register device token: %w", err)
	}
	return dt, nil
}

// Invalidate deletes every record holding token. Deleting a token that is already
// gone is a no-op.
func (s *Service) Invalidate(ctx context.Context, token string) (int64, error) {
	n, err := s.store.DeleteDeviceTokensByToken(ctx, token)
	if err != nil {
		metrics.TokenInvalidations.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("invalidate device token: %w", err)
	}

	if n == 0 {
		metrics.TokenInvalidations.WithLabelValues("noop").Inc()
		s.logger.Debug().Str("token", token).Msg("device token already absent")
		return 0, nil
	}

	metrics.TokenInvalidations.WithLabelValues("deleted").Inc()
	s.logger.Info().Str("token", token).Int64("deleted", n).Msg("device token invalidated")
	return n, nil
}
