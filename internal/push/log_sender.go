package push

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/linkerbell/campus-market-chat/internal/log"
)

// LogSender logs notifications instead of delivering them. Used when push is disabled.
type LogSender struct {
	logger *zerolog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *zerolog.Logger) *LogSender {
	if logger == nil {
		logger = log.Nop()
	}
	return &LogSender{logger: logger}
}

// Send always succeeds.
func (s *LogSender) Send(_ context.Context, req NotificationRequest) (string, error) {
	id := uuid.NewString()
	s.logger.Info().
		Str("message_id", id).
		Str("token", req.Token).
		Str("title", req.Title).
		Str("deeplink", req.Deeplink).
		Msg("push disabled, notification logged")
	return id, nil
}
