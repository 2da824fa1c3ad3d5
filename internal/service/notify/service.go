package notify

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/linkerbell/campus-market-chat/internal/core"
	"github.com/linkerbell/campus-market-chat/internal/log"
	"github.com/linkerbell/campus-market-chat/internal/push"
	"github.com/linkerbell/campus-market-chat/internal/store"
)

// ImageBody replaces the notification body for image messages.
const ImageBody = "sent a photo"

// Store resolves recipients and the sender's display name.
type Store interface {
	store.UserStore
	ListNotificationTargets(ctx context.Context, roomID, senderID int64) ([]store.NotificationTarget, error)
}

// Transport starts an asynchronous push delivery.
type Transport interface {
	SendAsync(ctx context.Context, req push.NotificationRequest) <-chan push.DeliveryResult
}

// Invalidator removes a device token that the provider reported as permanently invalid.
type Invalidator interface {
	Invalidate(ctx context.Context, token string) (int64, error)
}

// Service fans chat messages out to recipient devices. Delivery is best effort:
// nothing it does is reported back to the sender.
type Service struct {
	store        Store
	transport    Transport
	invalidator  Invalidator
	deeplinkBase string
	logger       *zerolog.Logger

	// mu orders wg.Add against Wait and Shutdown.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a notification service.
func New(st Store, tr Transport, inv Invalidator, deeplinkBase string, logger *zerolog.Logger) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	l := logger.With().Str("component", "notify").Logger()
	return &Service{
		store:        st,
		transport:    tr,
		invalidator:  inv,
		deeplinkBase: deeplinkBase,
		logger:       &l,
	}
}

// Notify schedules notifications for msg sent by sender to roomID and returns
// immediately. After Shutdown it drops the message.
func (s *Service) Notify(ctx context.Context, sender core.Identity, roomID int64, msg core.InboundChat) {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn().Int64("room_id", roomID).Msg("notifier shut down, dropping notification")
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.run(ctx, sender, roomID, msg)
	}()
}

// Wait blocks until every scheduled notification has been delivered and classified.
// Notify calls made while Wait runs block until it returns.
func (s *Service) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wg.Wait()
}

// Shutdown stops accepting notifications and waits for in-flight ones.
func (s *Service) Shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) run(ctx context.Context, sender core.Identity, roomID int64, msg core.InboundChat) {
	logger := s.logger.With().Int64("room_id", roomID).Int64("sender_id", sender.UserID).Logger()

	targets, err := s.store.ListNotificationTargets(ctx, roomID, sender.UserID)
	if err != nil {
		logger.Error().Err(err).Msg("resolve notification targets")
		return
	}
	if len(targets) == 0 {
		return
	}

	body := msg.Content
	if msg.ContentType == core.ContentTypeImage {
		body = ImageBody
	}
	deeplink := s.deeplink(roomID)

	var fallbackTitle string
	var results []<-chan push.DeliveryResult
	for _, target := range targets {
		title := target.RoomTitle
		if title == "" {
			if fallbackTitle == "" {
				fallbackTitle = s.senderName(ctx, sender)
			}
			title = fallbackTitle
		}

		results = append(results, s.transport.SendAsync(ctx, push.NotificationRequest{
			Token:    target.Token,
			Title:    title,
			Body:     body,
			Deeplink: deeplink,
		}))
	}

	for _, ch := range results {
		if res, ok := <-ch; ok {
			s.handle(ctx, &logger, res)
		}
	}
}

// handle classifies one delivery result. Only token-level failures remove the token.
func (s *Service) handle(ctx context.Context, logger *zerolog.Logger, res push.DeliveryResult) {
	switch {
	case res.OK():
		logger.Debug().Str("token", res.Token).Str("message_id", res.MessageID).Msg("notification delivered")
	case res.Kind.TokenInvalid():
		logger.Error().Err(res.Err).Str("token", res.Token).Str("kind", string(res.Kind)).Msg("notification rejected, invalidating token")
		if _, err := s.invalidator.Invalidate(ctx, res.Token); err != nil {
			logger.Error().Err(err).Str("token", res.Token).Msg("invalidate token")
		}
	default:
		logger.Warn().Err(res.Err).Str("token", res.Token).Str("kind", string(res.Kind)).Msg("notification failed")
	}
}

func (s *Service) senderName(ctx context.Context, sender core.Identity) string {
	user, err := s.store.GetUserByID(ctx, sender.UserID)
	if err != nil || user.Nickname == "" {
		return sender.Name()
	}
	return user.Nickname
}

func (s *Service) deeplink(roomID int64) string {
	if s.deeplinkBase == "" {
		return ""
	}
	sep := "/"
	if strings.HasSuffix(s.deeplinkBase, "/") {
		sep = ""
	}
	return s.deeplinkBase + sep + "chat/" + strconv.FormatInt(roomID, 10)
}
