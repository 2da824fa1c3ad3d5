package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/linkerbell/campus-market-chat/internal/core"
	"github.com/linkerbell/campus-market-chat/internal/log"
	"github.com/linkerbell/campus-market-chat/internal/metrics"
	"github.com/linkerbell/campus-market-chat/internal/proto"
	"github.com/linkerbell/campus-market-chat/internal/store"
)

// Store is the persistence the chat service needs.
type Store interface {
	store.Transactor
	store.RoomStore
	store.MessageStore
	store.ChatPropertiesStore
}

// Broadcaster publishes an encoded payload to a topic.
type Broadcaster interface {
	Broadcast(ctx context.Context, topic string, body []byte) error
}

// Notifier schedules push notifications for a sent message.
type Notifier interface {
	Notify(ctx context.Context, sender core.Identity, roomID int64, msg core.InboundChat)
}

// Service provides chat business logic.
type Service struct {
	store       Store
	broadcaster Broadcaster
	notifier    Notifier
	logger      *zerolog.Logger
}

// New creates a new chat service. notifier may be nil.
func New(st Store, b Broadcaster, n Notifier, logger *zerolog.Logger) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	l := logger.With().Str("component", "chat").Logger()
	return &Service{
		store:       st,
		broadcaster: b,
		notifier:    n,
		logger:      &l,
	}
}

// Dispatch resolves the sender and the room, persists the message and returns the
// payload to broadcast. Nothing is written when either reference does not resolve.
func (s *Service) Dispatch(ctx context.Context, sender core.Identity, roomID int64, in core.InboundChat) (*core.BroadcastPayload, error) {
	var payload *core.BroadcastPayload

	err := s.store.WithTx(ctx, func(tx store.ChatTx) error {
		user, err := tx.GetUserByID(ctx, sender.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return core.ErrSenderNotFound
			}
			return fmt.Errorf("resolve sender: %w", err)
		}

		room, err := tx.GetRoomByID(ctx, roomID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return core.ErrRoomNotFound
			}
			return fmt.Errorf("resolve room: %w", err)
		}

		msg := &store.ChatMessage{
			ChatRoomID:  room.ID,
			UserID:      user.ID,
			Content:     in.Content,
			ContentType: in.ContentType,
			IsRead:      false,
		}
		if err := tx.SaveMessage(ctx, msg); err != nil {
			return fmt.Errorf("save message: %w", err)
		}

		// contentType is echoed from the inbound frame.
		payload = &core.BroadcastPayload{
			ChattingID:  msg.ID,
			ChatRoomID:  room.ID,
			UserID:      user.ID,
			Content:     msg.Content,
			ContentType: in.ContentType,
			CreatedAt:   msg.CreatedAt,
		}
		return nil
	})

	metrics.Dispatches.WithLabelValues(dispatchOutcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// Send runs the whole send path: dispatch, broadcast to the room topic, then
// notification. Only dispatch errors are returned; a failed broadcast is logged
// and notification still runs.
func (s *Service) Send(ctx context.Context, sender core.Identity, roomID int64, in core.InboundChat) (*core.BroadcastPayload, error) {
	payload, err := s.Dispatch(ctx, sender, roomID, in)
	if err != nil {
		return nil, err
	}

	if err := s.broadcast(ctx, payload); err != nil {
		s.logger.Error().Err(err).
			Int64("room_id", roomID).
			Int64("chatting_id", payload.ChattingID).
			Msg("broadcast failed")
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, sender, roomID, in)
	}

	return payload, nil
}

func (s *Service) broadcast(ctx context.Context, payload *core.BroadcastPayload) error {
	body, err := proto.EncodeBroadcast(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return s.broadcaster.Broadcast(ctx, core.RoomTopic(payload.ChatRoomID), body)
}

func dispatchOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrSenderNotFound):
		return "sender_not_found"
	case errors.Is(err, core.ErrRoomNotFound):
		return "room_not_found"
	default:
		return "error"
	}
}
