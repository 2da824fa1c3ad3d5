package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linkerbell/campus-market-chat/internal/core"
	"github.com/linkerbell/campus-market-chat/internal/store"
)

// RecentWindow bounds how far back RecentMessages looks.
const RecentWindow = 7 * 24 * time.Hour

// RoomMessages lists message ids of one room.
type RoomMessages struct {
	ChatRoomID int64
	MessageIDs []int64
}

// RecentMessages returns, for every room the user is still in, the ids of
// messages from the recent window, oldest first.
func (s *Service) RecentMessages(ctx context.Context, userID int64, now time.Time) ([]RoomMessages, error) {
	roomIDs, err := s.store.ListRoomIDsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	since := now.Add(-RecentWindow)
	result := make([]RoomMessages, 0, len(roomIDs))
	for _, roomID := range roomIDs {
		ids, err := s.store.ListMessageIDsSince(ctx, roomID, since)
		if err != nil {
			return nil, fmt.Errorf("list messages of room %d: %w", roomID, err)
		}
		result = append(result, RoomMessages{ChatRoomID: roomID, MessageIDs: ids})
	}
	return result, nil
}

// MessageContents loads messages in the requested order. Unknown ids are skipped.
func (s *Service) MessageContents(ctx context.Context, ids []int64) ([]store.ChatMessage, error) {
	result := make([]store.ChatMessage, 0, len(ids))
	for _, id := range ids {
		msg, err := s.store.GetMessage(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("get message %d: %w", id, err)
		}
		result = append(result, *msg)
	}
	return result, nil
}

// ReadMessage sets the read flag of a message.
func (s *Service) ReadMessage(ctx context.Context, id int64) error {
	if err := s.store.MarkMessageRead(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.ErrMessageNotFound
		}
		return fmt.Errorf("read message: %w", err)
	}
	return nil
}

// SetAlarm turns notifications for a room on or off for the user.
func (s *Service) SetAlarm(ctx context.Context, userID, roomID int64, on bool) error {
	if err := s.store.SetAlarm(ctx, userID, roomID, on); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.ErrRoomNotFound
		}
		return fmt.Errorf("set alarm: %w", err)
	}
	return nil
}

// Exit marks the user as having left the room. Exited members receive no
// notifications.
func (s *Service) Exit(ctx context.Context, userID, roomID int64) error {
	if err := s.store.MarkExited(ctx, userID, roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.ErrRoomNotFound
		}
		return fmt.Errorf("exit room: %w", err)
	}
	return nil
}
