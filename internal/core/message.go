package core

import (
	"strconv"
	"strings"
	"time"
)

const (
	// SendPrefix is the client destination namespace for chat SEND frames.
	SendPrefix = "/chat/"
	// TopicPrefix is the broadcast namespace subscribers listen on.
	TopicPrefix = "/sub/chat/"
)

// ContentType tags what a chat message carries.
type ContentType string

const (
	ContentTypeText  ContentType = "TEXT"
	ContentTypeImage ContentType = "IMAGE"
)

// Valid reports whether c is a known content type.
func (c ContentType) Valid() bool {
	return c == ContentTypeText || c == ContentTypeImage
}

// InboundChat is the decoded body of a SEND frame.
type InboundChat struct {
	Content     string
	ContentType ContentType
}

// BroadcastPayload is the projection of a persisted chat message that is fanned out
// to room subscribers. It is built fresh for each dispatch and never stored.
type BroadcastPayload struct {
	ChattingID  int64
	ChatRoomID  int64
	UserID      int64
	Content     string
	ContentType ContentType
	CreatedAt   time.Time
}

// RoomTopic returns the broadcast topic for a chat room.
func RoomTopic(roomID int64) string {
	return TopicPrefix + strconv.FormatInt(roomID, 10)
}

// ParseSendDestination extracts the room id from a "/chat/{id}" destination.
func ParseSendDestination(dest string) (int64, bool) {
	return parseRoomSuffix(dest, SendPrefix)
}

// ParseRoomTopic extracts the room id from a "/sub/chat/{id}" topic.
func ParseRoomTopic(topic string) (int64, bool) {
	return parseRoomSuffix(topic, TopicPrefix)
}

func parseRoomSuffix(s, prefix string) (int64, bool) {
	rest, ok := strings.CutPrefix(s, prefix)
	if !ok || rest == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
