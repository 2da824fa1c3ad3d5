package proto

import (
	"encoding/json"
	"time"

	"github.com/linkerbell/campus-market-chat/internal/core"
	"github.com/linkerbell/campus-market-chat/internal/store"
)

// ChattingRequest is the JSON body of a SEND frame to /chat/{chatRoomId}.
type ChattingRequest struct {
	Content     string `json:"content" validate:"required,max=1000"`
	ContentType string `json:"contentType" validate:"required,oneof=TEXT IMAGE"`
}

// ToInbound converts a validated request into a domain message.
func (r ChattingRequest) ToInbound() core.InboundChat {
	return core.InboundChat{
		Content:     r.Content,
		ContentType: core.ContentType(r.ContentType),
	}
}

// ChattingResponse is the body of MESSAGE frames on /sub/chat/{chatRoomId}.
type ChattingResponse struct {
	ChattingID  int64     `json:"chattingId"`
	ChatRoomID  int64     `json:"chatRoomId"`
	UserID      int64     `json:"userId"`
	Content     string    `json:"content"`
	ContentType string    `json:"contentType"`
	CreatedAt   time.Time `json:"createdAt"`
}

// FromBroadcast maps a broadcast payload onto its wire form.
func FromBroadcast(p *core.BroadcastPayload) ChattingResponse {
	return ChattingResponse{
		ChattingID:  p.ChattingID,
		ChatRoomID:  p.ChatRoomID,
		UserID:      p.UserID,
		Content:     p.Content,
		ContentType: string(p.ContentType),
		CreatedAt:   p.CreatedAt.UTC(),
	}
}

// EncodeBroadcast renders a broadcast payload as a MESSAGE body.
func EncodeBroadcast(p *core.BroadcastPayload) ([]byte, error) {
	return json.Marshal(FromBroadcast(p))
}

// DeviceTokenRequest registers or removes a push token for the caller.
type DeviceTokenRequest struct {
	FCMToken string `json:"fcmToken" binding:"required"`
}

// RecentMessages lists message ids of one room from the recent window.
type RecentMessages struct {
	ChatRoomID    int64   `json:"chatRoomId"`
	MessageIDList []int64 `json:"messageIdList"`
}

// MessageContentsRequest asks for the contents of specific messages.
type MessageContentsRequest struct {
	MessageIDList []int64 `json:"messageIdList" binding:"required"`
}

// MessageContent is one persisted message returned over REST.
type MessageContent struct {
	MessageID   int64     `json:"messageId"`
	ChatRoomID  int64     `json:"chatRoomId"`
	UserID      int64     `json:"userId"`
	Content     string    `json:"content"`
	ContentType string    `json:"contentType"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`
}

// FromMessage maps a stored message onto its REST form.
func FromMessage(m store.ChatMessage) MessageContent {
	return MessageContent{
		MessageID:   m.ID,
		ChatRoomID:  m.ChatRoomID,
		UserID:      m.UserID,
		Content:     m.Content,
		ContentType: string(m.ContentType),
		IsRead:      m.IsRead,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

// AlarmRequest toggles notifications for a room.
type AlarmRequest struct {
	Alarm *bool `json:"alarm" binding:"required"`
}
