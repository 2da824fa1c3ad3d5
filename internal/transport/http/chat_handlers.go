package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/linkerbell/campus-market-chat/internal/proto"
	"github.com/linkerbell/campus-market-chat/internal/service/chat"
	"github.com/linkerbell/campus-market-chat/internal/store"
)

// ChatAPI is the chat functionality exposed over REST.
type ChatAPI interface {
	RecentMessages(ctx context.Context, userID int64, now time.Time) ([]chat.RoomMessages, error)
	MessageContents(ctx context.Context, ids []int64) ([]store.ChatMessage, error)
	ReadMessage(ctx context.Context, id int64) error
	SetAlarm(ctx context.Context, userID, roomID int64, on bool) error
	Exit(ctx context.Context, userID, roomID int64) error
}

// ChatHandlers provides HTTP handlers for chat history and room settings.
type ChatHandlers struct {
	chat ChatAPI
	log  *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(api ChatAPI, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{chat: api, log: logger}
}

// RecentMessages lists message ids from the last week for every joined room.
// GET /api/v1/chat/messages/recent
func (h *ChatHandlers) RecentMessages(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	rooms, err := h.chat.RecentMessages(c.Request.Context(), uid, time.Now())
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	response := make([]proto.RecentMessages, 0, len(rooms))
	for _, room := range rooms {
		response = append(response, proto.RecentMessages{
			ChatRoomID:    room.ChatRoomID,
			MessageIDList: room.MessageIDs,
		})
	}
	c.JSON(http.StatusOK, response)
}

// MessageContents returns the messages with the requested ids.
// POST /api/v1/chat/messages/contents
func (h *ChatHandlers) MessageContents(c *gin.Context) {
	var req proto.MessageContentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid message contents request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	messages, err := h.chat.MessageContents(c.Request.Context(), req.MessageIDList)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	response := make([]proto.MessageContent, 0, len(messages))
	for _, m := range messages {
		response = append(response, proto.FromMessage(m))
	}
	c.JSON(http.StatusOK, response)
}

// ReadMessage marks a message as read.
// PATCH /api/v1/chat/messages/:messageId/read
func (h *ChatHandlers) ReadMessage(c *gin.Context) {
	id, ok := pathID(c, "messageId")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message id"})
		return
	}

	if err := h.chat.ReadMessage(c.Request.Context(), id); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetAlarm toggles notifications of a room for the caller.
// PATCH /api/v1/chat/rooms/:chatRoomId/alarm
func (h *ChatHandlers) SetAlarm(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	roomID, ok := pathID(c, "chatRoomId")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid chat room id"})
		return
	}

	var req proto.AlarmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.chat.SetAlarm(c.Request.Context(), uid, roomID, *req.Alarm); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Exit leaves a room for the caller.
// PATCH /api/v1/chat/rooms/:chatRoomId/exit
func (h *ChatHandlers) Exit(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	roomID, ok := pathID(c, "chatRoomId")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid chat room id"})
		return
	}

	if err := h.chat.Exit(c.Request.Context(), uid, roomID); err != nil {
		writeError(c, h.log, err)
		return
	}

	h.log.Info().Int64("user_id", uid).Int64("room_id", roomID).Msg("user exited chat room")
	c.Status(http.StatusNoContent)
}
