package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/linkerbell/campus-market-chat/internal/proto"
	"github.com/linkerbell/campus-market-chat/internal/store"
)

// DeviceTokens manages push registration tokens.
type DeviceTokens interface {
	Register(ctx context.Context, userID int64, token string) (*store.DeviceToken, error)
	Invalidate(ctx context.Context, token string) (int64, error)
}

// DeviceTokenHandlers provides HTTP handlers for push token registration.
type DeviceTokenHandlers struct {
	tokens DeviceTokens
	log    *zerolog.Logger
}

// NewDeviceTokenHandlers creates a new device token handlers instance.
func NewDeviceTokenHandlers(tokens DeviceTokens, logger *zerolog.Logger) *DeviceTokenHandlers {
	return &DeviceTokenHandlers{tokens: tokens, log: logger}
}

// DeviceTokenResponse represents a registered token.
type DeviceTokenResponse struct {
	ID       int64  `json:"id"`
	FCMToken string `json:"fcmToken"`
}

// Register stores the caller's device token.
// POST /api/v1/device-tokens
func (h *DeviceTokenHandlers) Register(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req proto.DeviceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	dt, err := h.tokens.Register(c.Request.Context(), uid, req.FCMToken)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, DeviceTokenResponse{ID: dt.ID, FCMToken: dt.Token})
}

// Remove deletes a device token, e.g. on logout. Removing an unknown token succeeds.
// DELETE /api/v1/device-tokens
func (h *DeviceTokenHandlers) Remove(c *gin.Context) {
	var req proto.DeviceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if _, err := h.tokens.Invalidate(c.Request.Context(), req.FCMToken); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
