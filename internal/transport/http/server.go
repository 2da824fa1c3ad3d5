package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/linkerbell/campus-market-chat/internal/config"
	"github.com/linkerbell/campus-market-chat/internal/core"
)

// Chat is what the transport needs from the chat service.
type Chat interface {
	ChatSender
	ChatAPI
}

// Deps are the collaborators the HTTP server routes to.
type Deps struct {
	Broker       *core.Broker
	Validator    TokenValidator
	Chat         Chat
	DeviceTokens DeviceTokens
}

// Server is the HTTP server plus the STOMP endpoint, whose hijacked
// connections http.Server.Shutdown does not track.
type Server struct {
	*http.Server
	ws *WSHandler
}

// Shutdown stops the HTTP listener, then closes STOMP sessions and waits for
// their handlers to return.
func (s *Server) Shutdown(ctx context.Context) error {
	return errors.Join(s.Server.Shutdown(ctx), s.ws.Shutdown(ctx))
}

// NewServer builds the HTTP server: health, metrics, the STOMP endpoint and the REST API.
func NewServer(deps Deps, cfg config.Config, logger *zerolog.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := NewConnectionAuthenticator(deps.Validator, logger)
	ws := NewWSHandler(deps.Broker, auth, deps.Chat, cfg.WS, logger)
	router.GET("/ws", gin.WrapH(ws))

	chatHandlers := NewChatHandlers(deps.Chat, logger)
	tokenHandlers := NewDeviceTokenHandlers(deps.DeviceTokens, logger)

	api := router.Group("/api/v1")
	api.Use(AuthMiddleware(deps.Validator, logger))
	{
		api.POST("/device-tokens", tokenHandlers.Register)
		api.DELETE("/device-tokens", tokenHandlers.Remove)

		api.GET("/chat/messages/recent", chatHandlers.RecentMessages)
		api.POST("/chat/messages/contents", chatHandlers.MessageContents)
		api.PATCH("/chat/messages/:messageId/read", chatHandlers.ReadMessage)
		api.PATCH("/chat/rooms/:chatRoomId/alarm", chatHandlers.SetAlarm)
		api.PATCH("/chat/rooms/:chatRoomId/exit", chatHandlers.Exit)
	}

	return &Server{
		Server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
		ws: ws,
	}
}
