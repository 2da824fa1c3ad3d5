package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/go-playground/validator/v10"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/linkerbell/campus-market-chat/internal/config"
	"github.com/linkerbell/campus-market-chat/internal/core"
	"github.com/linkerbell/campus-market-chat/internal/metrics"
	"github.com/linkerbell/campus-market-chat/internal/proto"
)

// ChatSender runs the send path for one inbound chat frame.
type ChatSender interface {
	Send(ctx context.Context, sender core.Identity, roomID int64, in core.InboundChat) (*core.BroadcastPayload, error)
}

// closeError ends the connection with a specific WebSocket status.
type closeError struct {
	status websocket.StatusCode
	reason string
}

func (e *closeError) Error() string {
	return e.reason
}

var errDisconnect = &closeError{status: websocket.StatusNormalClosure, reason: "disconnect"}

const shutdownReason = "server shutting down"

// WSHandler upgrades HTTP connections and speaks STOMP over them.
type WSHandler struct {
	broker   *core.Broker
	auth     *ConnectionAuthenticator
	chat     ChatSender
	cfg      config.WSConfig
	validate *validator.Validate
	log      *zerolog.Logger

	// mu guards closing and conns; active.Add only happens while !closing.
	mu      sync.Mutex
	closing bool
	conns   map[*core.Session]*websocket.Conn
	active  sync.WaitGroup
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(broker *core.Broker, auth *ConnectionAuthenticator, chat ChatSender, cfg config.WSConfig, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		broker:   broker,
		auth:     auth,
		chat:     chat,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      logger,
		conns:    make(map[*core.Session]*websocket.Conn),
	}
}

// wsConn is the state of one upgraded connection.
type wsConn struct {
	h       *WSHandler
	conn    *websocket.Conn
	session *core.Session
	limiter *sendLimiter
	log     zerolog.Logger
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	attrs := handshakeAttributes(r)
	session := core.NewSession(uuid.NewString(), attrs, h.cfg.OutboundBuffer)

	if !h.track(session) {
		stdhttp.Error(w, "server shutting down", stdhttp.StatusServiceUnavailable)
		return
	}
	defer h.untrack(session)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       proto.Subprotocols,
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	if !h.attach(session, conn) {
		_ = conn.Close(websocket.StatusGoingAway, shutdownReason)
		return
	}

	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	defer h.broker.RemoveSession(session)

	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	c := &wsConn{
		h:       h,
		conn:    conn,
		session: session,
		limiter: newSendLimiter(h.cfg.SendRatePerSecond, h.cfg.SendBurst),
		log:     h.log.With().Str("session_id", session.ID).Logger(),
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- c.readLoop(ctx)
	}()
	go func() {
		errCh <- c.writeLoop(ctx)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"

	var ce *closeError
	switch {
	case errors.As(err, &ce):
		status, reason = ce.status, ce.reason
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, io.EOF):
	default:
		if s := websocket.CloseStatus(err); s != -1 || h.shuttingDown() {
			// peer closed; nothing to report
			return
		}
		status = websocket.StatusInternalError
		reason = "internal error"
		c.log.Warn().Err(err).Msg("ws connection closed with error")
	}

	_ = conn.Close(status, reason)
}

// track registers a connection unless the handler is shutting down.
func (h *WSHandler) track(s *core.Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.conns[s] = nil
	h.active.Add(1)
	return true
}

// attach records the upgraded connection so Shutdown can close it. It reports
// false when Shutdown started during the upgrade.
func (h *WSHandler) attach(s *core.Session, conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.conns[s] = conn
	return true
}

func (h *WSHandler) untrack(s *core.Session) {
	h.mu.Lock()
	delete(h.conns, s)
	h.mu.Unlock()
	h.active.Done()
}

func (h *WSHandler) shuttingDown() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

// Shutdown refuses new connections, closes open ones with StatusGoingAway and
// waits until their handlers return or ctx expires. When it returns nil no
// handler can call into the chat service any more.
func (h *WSHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	for _, conn := range h.conns {
		if conn != nil {
			go conn.Close(websocket.StatusGoingAway, shutdownReason)
		}
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handshakeAttributes captures connection-level metadata. The Authorization header
// wins; browsers that cannot set headers may pass access_token instead.
func handshakeAttributes(r *stdhttp.Request) map[string]string {
	attrs := make(map[string]string)
	if v := r.Header.Get("Authorization"); v != "" {
		attrs[AttrAuthorization] = v
	} else if v := r.URL.Query().Get("access_token"); v != "" {
		attrs[AttrAuthorization] = v
	}
	return attrs
}

func (c *wsConn) readLoop(ctx context.Context) error {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}

		f, err := proto.Decode(data)
		if err != nil {
			c.log.Debug().Err(err).Msg("malformed frame")
			_ = c.writeFrame(ctx, proto.ErrorFrame(core.ErrCodeBadRequest, "malformed frame", ""))
			return &closeError{status: websocket.StatusProtocolError, reason: "malformed frame"}
		}
		if f == nil {
			continue // heart-beat
		}

		metrics.FramesReceived.WithLabelValues(f.Command).Inc()
		if err := c.handleFrame(ctx, f); err != nil {
			return err
		}
	}
}

func (c *wsConn) writeLoop(ctx context.Context) error {
	for {
		select {
		case d := <-c.session.Outbound:
			msg := proto.Message(d.Topic, d.SubscriptionID, uuid.NewString(), d.Body)
			if err := c.writeFrame(ctx, msg); err != nil {
				c.log.Error().Err(err).Msg("write ws message")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleFrame processes one frame. A returned error closes the connection;
// operation-level failures are reported with an ERROR frame and return nil.
func (c *wsConn) handleFrame(ctx context.Context, f *frame.Frame) error {
	if f.Command == frame.CONNECT || f.Command == frame.STOMP {
		return c.handleConnect(ctx, f)
	}

	if !c.session.Authenticated() {
		_ = c.writeFrame(ctx, proto.ErrorFrame(core.ErrCodeNotConnected, "connect first", receiptOf(f)))
		return &closeError{status: websocket.StatusPolicyViolation, reason: "not connected"}
	}

	switch f.Command {
	case frame.SEND:
		return c.handleSend(ctx, f)
	case frame.SUBSCRIBE:
		return c.handleSubscribe(ctx, f)
	case frame.UNSUBSCRIBE:
		return c.handleUnsubscribe(ctx, f)
	case frame.DISCONNECT:
		if receipt := receiptOf(f); receipt != "" {
			_ = c.writeFrame(ctx, proto.Receipt(receipt))
		}
		return errDisconnect
	default:
		return c.replyError(ctx, f, core.NewError(core.ErrCodeUnsupportedFrame, "unsupported frame "+f.Command))
	}
}

func (c *wsConn) handleConnect(ctx context.Context, f *frame.Frame) error {
	if c.session.Authenticated() {
		return c.replyError(ctx, f, core.NewError(core.ErrCodeAlreadyConnected, core.ErrAlreadyAuthenticated.Error()))
	}

	version, ok := proto.NegotiateVersion(f.Header.Get(frame.AcceptVersion))
	if !ok {
		_ = c.writeFrame(ctx, proto.ErrorFrame(core.ErrCodeBadRequest, "unsupported protocol version", ""))
		return &closeError{status: websocket.StatusProtocolError, reason: "unsupported protocol version"}
	}

	identity, err := c.h.auth.Authenticate(c.session, f)
	if err != nil {
		_ = c.writeFrame(ctx, proto.ErrorFrame(core.ErrCodeUnauthorized, core.ErrUnauthorized.Error(), ""))
		return &closeError{status: websocket.StatusPolicyViolation, reason: core.ErrUnauthorized.Error()}
	}

	return c.writeFrame(ctx, proto.Connected(version, identity.Name(), c.session.ID))
}

func (c *wsConn) handleSend(ctx context.Context, f *frame.Frame) error {
	if !c.limiter.allow() {
		return c.replyError(ctx, f, core.NewError(core.ErrCodeRateLimited, "too many messages"))
	}

	roomID, ok := core.ParseSendDestination(f.Header.Get(frame.Destination))
	if !ok {
		return c.replyError(ctx, f, core.NewError(core.ErrCodeBadDestination, "destination must be /chat/{chatRoomId}"))
	}

	var req proto.ChattingRequest
	if err := json.Unmarshal(f.Body, &req); err != nil {
		return c.replyError(ctx, f, core.NewError(core.ErrCodeBadRequest, "invalid message body"))
	}
	if err := c.h.validate.Struct(req); err != nil {
		return c.replyError(ctx, f, core.NewError(core.ErrCodeBadRequest, err.Error()))
	}

	identity, _ := c.session.Identity()
	payload, err := c.h.chat.Send(ctx, identity, roomID, req.ToInbound())
	if err != nil {
		ce := core.AsCoreError(err)
		if ce.Code == core.ErrCodeInternal {
			c.log.Error().Err(err).Int64("room_id", roomID).Msg("chat send failed")
		} else {
			c.log.Debug().Err(err).Int64("room_id", roomID).Msg("chat send rejected")
		}
		return c.replyError(ctx, f, ce)
	}

	c.log.Debug().Int64("room_id", roomID).Int64("chatting_id", payload.ChattingID).Msg("chat sent")
	return c.replyReceipt(ctx, f)
}

func (c *wsConn) handleSubscribe(ctx context.Context, f *frame.Frame) error {
	subID := f.Header.Get(frame.Id)
	if subID == "" {
		return c.replyError(ctx, f, core.NewError(core.ErrCodeBadRequest, "subscription id is required"))
	}

	topic := f.Header.Get(frame.Destination)
	if _, ok := core.ParseRoomTopic(topic); !ok {
		return c.replyError(ctx, f, core.NewError(core.ErrCodeBadDestination, "destination must be /sub/chat/{chatRoomId}"))
	}

	if err := c.h.broker.Subscribe(c.session, subID, topic); err != nil {
		return c.replyError(ctx, f, core.AsCoreError(err))
	}

	c.log.Debug().Str("subscription", subID).Str("topic", topic).Msg("subscribed")
	return c.replyReceipt(ctx, f)
}

func (c *wsConn) handleUnsubscribe(ctx context.Context, f *frame.Frame) error {
	if err := c.h.broker.Unsubscribe(c.session, f.Header.Get(frame.Id)); err != nil {
		return c.replyError(ctx, f, core.AsCoreError(err))
	}
	return c.replyReceipt(ctx, f)
}

func (c *wsConn) replyError(ctx context.Context, f *frame.Frame, ce *core.CoreError) error {
	return c.writeFrame(ctx, proto.ErrorFrame(ce.Code, ce.Message, receiptOf(f)))
}

func (c *wsConn) replyReceipt(ctx context.Context, f *frame.Frame) error {
	receipt := receiptOf(f)
	if receipt == "" {
		return nil
	}
	return c.writeFrame(ctx, proto.Receipt(receipt))
}

func (c *wsConn) writeFrame(ctx context.Context, f *frame.Frame) error {
	data, err := proto.Encode(f)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func receiptOf(f *frame.Frame) string {
	if f == nil || f.Header == nil {
		return ""
	}
	return f.Header.Get(frame.Receipt)
}
