package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkerbell/campus-market-chat/internal/core"
	"github.com/linkerbell/campus-market-chat/internal/proto"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.server.Client().Get(env.server.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestStompSubscribeAndSend(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seller := env.dialStomp(ctx, t)
	connected := connect(ctx, t, seller, env.token(t, env.seller.ID))
	assert.Equal(t, "1.2", connected.Header.Get(frame.Version))
	assert.Equal(t, fmt.Sprint(env.seller.ID), connected.Header.Get("user-name"))

	topic := core.RoomTopic(env.room.ID)
	writeFrame(ctx, t, seller, frame.New(frame.SUBSCRIBE,
		frame.Id, "sub-0",
		frame.Destination, topic,
		frame.Receipt, "r-sub",
	))
	receipt := readFrame(ctx, t, seller)
	expectCommand(t, receipt, frame.RECEIPT)
	assert.Equal(t, "r-sub", receipt.Header.Get(frame.ReceiptId))

	buyer := env.dialStomp(ctx, t)
	connect(ctx, t, buyer, env.token(t, env.buyer.ID))

	// an empty body fails validation but keeps the connection open
	writeFrame(ctx, t, buyer, frame.New(frame.SEND,
		frame.Destination, fmt.Sprintf("/chat/%d", env.room.ID),
		frame.Receipt, "r-send",
	))
	errFrame := readFrame(ctx, t, buyer)
	expectCommand(t, errFrame, frame.ERROR)
	assert.Equal(t, core.ErrCodeBadRequest, errFrame.Header.Get(proto.HeaderCode))
	assert.Equal(t, "r-send", errFrame.Header.Get(frame.ReceiptId))

	body, _ := json.Marshal(proto.ChattingRequest{Content: "Is it still available?", ContentType: "TEXT"})
	f := frame.New(frame.SEND,
		frame.Destination, fmt.Sprintf("/chat/%d", env.room.ID),
		frame.ContentType, proto.ContentTypeJSON,
		frame.Receipt, "r-send-2",
	)
	f.Body = body
	writeFrame(ctx, t, buyer, f)
	sendReceipt := readFrame(ctx, t, buyer)
	expectCommand(t, sendReceipt, frame.RECEIPT)
	assert.Equal(t, "r-send-2", sendReceipt.Header.Get(frame.ReceiptId))

	msg := readFrame(ctx, t, seller)
	expectCommand(t, msg, frame.MESSAGE)
	assert.Equal(t, topic, msg.Header.Get(frame.Destination))
	assert.Equal(t, "sub-0", msg.Header.Get(frame.Subscription))
	assert.NotEmpty(t, msg.Header.Get(frame.MessageId))

	var got proto.ChattingResponse
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, env.room.ID, got.ChatRoomID)
	assert.Equal(t, env.buyer.ID, got.UserID)
	assert.Equal(t, "Is it still available?", got.Content)
	assert.Equal(t, "TEXT", got.ContentType)
	assert.Positive(t, got.ChattingID)

	stored, err := env.store.GetMessage(ctx, got.ChattingID)
	require.NoError(t, err)
	assert.False(t, stored.IsRead)
}

func TestStompConnectRejectsBadCredential(t *testing.T) {
	cases := []struct {
		name    string
		headers []string
	}{
		{name: "missing", headers: nil},
		{name: "garbage", headers: []string{proto.HeaderAuthorization, "Bearer not-a-jwt"}},
		{name: "empty bearer", headers: []string{proto.HeaderAuthorization, "Bearer "}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			conn := env.dialStomp(ctx, t)
			kv := append([]string{frame.AcceptVersion, "1.2"}, tc.headers...)
			writeFrame(ctx, t, conn, frame.New(frame.CONNECT, kv...))

			f := readFrame(ctx, t, conn)
			expectCommand(t, f, frame.ERROR)
			assert.Equal(t, core.ErrCodeUnauthorized, f.Header.Get(proto.HeaderCode))

			_, _, err := conn.Read(ctx)
			assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
		})
	}
}

func TestStompHandshakeHeaderAuthenticates(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+env.token(t, env.buyer.ID))
	conn, _, err := websocket.Dial(ctx, env.wsURL(), &websocket.DialOptions{
		Subprotocols: []string{"v12.stomp"},
		HTTPHeader:   header,
	})
	require.NoError(t, err)
	defer conn.CloseNow()

	// no native header: the handshake credential is used
	writeFrame(ctx, t, conn, frame.New(frame.CONNECT, frame.AcceptVersion, "1.2"))
	f := readFrame(ctx, t, conn)
	expectCommand(t, f, frame.CONNECTED)
	assert.Equal(t, fmt.Sprint(env.buyer.ID), f.Header.Get("user-name"))
}

func TestStompFrameBeforeConnectIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dialStomp(ctx, t)
	writeFrame(ctx, t, conn, frame.New(frame.SUBSCRIBE,
		frame.Id, "sub-0",
		frame.Destination, core.RoomTopic(env.room.ID),
	))

	f := readFrame(ctx, t, conn)
	expectCommand(t, f, frame.ERROR)
	assert.Equal(t, core.ErrCodeNotConnected, f.Header.Get(proto.HeaderCode))

	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	assert.Zero(t, env.broker.Subscribers(core.RoomTopic(env.room.ID)))
}

func TestStompSendToUnknownRoomKeepsConnection(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dialStomp(ctx, t)
	connect(ctx, t, conn, env.token(t, env.buyer.ID))

	f := frame.New(frame.SEND,
		frame.Destination, "/chat/9999",
		frame.Receipt, "r-1",
	)
	f.Body = []byte(`{"content":"hello","contentType":"TEXT"}`)
	writeFrame(ctx, t, conn, f)

	errFrame := readFrame(ctx, t, conn)
	expectCommand(t, errFrame, frame.ERROR)
	assert.Equal(t, core.ErrCodeRoomNotFound, errFrame.Header.Get(proto.HeaderCode))
	assert.Equal(t, "r-1", errFrame.Header.Get(frame.ReceiptId))

	// still usable
	writeFrame(ctx, t, conn, frame.New(frame.SUBSCRIBE,
		frame.Id, "sub-0",
		frame.Destination, core.RoomTopic(env.room.ID),
		frame.Receipt, "r-2",
	))
	expectCommand(t, readFrame(ctx, t, conn), frame.RECEIPT)
}

func TestStompSendWithUnknownSender(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dialStomp(ctx, t)
	connect(ctx, t, conn, env.token(t, 4242))

	f := frame.New(frame.SEND, frame.Destination, fmt.Sprintf("/chat/%d", env.room.ID))
	f.Body = []byte(`{"content":"hello","contentType":"TEXT"}`)
	writeFrame(ctx, t, conn, f)

	errFrame := readFrame(ctx, t, conn)
	expectCommand(t, errFrame, frame.ERROR)
	assert.Equal(t, core.ErrCodeSenderNotFound, errFrame.Header.Get(proto.HeaderCode))
}

func TestStompSubscribeValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dialStomp(ctx, t)
	connect(ctx, t, conn, env.token(t, env.buyer.ID))

	writeFrame(ctx, t, conn, frame.New(frame.SUBSCRIBE, frame.Destination, core.RoomTopic(env.room.ID)))
	f := readFrame(ctx, t, conn)
	expectCommand(t, f, frame.ERROR)
	assert.Equal(t, core.ErrCodeBadRequest, f.Header.Get(proto.HeaderCode))

	writeFrame(ctx, t, conn, frame.New(frame.SUBSCRIBE, frame.Id, "sub-1", frame.Destination, "/topic/everything"))
	f = readFrame(ctx, t, conn)
	expectCommand(t, f, frame.ERROR)
	assert.Equal(t, core.ErrCodeBadDestination, f.Header.Get(proto.HeaderCode))
}

func TestStompDisconnectSendsReceipt(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dialStomp(ctx, t)
	connect(ctx, t, conn, env.token(t, env.buyer.ID))

	writeFrame(ctx, t, conn, frame.New(frame.DISCONNECT, frame.Receipt, "bye"))
	f := readFrame(ctx, t, conn)
	expectCommand(t, f, frame.RECEIPT)
	assert.Equal(t, "bye", f.Header.Get(frame.ReceiptId))

	_, _, err := conn.Read(ctx)
	var ce websocket.CloseError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, websocket.StatusNormalClosure, ce.Code)
}

func TestStompMalformedFrameClosesConnection(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dialStomp(ctx, t)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("SEND\nno-colon-header\n\n\x00")))

	f := readFrame(ctx, t, conn)
	expectCommand(t, f, frame.ERROR)

	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusProtocolError, websocket.CloseStatus(err))
}

func TestShutdownClosesSessionsAndRefusesNewOnes(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dialStomp(ctx, t)
	connect(ctx, t, conn, env.token(t, env.buyer.ID))

	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- env.app.Shutdown(ctx) }()

	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
	require.NoError(t, <-shutdownDone)

	_, resp, err := websocket.Dial(ctx, env.wsURL(), &websocket.DialOptions{Subprotocols: []string{"v12.stomp"}})
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	}
}
