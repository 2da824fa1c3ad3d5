package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/rs/zerolog"

	"github.com/linkerbell/campus-market-chat/internal/auth"
	"github.com/linkerbell/campus-market-chat/internal/config"
	"github.com/linkerbell/campus-market-chat/internal/core"
	"github.com/linkerbell/campus-market-chat/internal/proto"
	"github.com/linkerbell/campus-market-chat/internal/service/chat"
	"github.com/linkerbell/campus-market-chat/internal/service/devicetoken"
	"github.com/linkerbell/campus-market-chat/internal/store"
	"github.com/linkerbell/campus-market-chat/internal/store/sqlite"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testEnv is a fully wired server over an in-memory database.
type testEnv struct {
	app    *Server
	server *httptest.Server
	store  *sqlite.SQLiteStore
	broker *core.Broker
	jwt    *auth.JWTConfig
	buyer  *store.User
	seller *store.User
	room   *store.ChatRoom
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	buyer, err := st.CreateUser(ctx, "buyer")
	if err != nil {
		t.Fatalf("create buyer: %v", err)
	}
	seller, err := st.CreateUser(ctx, "seller")
	if err != nil {
		t.Fatalf("create seller: %v", err)
	}
	room, err := st.CreateChatRoom(ctx, 1, buyer.ID, seller.ID, "Desk lamp")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	jwtCfg := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
	broker := core.NewBroker()
	chatSvc := chat.New(st, broker, nil, &logger)

	cfg := config.Default()
	cfg.WS.SendRatePerSecond = 1000
	cfg.WS.SendBurst = 1000

	srv := NewServer(Deps{
		Broker:       broker,
		Validator:    auth.NewValidator(jwtCfg, &logger),
		Chat:         chatSvc,
		DeviceTokens: devicetoken.New(st, &logger),
	}, cfg, &logger)

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{
		app:    srv,
		server: ts,
		store:  st,
		broker: broker,
		jwt:    jwtCfg,
		buyer:  buyer,
		seller: seller,
		room:   room,
	}
}

func (e *testEnv) token(t *testing.T, userID int64) string {
	t.Helper()
	token, err := auth.GenerateToken(e.jwt, userID, "user")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.server.URL, "http", "ws", 1) + "/ws"
}

// dialStomp opens a WebSocket with the STOMP 1.2 subprotocol.
func (e *testEnv) dialStomp(ctx context.Context, t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, e.wsURL(), &websocket.DialOptions{
		Subprotocols: []string{"v12.stomp"},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func writeFrame(ctx context.Context, t *testing.T, conn *websocket.Conn, f *frame.Frame) {
	t.Helper()
	data, err := proto.Encode(f)
	if err != nil {
		t.Fatalf("encode %s: %v", f.Command, err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write %s: %v", f.Command, err)
	}
}

// readFrame returns the next non-heartbeat frame.
func readFrame(ctx context.Context, t *testing.T, conn *websocket.Conn) *frame.Frame {
	t.Helper()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		f, err := proto.Decode(data)
		if err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if f != nil {
			return f
		}
	}
}

func expectCommand(t *testing.T, f *frame.Frame, command string) {
	t.Helper()
	if f.Command != command {
		t.Fatalf("expected %s, got %s (message=%q code=%q)", command, f.Command,
			f.Header.Get(frame.Message), f.Header.Get(proto.HeaderCode))
	}
}

// connect performs the CONNECT handshake with a bearer token and expects CONNECTED.
func connect(ctx context.Context, t *testing.T, conn *websocket.Conn, token string) *frame.Frame {
	t.Helper()
	writeFrame(ctx, t, conn, frame.New(frame.CONNECT,
		frame.AcceptVersion, "1.2",
		frame.Host, "localhost",
		proto.HeaderAuthorization, "Bearer "+token,
	))
	f := readFrame(ctx, t, conn)
	expectCommand(t, f, frame.CONNECTED)
	return f
}
