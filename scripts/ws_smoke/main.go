package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3/frame"

	"github.com/linkerbell/campus-market-chat/internal/core"
	"github.com/linkerbell/campus-market-chat/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "bearer token (see `campus-chat token`)")
	room := flag.Int64("room", 1, "chat room id")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" {
		return fmt.Errorf("-token is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, &websocket.DialOptions{Subprotocols: proto.Subprotocols})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(f *frame.Frame) error {
		data, err := proto.Encode(f)
		if err != nil {
			return err
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return fmt.Errorf("send %s: %w", f.Command, err)
		}
		return nil
	}
	recv := func() (*frame.Frame, error) {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return nil, fmt.Errorf("read: %w", err)
			}
			f, err := proto.Decode(data)
			if err != nil {
				return nil, err
			}
			if f == nil {
				continue
			}
			if f.Command == frame.ERROR {
				return nil, fmt.Errorf("server error %s: %s", f.Header.Get(proto.HeaderCode), f.Header.Get(frame.Message))
			}
			return f, nil
		}
	}

	if err := send(frame.New(frame.CONNECT,
		frame.AcceptVersion, "1.2",
		proto.HeaderAuthorization, "Bearer "+*token,
	)); err != nil {
		return err
	}
	connected, err := recv()
	if err != nil {
		return err
	}
	fmt.Printf("Connected: version=%s user=%s\n", connected.Header.Get(frame.Version), connected.Header.Get("user-name"))

	topic := core.RoomTopic(*room)
	if err := send(frame.New(frame.SUBSCRIBE, frame.Id, "smoke", frame.Destination, topic, frame.Receipt, "sub")); err != nil {
		return err
	}
	if _, err := recv(); err != nil {
		return err
	}

	body, err := json.Marshal(proto.ChattingRequest{Content: *text, ContentType: string(core.ContentTypeText)})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	sendFrame := frame.New(frame.SEND,
		frame.Destination, fmt.Sprintf("/chat/%d", *room),
		frame.ContentType, proto.ContentTypeJSON,
	)
	sendFrame.Body = body
	if err := send(sendFrame); err != nil {
		return err
	}

	for {
		f, err := recv()
		if err != nil {
			return err
		}
		if f.Command != frame.MESSAGE {
			continue
		}
		var msg proto.ChattingResponse
		if err := json.Unmarshal(f.Body, &msg); err != nil {
			return fmt.Errorf("unmarshal message: %w", err)
		}
		fmt.Printf("Message: room=%d chatting=%d user=%d content=%q at=%s\n",
			msg.ChatRoomID, msg.ChattingID, msg.UserID, msg.Content, msg.CreatedAt.Format(time.RFC3339))
		return nil
	}
}
