package proto

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-stomp/stomp/v3/frame"
)

// Subprotocols are the WebSocket subprotocols advertised for STOMP.
var Subprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

// ContentTypeJSON is set on every MESSAGE frame.
const ContentTypeJSON = "application/json"

// HeaderCode carries the error code on ERROR frames.
const HeaderCode = "code"

// HeaderAuthorization is the native CONNECT header holding the bearer credential.
const HeaderAuthorization = "Authorization"

var supportedVersions = []string{"1.2", "1.1", "1.0"}

// NegotiateVersion picks the highest protocol version both sides speak. A missing
// accept-version header means 1.0.
func NegotiateVersion(acceptVersion string) (string, bool) {
	if strings.TrimSpace(acceptVersion) == "" {
		return "1.0", true
	}
	offered := strings.Split(acceptVersion, ",")
	for _, v := range supportedVersions {
		for _, o := range offered {
			if strings.TrimSpace(o) == v {
				return v, true
			}
		}
	}
	return "", false
}

// Decode parses one STOMP frame from a WebSocket message. A heart-beat yields nil.
func Decode(data []byte) (*frame.Frame, error) {
	f, err := frame.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

// Encode renders a frame for a single WebSocket message.
func Encode(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// Connected builds the CONNECTED reply.
func Connected(version, userName, session string) *frame.Frame {
	return frame.New(frame.CONNECTED,
		frame.Version, version,
		frame.HeartBeat, "0,0",
		frame.Session, session,
		"user-name", userName,
	)
}

// ErrorFrame builds an ERROR frame. receiptID is echoed when non-empty.
func ErrorFrame(code, message, receiptID string) *frame.Frame {
	f := frame.New(frame.ERROR,
		frame.Message, message,
		HeaderCode, code,
	)
	if receiptID != "" {
		f.Header.Set(frame.ReceiptId, receiptID)
	}
	f.Body = []byte(message)
	f.Header.Set(frame.ContentType, "text/plain")
	f.Header.Set(frame.ContentLength, strconv.Itoa(len(f.Body)))
	return f
}

// Receipt acknowledges a client frame that asked for one.
func Receipt(receiptID string) *frame.Frame {
	return frame.New(frame.RECEIPT, frame.ReceiptId, receiptID)
}

// Message builds a MESSAGE frame for one subscription.
func Message(destination, subscriptionID, messageID string, body []byte) *frame.Frame {
	f := frame.New(frame.MESSAGE,
		frame.Destination, destination,
		frame.Subscription, subscriptionID,
		frame.MessageId, messageID,
		frame.ContentType, ContentTypeJSON,
		frame.ContentLength, strconv.Itoa(len(body)),
	)
	f.Body = body
	return f
}
