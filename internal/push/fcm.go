package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// DeeplinkKey is the data key carrying the in-app link.
const DeeplinkKey = "deeplink"

// FCMSender delivers notifications through Firebase Cloud Messaging.
type FCMSender struct {
	client *messaging.Client
}

// NewFCMSender initialises a Firebase app. An empty credentialsFile falls back to
// application default credentials.
func NewFCMSender(ctx context.Context, projectID, credentialsFile string) (*FCMSender, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init messaging client: %w", err)
	}

	return &FCMSender{client: client}, nil
}

// Send delivers req and classifies provider errors.
func (s *FCMSender) Send(ctx context.Context, req NotificationRequest) (string, error) {
	id, err := s.client.Send(ctx, buildMessage(req))
	if err != nil {
		return "", &DeliveryError{Kind: classifyFCM(err), Err: err}
	}
	return id, nil
}

func buildMessage(req NotificationRequest) *messaging.Message {
	msg := &messaging.Message{
		Token: req.Token,
		Notification: &messaging.Notification{
			Title: req.Title,
			Body:  req.Body,
		},
	}
	if req.Deeplink != "" {
		msg.Data = map[string]string{DeeplinkKey: req.Deeplink}
	}
	return msg
}

func classifyFCM(err error) FailureKind {
	switch {
	case errorutils.IsInvalidArgument(err):
		return FailureInvalidArgument
	case messaging.IsUnregistered(err):
		return FailureUnregistered
	default:
		return FailureOther
	}
}
