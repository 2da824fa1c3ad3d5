// Package push delivers notifications to device registration tokens and
// classifies delivery failures.
package push

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies a failed delivery.
type FailureKind string

const (
	// FailureInvalidArgument means the token is malformed.
	FailureInvalidArgument FailureKind = "INVALID_ARGUMENT"
	// FailureUnregistered means the provider no longer knows the token.
	FailureUnregistered FailureKind = "UNREGISTERED"
	// FailureOther covers transient and unknown failures, timeouts included.
	FailureOther FailureKind = "OTHER"
)

// TokenInvalid reports whether the failure means the token should be discarded.
func (k FailureKind) TokenInvalid() bool {
	return k == FailureInvalidArgument || k == FailureUnregistered
}

// NotificationRequest is one notification to one device.
type NotificationRequest struct {
	Token    string
	Title    string
	Body     string
	Deeplink string
}

// DeliveryResult is the outcome of one send. Err is nil on success.
type DeliveryResult struct {
	Token     string
	MessageID string
	Kind      FailureKind
	Err       error
}

// OK reports whether the delivery succeeded.
func (r DeliveryResult) OK() bool {
	return r.Err == nil
}

// DeliveryError is returned by senders that know the failure kind.
type DeliveryError struct {
	Kind FailureKind
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("push %s: %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Sender performs a single synchronous delivery and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, req NotificationRequest) (string, error)
}

// Classify maps an error returned by a Sender (or the transport around it) to a
// failure kind. Anything not explicitly classified is OTHER, including an open
// breaker and an expired deadline.
func Classify(err error) FailureKind {
	var de *DeliveryError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &de):
		return de.Kind
	default:
		return FailureOther
	}
}
