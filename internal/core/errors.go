package core

import "errors"

// Error codes for domain errors. They travel to clients in the ERROR frame "code" header.
const (
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotConnected     = "not_connected"
	ErrCodeBadRequest       = "bad_request"
	ErrCodeBadDestination   = "bad_destination"
	ErrCodeSenderNotFound   = "sender_not_found"
	ErrCodeRoomNotFound     = "room_not_found"
	ErrCodeMessageNotFound  = "message_not_found"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
	ErrCodeDuplicateSubID   = "duplicate_subscription"
	ErrCodeUnknownSubID     = "unknown_subscription"
	ErrCodeUnsupportedFrame = "unsupported_frame"
	ErrCodeAlreadyConnected = "already_connected"
)

var (
	ErrUnauthorized          = errors.New("authentication failed")
	ErrAlreadyAuthenticated  = errors.New("session already authenticated")
	ErrSenderNotFound        = errors.New("sender not found")
	ErrRoomNotFound          = errors.New("chat room not found")
	ErrMessageNotFound       = errors.New("chat message not found")
	ErrBadRequest            = errors.New("bad request")
	ErrDuplicateSubscription = errors.New("subscription id already in use")
	ErrUnknownSubscription   = errors.New("unknown subscription id")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// NewError builds a CoreError.
func NewError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// AsCoreError maps domain sentinels to their wire code. Anything unrecognised is
// reported as an internal error so storage details never leak to clients.
func AsCoreError(err error) *CoreError {
	var ce *CoreError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, ErrUnauthorized):
		return NewError(ErrCodeUnauthorized, ErrUnauthorized.Error())
	case errors.Is(err, ErrSenderNotFound):
		return NewError(ErrCodeSenderNotFound, ErrSenderNotFound.Error())
	case errors.Is(err, ErrRoomNotFound):
		return NewError(ErrCodeRoomNotFound, ErrRoomNotFound.Error())
	case errors.Is(err, ErrMessageNotFound):
		return NewError(ErrCodeMessageNotFound, ErrMessageNotFound.Error())
	case errors.Is(err, ErrBadRequest):
		return NewError(ErrCodeBadRequest, err.Error())
	case errors.Is(err, ErrDuplicateSubscription):
		return NewError(ErrCodeDuplicateSubID, ErrDuplicateSubscription.Error())
	case errors.Is(err, ErrUnknownSubscription):
		return NewError(ErrCodeUnknownSubID, ErrUnknownSubscription.Error())
	default:
		return NewError(ErrCodeInternal, "internal error")
	}
}
