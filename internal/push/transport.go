package push

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/linkerbell/campus-market-chat/internal/log"
	"github.com/linkerbell/campus-market-chat/internal/metrics"
)

// Options tunes a Transport.
type Options struct {
	// Timeout bounds a single send. Zero disables the deadline.
	Timeout time.Duration
	// BreakerFailures is the number of consecutive OTHER failures that opens the breaker.
	BreakerFailures uint32
	// BreakerTimeout is how long the breaker stays open before probing again.
	BreakerTimeout time.Duration
}

// Transport sends notifications asynchronously through a Sender guarded by a
// circuit breaker.
type Transport struct {
	sender  Sender
	cb      *gobreaker.CircuitBreaker[string]
	timeout time.Duration
	logger  *zerolog.Logger
}

// NewTransport wraps sender. Token-level failures do not count against the breaker.
func NewTransport(sender Sender, opts Options, logger *zerolog.Logger) *Transport {
	if logger == nil {
		logger = log.Nop()
	}
	l := logger.With().Str("component", "push").Logger()

	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	settings := gobreaker.Settings{
		Name:        "push",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || Classify(err).TokenInvalid()
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("push breaker state changed")
		},
	}

	return &Transport{
		sender:  sender,
		cb:      gobreaker.NewCircuitBreaker[string](settings),
		timeout: opts.Timeout,
		logger:  &l,
	}
}

// SendAsync starts a delivery and returns a channel that receives exactly one
// result. The send outlives ctx cancellation but keeps its values.
func (t *Transport) SendAsync(ctx context.Context, req NotificationRequest) <-chan DeliveryResult {
	out := make(chan DeliveryResult, 1)

	go func() {
		defer close(out)
		out <- t.send(context.WithoutCancel(ctx), req)
	}()

	return out
}

func (t *Transport) send(ctx context.Context, req NotificationRequest) DeliveryResult {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := time.Now()
	id, err := t.cb.Execute(func() (string, error) {
		return t.sender.Send(ctx, req)
	})
	metrics.PushDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		kind := Classify(err)
		metrics.PushResults.WithLabelValues(metricKind(kind)).Inc()
		return DeliveryResult{Token: req.Token, Kind: kind, Err: err}
	}

	metrics.PushResults.WithLabelValues("success").Inc()
	return DeliveryResult{Token: req.Token, MessageID: id}
}

func metricKind(k FailureKind) string {
	switch k {
	case FailureInvalidArgument:
		return "invalid_argument"
	case FailureUnregistered:
		return "unregistered"
	default:
		return "other"
	}
}
