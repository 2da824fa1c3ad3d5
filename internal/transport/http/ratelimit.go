package http

import "golang.org/x/time/rate"

// sendLimiter throttles SEND frames on one connection.
type sendLimiter struct {
	lim *rate.Limiter
}

func newSendLimiter(perSecond float64, burst int) *sendLimiter {
	if perSecond <= 0 {
		return &sendLimiter{}
	}
	if burst <= 0 {
		burst = 1
	}
	return &sendLimiter{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *sendLimiter) allow() bool {
	if l == nil || l.lim == nil {
		return true
	}
	return l.lim.Allow()
}
