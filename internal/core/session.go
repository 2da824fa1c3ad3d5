package core

import "sync"

// Delivery is one broadcast payload routed to a single subscription.
type Delivery struct {
	Topic          string
	SubscriptionID string
	Body           []byte
}

// Session is the per-connection state of the messaging channel. It holds at most
// one Identity, attached once by the connection authenticator.
type Session struct {
	ID       string
	Outbound chan Delivery

	attrs map[string]string

	mu       sync.RWMutex
	identity *Identity
	subs     map[string]string // subscription id -> topic
}

// NewSession constructs a session with handshake attributes and an outbound buffer.
func NewSession(id string, attrs map[string]string, buffer int) *Session {
	if buffer <= 0 {
		buffer = 1
	}
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	return &Session{
		ID:       id,
		Outbound: make(chan Delivery, buffer),
		attrs:    copied,
		subs:     make(map[string]string),
	}
}

// Attribute returns a connection-level metadata value captured at handshake.
func (s *Session) Attribute(key string) string {
	return s.attrs[key]
}

// Attach binds the authenticated identity. A nil identity or a second attach is rejected.
func (s *Session) Attach(identity *Identity) error {
	if identity == nil {
		return ErrUnauthorized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity != nil {
		return ErrAlreadyAuthenticated
	}
	id := *identity
	s.identity = &id
	return nil
}

// Identity returns the attached identity, if any.
func (s *Session) Identity() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

// Authenticated reports whether an identity is attached.
func (s *Session) Authenticated() bool {
	_, ok := s.Identity()
	return ok
}

// SubscriptionCount returns the number of active subscriptions.
func (s *Session) SubscriptionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// deliver queues a delivery without blocking. Returns false if the buffer is full.
func (s *Session) deliver(d Delivery) bool {
	select {
	case s.Outbound <- d:
		return true
	default:
		// Drop if slow consumer.
		return false
	}
}
