package audit

import (
	"context"
	"time"
)

// Event types emitted by the identity engine.
const (
	TypeAccountCreated  = "account.created"
	TypeLoginSucceeded  = "login.succeeded"
	TypeLoginFailed     = "login.failed"
	TypeLoginThrottled  = "login.throttled"
	TypeSessionRefresh  = "session.refreshed"
	TypeSessionReuse    = "session.reuse_detected"
	TypeSessionRevoked  = "session.revoked"
	TypeAccountRevoked  = "account.sessions_revoked"
	TypePasswordChanged = "password.changed"
	TypeRecoveryIssued  = "recovery.issued"
	TypeRecoveryUsed    = "recovery.used"
)

// Event is the canonical audit record.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	AccountID string    `json:"account_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	LineageID string    `json:"lineage_id,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel, mainly for tests.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}
