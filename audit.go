package identity

import (
	"context"

	"go.uber.org/zap"

	"github.com/tarkov-database/identity-server/internal/audit"
)

// AuditEvent is the record handed to audit sinks.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher. Emit is
// called from a single dispatcher goroutine; slow sinks delay delivery
// but never the engine's request path.
type AuditSink = audit.Sink

// Audit event types emitted by the engine.
const (
	AuditAccountCreated  = audit.TypeAccountCreated
	AuditLoginSucceeded  = audit.TypeLoginSucceeded
	AuditLoginFailed     = audit.TypeLoginFailed
	AuditLoginThrottled  = audit.TypeLoginThrottled
	AuditSessionRefresh  = audit.TypeSessionRefresh
	AuditSessionReuse    = audit.TypeSessionReuse
	AuditSessionRevoked  = audit.TypeSessionRevoked
	AuditAccountRevoked  = audit.TypeAccountRevoked
	AuditPasswordChanged = audit.TypePasswordChanged
	AuditRecoveryIssued  = audit.TypeRecoveryIssued
	AuditRecoveryUsed    = audit.TypeRecoveryUsed
)

// NewAuditChannelSink returns a sink buffering events in a channel,
// readable via its Events method. Mainly for tests and small consumers.
func NewAuditChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// ZapSink logs audit events through a zap logger at info level.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink returns a sink writing events to l.
func NewZapSink(l *zap.Logger) *ZapSink {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapSink{log: l}
}

// Emit implements AuditSink.
func (s *ZapSink) Emit(_ context.Context, event AuditEvent) {
	s.log.Info("audit",
		zap.Time("timestamp", event.Timestamp),
		zap.String("type", event.Type),
		zap.String("account_id", event.AccountID),
		zap.String("session_id", event.SessionID),
		zap.String("lineage_id", event.LineageID),
		zap.String("ip", event.IP),
		zap.Bool("success", event.Success),
		zap.String("error", event.Error),
	)
}
