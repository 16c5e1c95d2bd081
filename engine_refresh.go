package identity

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tarkov-database/identity-server/internal"
	"github.com/tarkov-database/identity-server/store"
)

// Refresh rotates a refresh token: the presented session is atomically
// consumed and a chained successor takes its place. A token presented
// after its session was already consumed or revoked is treated as theft
// evidence; the whole lineage is revoked and ErrRefreshReuse returned.
// Under concurrent refreshes of the same token exactly one caller wins.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	sid, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.metrics.tokenRejected.Add(1)
		return nil, ErrTokenInvalid
	}

	sess, err := e.store.GetSession(ctx, sid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.metrics.tokenRejected.Add(1)
			return nil, ErrTokenInvalid
		}
		return nil, e.storeErr("get session", err)
	}

	// The secret must verify before any state is taken at face value,
	// otherwise a guessed session id could revoke a victim's lineage.
	if !e.verifySessionSecret(sess, secret) {
		e.metrics.tokenRejected.Add(1)
		return nil, ErrTokenInvalid
	}

	if sess.Revoked || !sess.ConsumedAt.IsZero() {
		return nil, e.reuseDetected(ctx, sess)
	}

	if time.Now().UTC().After(sess.ExpiresAt) {
		e.metrics.refreshExpired.Add(1)
		return nil, ErrRefreshExpired
	}

	// The successor inherits the lineage expiry; rotation never extends
	// the credential's life.
	next, nextRefresh, err := e.newSession(sess.AccountID, sess.LineageID, sess.ID, sess.ExpiresAt)
	if err != nil {
		return nil, e.storeErr("build session", err)
	}

	if err := e.store.ConsumeAndChain(ctx, sess.ID, next); err != nil {
		switch {
		case errors.Is(err, store.ErrSessionConsumed), errors.Is(err, store.ErrSessionRevoked):
			// Lost the race against a concurrent refresh or revocation.
			return nil, e.reuseDetected(ctx, sess)
		case errors.Is(err, store.ErrNotFound):
			e.metrics.tokenRejected.Add(1)
			return nil, ErrTokenInvalid
		}
		return nil, e.storeErr("consume and chain", err)
	}

	pair, err := e.issueTokens(sess.AccountID, next, nextRefresh)
	if err != nil {
		return nil, e.storeErr("issue tokens", err)
	}

	e.metrics.refreshSuccess.Add(1)
	e.emit(ctx, AuditEvent{
		Type:      AuditSessionRefresh,
		AccountID: sess.AccountID,
		SessionID: next.ID,
		LineageID: next.LineageID,
		Success:   true,
	})
	return pair, nil
}

// reuseDetected revokes every session in the lineage and reports the
// replay. Revocation failure is logged but the caller still gets
// ErrRefreshReuse; the credential is burned either way.
func (e *Engine) reuseDetected(ctx context.Context, sess *store.Session) error {
	e.metrics.refreshReuse.Add(1)

	if err := e.store.RevokeLineage(ctx, sess.LineageID); err != nil {
		e.log.Error("lineage revocation failed",
			zap.String("lineage_id", sess.LineageID),
			zap.Error(err),
		)
	}

	e.emit(ctx, AuditEvent{
		Type:      AuditSessionReuse,
		AccountID: sess.AccountID,
		SessionID: sess.ID,
		LineageID: sess.LineageID,
		Success:   false,
		Error:     ErrRefreshReuse.Error(),
	})
	e.log.Warn("refresh token reuse detected",
		zap.String("account_id", sess.AccountID),
		zap.String("session_id", sess.ID),
		zap.String("lineage_id", sess.LineageID),
	)
	return ErrRefreshReuse
}
