package identity

import (
	"context"
	"errors"

	"github.com/tarkov-database/identity-server/internal"
	"github.com/tarkov-database/identity-server/store"
)

// Logout revokes the session behind a refresh token. It is idempotent:
// revoking an already revoked, consumed, or unknown session succeeds.
// Malformed tokens and wrong secrets fail with ErrTokenInvalid; a bare
// session id, which leaks as the access token's sid claim, is not
// enough to kill the session.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	sid, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return ErrTokenInvalid
	}

	sess, err := e.store.GetSession(ctx, sid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return e.storeErr("get session", err)
	}
	if !e.verifySessionSecret(sess, secret) {
		return ErrTokenInvalid
	}

	if err := e.store.RevokeSession(ctx, sid); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return e.storeErr("revoke session", err)
	}

	e.metrics.logouts.Add(1)
	e.emit(ctx, AuditEvent{Type: AuditSessionRevoked, SessionID: sid, Success: true})
	return nil
}

// RevokeAllForAccount kills every session of an account across all
// lineages. An account with no live sessions is a successful no-op.
func (e *Engine) RevokeAllForAccount(ctx context.Context, accountID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.store.RevokeAllForAccount(ctx, accountID); err != nil {
		return e.storeErr("revoke account sessions", err)
	}

	e.metrics.revokeAll.Add(1)
	e.emit(ctx, AuditEvent{Type: AuditAccountRevoked, AccountID: accountID, Success: true})
	return nil
}
