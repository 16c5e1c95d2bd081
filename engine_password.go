package identity

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tarkov-database/identity-server/password"
	"github.com/tarkov-database/identity-server/store"
)

// ChangePassword verifies the current password, stores a fresh hash of
// the new one, and revokes every outstanding session of the account.
// Access tokens already in the wild stay valid until they expire.
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldPass, newPass string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	acc, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return e.storeErr("get account", err)
	}

	ok, err := e.hasher.Verify(oldPass, acc.PasswordHash)
	if err != nil {
		return e.storeErr("verify password", err)
	}
	if !ok {
		e.emit(ctx, AuditEvent{
			Type:      AuditPasswordChanged,
			AccountID: accountID,
			Success:   false,
			Error:     ErrInvalidCredentials.Error(),
		})
		return ErrInvalidCredentials
	}

	hash, err := e.hasher.Hash(newPass)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) {
			return ErrWeakPassword
		}
		return e.storeErr("hash password", err)
	}

	if err := e.store.UpdatePassword(ctx, accountID, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return e.storeErr("update password", err)
	}

	if err := e.store.RevokeAllForAccount(ctx, accountID); err != nil {
		// The password did change; sessions must not survive it.
		e.log.Error("post-change revocation failed",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		return e.storeErr("revoke account sessions", err)
	}

	if e.limiter != nil {
		if err := e.limiter.Reset(ctx, acc.Handle, clientIPFromContext(ctx)); err != nil {
			e.log.Warn("throttle reset failed", zap.Error(err))
		}
	}

	e.metrics.passwordChanges.Add(1)
	e.emit(ctx, AuditEvent{Type: AuditPasswordChanged, AccountID: accountID, Success: true})
	e.log.Info("password changed", zap.String("account_id", accountID))
	return nil
}
