package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tarkov-database/identity-server/store"
)

// Login verifies handle and password and opens a new session lineage.
// Unknown handles and wrong passwords both return ErrInvalidCredentials;
// nothing in the error or its timing distinguishes them.
func (e *Engine) Login(ctx context.Context, handle, pass string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	handle = strings.TrimSpace(handle)
	ip := clientIPFromContext(ctx)

	if e.limiter != nil {
		if err := e.limiter.CheckLogin(ctx, handle, ip); err != nil {
			if isThrottleErr(err) {
				e.metrics.loginThrottled.Add(1)
				e.emit(ctx, AuditEvent{Type: AuditLoginThrottled, Success: false})
				return nil, ErrRateLimited
			}
			return nil, e.storeErr("login throttle", err)
		}
	}

	acc, err := e.store.FindAccountByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn the same hashing work as a real verification.
			_, _ = e.hasher.Verify(pass, e.dummyHash)
			return nil, e.loginFailed(ctx, handle, ip, "")
		}
		return nil, e.storeErr("find account", err)
	}

	ok, err := e.hasher.Verify(pass, acc.PasswordHash)
	if err != nil {
		return nil, e.storeErr("verify password", err)
	}
	if !ok || acc.Revoked {
		return nil, e.loginFailed(ctx, handle, ip, acc.ID)
	}

	e.maybeRehash(ctx, acc, pass)

	if e.limiter != nil {
		if err := e.limiter.Reset(ctx, handle, ip); err != nil {
			e.log.Warn("throttle reset failed", zap.Error(err))
		}
	}

	return e.openSession(ctx, acc.ID)
}

// openSession creates a fresh lineage root session for the account and
// mints its token pair.
func (e *Engine) openSession(ctx context.Context, accountID string) (*TokenPair, error) {
	expiresAt := time.Now().UTC().Add(e.cfg.RefreshTTL)
	sess, refresh, err := e.newSession(accountID, "", "", expiresAt)
	if err != nil {
		return nil, e.storeErr("build session", err)
	}
	if err := e.store.CreateSession(ctx, sess); err != nil {
		return nil, e.storeErr("create session", err)
	}

	pair, err := e.issueTokens(accountID, sess, refresh)
	if err != nil {
		return nil, e.storeErr("issue tokens", err)
	}

	e.metrics.loginSuccess.Add(1)
	e.emit(ctx, AuditEvent{
		Type:      AuditLoginSucceeded,
		AccountID: accountID,
		SessionID: sess.ID,
		LineageID: sess.LineageID,
		Success:   true,
	})
	e.log.Info("login succeeded",
		zap.String("account_id", accountID),
		zap.String("session_id", sess.ID),
	)
	return pair, nil
}

func (e *Engine) loginFailed(ctx context.Context, handle, ip, accountID string) error {
	e.metrics.loginFailure.Add(1)
	e.emit(ctx, AuditEvent{
		Type:      AuditLoginFailed,
		AccountID: accountID,
		Success:   false,
		Error:     ErrInvalidCredentials.Error(),
	})

	if e.limiter != nil {
		if err := e.limiter.RecordFailure(ctx, handle, ip); err != nil {
			if isThrottleErr(err) {
				e.metrics.loginThrottled.Add(1)
				return ErrRateLimited
			}
			e.log.Warn("throttle record failed", zap.Error(err))
		}
	}
	return ErrInvalidCredentials
}

// maybeRehash upgrades stored hashes whose cost parameters lag the
// configured ones. Failure is not fatal to the login.
func (e *Engine) maybeRehash(ctx context.Context, acc *store.Account, pass string) {
	needs, err := e.hasher.NeedsRehash(acc.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := e.hasher.Hash(pass)
	if err != nil {
		return
	}
	if err := e.store.UpdatePassword(ctx, acc.ID, hash); err != nil {
		e.log.Warn("hash upgrade failed", zap.String("account_id", acc.ID), zap.Error(err))
	}
}
