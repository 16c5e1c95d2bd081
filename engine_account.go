package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tarkov-database/identity-server/password"
	"github.com/tarkov-database/identity-server/store"
)

// CreateAccount registers a new account. The handle is unique
// case-insensitively; a duplicate returns ErrConflict. Returns the new
// account id.
func (e *Engine) CreateAccount(ctx context.Context, handle, pass string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	handle = strings.TrimSpace(handle)
	if handle == "" {
		return "", ErrInvalidCredentials
	}

	hash, err := e.hasher.Hash(pass)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) {
			return "", ErrWeakPassword
		}
		return "", e.storeErr("hash password", err)
	}

	acc := &store.Account{
		ID:           uuid.NewString(),
		Handle:       handle,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := e.store.CreateAccount(ctx, acc); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return "", ErrConflict
		}
		return "", e.storeErr("create account", err)
	}

	e.emit(ctx, AuditEvent{Type: AuditAccountCreated, AccountID: acc.ID, Success: true})
	e.log.Info("account created", zap.String("account_id", acc.ID))
	return acc.ID, nil
}
