package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tarkov-database/identity-server/internal"
	"github.com/tarkov-database/identity-server/internal/audit"
	"github.com/tarkov-database/identity-server/internal/rate"
	"github.com/tarkov-database/identity-server/jwt"
	"github.com/tarkov-database/identity-server/password"
	"github.com/tarkov-database/identity-server/store"
	"github.com/tarkov-database/identity-server/vault"
)

// Engine implements the session lifecycle. Construct it through
// [Builder]; the zero value is not usable.
type Engine struct {
	cfg     Config
	store   store.Store
	hasher  *password.Hasher
	vault   *vault.Vault
	tokens  *jwt.Manager
	limiter *rate.Limiter
	audit   *audit.Dispatcher
	metrics *Metrics
	log     *zap.Logger
	idp     IdentityProvider

	// dummyHash equalizes password verification time for unknown handles.
	dummyHash string
}

// Close flushes the audit dispatcher. The engine must not be used
// afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// Ping reports the health of the credential store.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// MetricsSnapshot copies the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports audit events shed because the dispatcher buffer
// was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Provider returns the identity provider attached at build time, or nil.
func (e *Engine) Provider() IdentityProvider {
	if e == nil {
		return nil
	}
	return e.idp
}

func (e *Engine) emit(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}

// storeErr collapses backend failures into ErrStorage while keeping the
// cause in the log.
func (e *Engine) storeErr(op string, err error) error {
	e.log.Error("store operation failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %s", ErrStorage, op)
}

// newSession builds a sealed session record plus its refresh token
// plaintext. The secret is bound to the account id through the vault's
// associated data.
func (e *Engine) newSession(accountID, lineageID, parentID string, expiresAt time.Time) (*store.Session, string, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, "", err
	}
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, "", err
	}

	sealed, err := e.vault.Seal(secret[:], []byte(accountID))
	if err != nil {
		return nil, "", err
	}

	id := sid.String()
	if lineageID == "" {
		lineageID = id
	}
	now := time.Now().UTC()

	sess := &store.Session{
		ID:        id,
		AccountID: accountID,
		LineageID: lineageID,
		ParentID:  parentID,
		Secret:    *sealed,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}

	refresh, err := internal.EncodeRefreshToken(id, secret)
	if err != nil {
		return nil, "", err
	}
	return sess, refresh, nil
}

// issueTokens mints the access token for a session and packages the
// refresh plaintext.
func (e *Engine) issueTokens(accountID string, sess *store.Session, refreshToken string) (*TokenPair, error) {
	access, err := e.tokens.CreateAccess(accountID, sess.ID, nil)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  time.Now().UTC().Add(e.cfg.JWT.AccessTTL),
		RefreshExpiresAt: sess.ExpiresAt,
	}, nil
}

// verifySessionSecret opens the sealed secret and compares it with the
// presented one in constant time.
func (e *Engine) verifySessionSecret(sess *store.Session, presented [internal.RefreshSecretSize]byte) bool {
	plain, err := e.vault.Open(&sess.Secret, []byte(sess.AccountID))
	if err != nil {
		return false
	}
	return internal.SecretsEqual(plain, presented[:])
}

func isThrottleErr(err error) bool {
	return errors.Is(err, rate.ErrRateLimited)
}
