package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tarkov-database/identity-server/store"
	"github.com/tarkov-database/identity-server/vault"
)

// Store is a PostgreSQL implementation of [store.Store]. Handle uniqueness
// is a unique index and consume-and-chain runs in one transaction with a
// conditional update, so rotation is linearizable per session row.
type Store struct{ db *DB }

// New constructs a Store over the given database.
func New(db *DB) *Store { return &Store{db: db} }

// CreateAccount implements [store.Store].
func (s *Store) CreateAccount(ctx context.Context, acc *store.Account) error {
	const q = `
INSERT INTO accounts (id, handle, password_hash, recovery_ct, recovery_nonce, created_at, revoked)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	var ct, nonce []byte
	if acc.Recovery != nil {
		ct, nonce = acc.Recovery.Ciphertext, acc.Recovery.Nonce
	}

	_, err := s.db.Pool.Exec(ctx, q, acc.ID, acc.Handle, acc.PasswordHash, ct, nonce, acc.CreatedAt, acc.Revoked)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

const accountColumns = `id, handle, password_hash, recovery_ct, recovery_nonce, created_at, revoked`

// GetAccount implements [store.Store].
func (s *Store) GetAccount(ctx context.Context, id string) (*store.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(s.db.Pool.QueryRow(ctx, q, id))
}

// FindAccountByHandle implements [store.Store].
func (s *Store) FindAccountByHandle(ctx context.Context, handle string) (*store.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE lower(handle) = lower($1)`
	return scanAccount(s.db.Pool.QueryRow(ctx, q, handle))
}

func scanAccount(row pgx.Row) (*store.Account, error) {
	var (
		acc       store.Account
		ct, nonce []byte
	)
	if err := row.Scan(&acc.ID, &acc.Handle, &acc.PasswordHash, &ct, &nonce, &acc.CreatedAt, &acc.Revoked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if len(ct) > 0 {
		acc.Recovery = &vault.Sealed{Ciphertext: ct, Nonce: nonce}
	}
	return &acc, nil
}

// UpdatePassword implements [store.Store].
func (s *Store) UpdatePassword(ctx context.Context, accountID, encodedHash string) error {
	const q = `UPDATE accounts SET password_hash = $2 WHERE id = $1`
	tag, err := s.db.Pool.Exec(ctx, q, accountID, encodedHash)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SetRecoveryCodes implements [store.Store].
func (s *Store) SetRecoveryCodes(ctx context.Context, accountID string, sealed *vault.Sealed) error {
	const q = `UPDATE accounts SET recovery_ct = $2, recovery_nonce = $3 WHERE id = $1`

	var ct, nonce []byte
	if sealed != nil {
		ct, nonce = sealed.Ciphertext, sealed.Nonce
	}

	tag, err := s.db.Pool.Exec(ctx, q, accountID, ct, nonce)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const insertSessionSQL = `
INSERT INTO sessions (id, account_id, lineage_id, parent_id, secret_ct, secret_nonce, issued_at, expires_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)`

// CreateSession implements [store.Store].
func (s *Store) CreateSession(ctx context.Context, sess *store.Session) error {
	_, err := s.db.Pool.Exec(ctx, insertSessionSQL,
		sess.ID, sess.AccountID, sess.LineageID, sess.ParentID,
		sess.Secret.Ciphertext, sess.Secret.Nonce, sess.IssuedAt, sess.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// GetSession implements [store.Store].
func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	const q = `
SELECT id, account_id, lineage_id, COALESCE(parent_id, ''), secret_ct, secret_nonce,
       issued_at, expires_at, rotated_at, consumed_at, revoked
FROM sessions WHERE id = $1`

	var (
		sess                  store.Session
		rotatedAt, consumedAt *time.Time
	)
	err := s.db.Pool.QueryRow(ctx, q, id).Scan(
		&sess.ID, &sess.AccountID, &sess.LineageID, &sess.ParentID,
		&sess.Secret.Ciphertext, &sess.Secret.Nonce,
		&sess.IssuedAt, &sess.ExpiresAt, &rotatedAt, &consumedAt, &sess.Revoked,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	if rotatedAt != nil {
		sess.RotatedAt = *rotatedAt
	}
	if consumedAt != nil {
		sess.ConsumedAt = *consumedAt
	}
	return &sess, nil
}

// ConsumeAndChain implements [store.Store]. The conditional UPDATE takes a
// row lock, so two concurrent rotations of the same session serialize and
// the loser observes consumed_at already set.
func (s *Store) ConsumeAndChain(ctx context.Context, oldID string, next *store.Session) error {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const consume = `
UPDATE sessions SET consumed_at = now(), rotated_at = now()
WHERE id = $1 AND NOT revoked AND consumed_at IS NULL`

	tag, err := tx.Exec(ctx, consume, oldID)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return s.classifyRotationMiss(ctx, tx, oldID)
	}

	_, err = tx.Exec(ctx, insertSessionSQL,
		next.ID, next.AccountID, next.LineageID, next.ParentID,
		next.Secret.Ciphertext, next.Secret.Nonce, next.IssuedAt, next.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) classifyRotationMiss(ctx context.Context, tx pgx.Tx, id string) error {
	const q = `SELECT revoked, consumed_at IS NOT NULL FROM sessions WHERE id = $1`

	var revoked, consumed bool
	if err := tx.QueryRow(ctx, q, id).Scan(&revoked, &consumed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if revoked {
		return store.ErrSessionRevoked
	}
	if consumed {
		return store.ErrSessionConsumed
	}
	return fmt.Errorf("%w: rotation miss on active session %s", store.ErrUnavailable, id)
}

// RevokeSession implements [store.Store]. Zero rows affected is success.
func (s *Store) RevokeSession(ctx context.Context, id string) error {
	const q = `UPDATE sessions SET revoked = true WHERE id = $1 AND NOT revoked`
	if _, err := s.db.Pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// RevokeLineage implements [store.Store].
func (s *Store) RevokeLineage(ctx context.Context, lineageID string) error {
	const q = `UPDATE sessions SET revoked = true WHERE lineage_id = $1 AND NOT revoked`
	if _, err := s.db.Pool.Exec(ctx, q, lineageID); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// RevokeAllForAccount implements [store.Store].
func (s *Store) RevokeAllForAccount(ctx context.Context, accountID string) error {
	const q = `UPDATE sessions SET revoked = true WHERE account_id = $1 AND NOT revoked`
	if _, err := s.db.Pool.Exec(ctx, q, accountID); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// Ping implements [store.Store].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}
