package store

import (
	"context"
	"errors"
	"time"

	"github.com/tarkov-database/identity-server/vault"
)

// Sentinel errors shared by all store implementations. Engine code matches
// on these and never on backend-specific errors.
var (
	// ErrConflict indicates a unique-handle violation on account creation.
	ErrConflict = errors.New("account handle already exists")

	// ErrNotFound indicates the addressed account or session does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrSessionConsumed indicates the session was already consumed by a
	// rotation. Presenting it again is a reuse signal, not a race to retry.
	ErrSessionConsumed = errors.New("session already consumed")

	// ErrSessionRevoked indicates the session was explicitly revoked.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrUnavailable wraps backend transport failures. Not retried by the
	// engine; a partial write without idempotency keys is unsafe to replay.
	ErrUnavailable = errors.New("store unavailable")
)

// Account is an identity record. Owned exclusively by the store; mutated
// only through engine operations.
type Account struct {
	ID           string
	Handle       string
	PasswordHash string
	Recovery     *vault.Sealed
	CreatedAt    time.Time
	Revoked      bool
}

// Session is one outstanding refresh-token grant. The refresh secret is
// stored only as vault ciphertext. Rotation appends a successor row and
// marks this one consumed; rows are never mutated in place beyond the
// consumed/revoked flags, preserving the audit trail.
type Session struct {
	ID        string
	AccountID string

	// LineageID is the ID of the root session of the rotation chain. Every
	// successor inherits it, so compromise response can revoke the whole
	// chain with one lookup.
	LineageID string

	// ParentID links to the session this one was rotated from. Empty for
	// chain roots.
	ParentID string

	Secret vault.Sealed

	IssuedAt   time.Time
	ExpiresAt  time.Time
	RotatedAt  time.Time
	ConsumedAt time.Time
	Revoked    bool
}

// Active reports whether the session can still be rotated: not consumed and
// not revoked. Expiry is checked lazily by the engine against ExpiresAt.
func (s *Session) Active() bool {
	return !s.Revoked && s.ConsumedAt.IsZero()
}

// Store is the persistence abstraction over accounts and sessions. All
// mutation is expressed as store-level atomic operations; callers never
// compose read-modify-write sequences.
type Store interface {
	// CreateAccount inserts a new account. Handle uniqueness is enforced by
	// the storage layer itself; a duplicate fails with [ErrConflict].
	CreateAccount(ctx context.Context, acc *Account) error

	// GetAccount loads an account by ID, [ErrNotFound] if absent.
	GetAccount(ctx context.Context, id string) (*Account, error)

	// FindAccountByHandle loads an account by login handle, [ErrNotFound]
	// if absent.
	FindAccountByHandle(ctx context.Context, handle string) (*Account, error)

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, accountID, encodedHash string) error

	// SetRecoveryCodes replaces the sealed recovery secret. A nil value
	// clears it.
	SetRecoveryCodes(ctx context.Context, accountID string, sealed *vault.Sealed) error

	// CreateSession inserts a new chain-root session.
	CreateSession(ctx context.Context, sess *Session) error

	// GetSession loads a session by ID, [ErrNotFound] if absent. Consumed
	// and revoked sessions are returned, not hidden; the engine needs them
	// for reuse detection.
	GetSession(ctx context.Context, id string) (*Session, error)

	// ConsumeAndChain atomically marks the old session consumed and inserts
	// its successor. Either both happen or neither. Under concurrent calls
	// against the same old session exactly one succeeds; the rest fail with
	// [ErrSessionConsumed]. Fails with [ErrSessionRevoked] or [ErrNotFound]
	// without inserting when the old session is revoked or missing.
	ConsumeAndChain(ctx context.Context, oldID string, next *Session) error

	// RevokeSession marks a session revoked. Idempotent: revoking an
	// already-revoked or unknown session succeeds silently.
	RevokeSession(ctx context.Context, id string) error

	// RevokeLineage revokes every session in the rotation chain rooted at
	// the given lineage ID.
	RevokeLineage(ctx context.Context, lineageID string) error

	// RevokeAllForAccount revokes every session owned by the account. Zero
	// sessions is success.
	RevokeAllForAccount(ctx context.Context, accountID string) error

	// Ping reports backend reachability.
	Ping(ctx context.Context) error
}
