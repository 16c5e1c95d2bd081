package redisstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tarkov-database/identity-server/store"
	"github.com/tarkov-database/identity-server/vault"
)

// Rotation script status codes.
const (
	statusNotFound int64 = 0
	statusRevoked  int64 = 1
	statusConsumed int64 = 2
	statusOK       int64 = 3
)

// createAccountScript reserves the handle index and writes the account
// record in one step, so uniqueness is enforced by the storage layer
// without a check-then-insert window.
const createAccountScript = `
local reserved = redis.call("SETNX", KEYS[1], ARGV[1])
if reserved == 0 then
  return 0
end
redis.call("SET", KEYS[2], ARGV[2])
return 1
`

var createAccountLua = redis.NewScript(createAccountScript)

const updatePasswordScript = `
local raw = redis.call("GET", KEYS[1])
if not raw then
  return 0
end
local acc = cjson.decode(raw)
acc.password_hash = ARGV[1]
redis.call("SET", KEYS[1], cjson.encode(acc))
return 1
`

var updatePasswordLua = redis.NewScript(updatePasswordScript)

const setRecoveryScript = `
local raw = redis.call("GET", KEYS[1])
if not raw then
  return 0
end
local acc = cjson.decode(raw)
acc.recovery_ct = ARGV[1]
acc.recovery_nonce = ARGV[2]
redis.call("SET", KEYS[1], cjson.encode(acc))
return 1
`

var setRecoveryLua = redis.NewScript(setRecoveryScript)

// consumeAndChainScript marks the old session consumed and writes the
// successor in a single atomic step. Exactly one concurrent caller observes
// consumed_at == 0 and wins; the rest return the consumed status.
const consumeAndChainScript = `
local raw = redis.call("GET", KEYS[1])
if not raw then
  return 0
end
local sess = cjson.decode(raw)
if sess.revoked == true then
  return 1
end
if sess.consumed_at and sess.consumed_at > 0 then
  return 2
end

sess.consumed_at = tonumber(ARGV[2])
sess.rotated_at = tonumber(ARGV[2])

local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  ttl = 1000
end
redis.call("SET", KEYS[1], cjson.encode(sess), "PX", ttl)

local next_ttl = math.floor(tonumber(ARGV[3]))
redis.call("SET", KEYS[2], ARGV[1], "PX", next_ttl)
redis.call("SADD", KEYS[3], ARGV[4])
redis.call("PEXPIRE", KEYS[3], next_ttl)
redis.call("SADD", KEYS[4], ARGV[4])
redis.call("PEXPIRE", KEYS[4], next_ttl)
return 3
`

var consumeAndChainLua = redis.NewScript(consumeAndChainScript)

const revokeSessionScript = `
local raw = redis.call("GET", KEYS[1])
if not raw then
  return 0
end
local sess = cjson.decode(raw)
if sess.revoked == true then
  return 0
end
sess.revoked = true
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  ttl = 1000
end
redis.call("SET", KEYS[1], cjson.encode(sess), "PX", ttl)
return 1
`

var revokeSessionLua = redis.NewScript(revokeSessionScript)

// Config tunes key namespacing and consumed-row retention.
type Config struct {
	// Prefix namespaces every key. Defaults to "ids".
	Prefix string

	// Retention keeps consumed and revoked session rows alive past their
	// expiry so replays are still detected as reuse rather than NotFound.
	Retention time.Duration
}

// Store is a Redis-backed implementation of [store.Store]. Session records
// are JSON blobs with TTLs; rotation and revocation run as Lua scripts so
// every mutation is a single atomic Redis operation.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// New creates a Store backed by the given Redis client.
func New(client redis.UniversalClient, cfg Config) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = "ids"
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	return &Store{
		redis:     client,
		prefix:    cfg.Prefix,
		retention: cfg.Retention,
	}
}

func (s *Store) accountKey(id string) string {
	return s.prefix + ":acct:" + id
}

func (s *Store) handleKey(handle string) string {
	return s.prefix + ":handle:" + strings.ToLower(handle)
}

func (s *Store) sessionKey(id string) string {
	return s.prefix + ":sess:" + id
}

func (s *Store) lineageKey(lineageID string) string {
	return s.prefix + ":lin:" + lineageID
}

func (s *Store) accountSessionsKey(accountID string) string {
	return s.prefix + ":asess:" + accountID
}

// CreateAccount implements [store.Store].
func (s *Store) CreateAccount(ctx context.Context, acc *store.Account) error {
	payload, err := json.Marshal(newAccountRecord(acc))
	if err != nil {
		return err
	}

	created, err := createAccountLua.Run(ctx, s.redis,
		[]string{s.handleKey(acc.Handle), s.accountKey(acc.ID)},
		acc.ID, string(payload),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if created == 0 {
		return store.ErrConflict
	}

	return nil
}

// GetAccount implements [store.Store].
func (s *Store) GetAccount(ctx context.Context, id string) (*store.Account, error) {
	return s.loadAccount(ctx, s.accountKey(id))
}

// FindAccountByHandle implements [store.Store].
func (s *Store) FindAccountByHandle(ctx context.Context, handle string) (*store.Account, error) {
	id, err := s.redis.Get(ctx, s.handleKey(handle)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	return s.loadAccount(ctx, s.accountKey(id))
}

func (s *Store) loadAccount(ctx context.Context, key string) (*store.Account, error) {
	raw, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	var rec accountRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: corrupt account record: %v", store.ErrUnavailable, err)
	}

	return rec.toAccount()
}

// UpdatePassword implements [store.Store].
func (s *Store) UpdatePassword(ctx context.Context, accountID, encodedHash string) error {
	updated, err := updatePasswordLua.Run(ctx, s.redis,
		[]string{s.accountKey(accountID)}, encodedHash,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if updated == 0 {
		return store.ErrNotFound
	}

	return nil
}

// SetRecoveryCodes implements [store.Store].
func (s *Store) SetRecoveryCodes(ctx context.Context, accountID string, sealed *vault.Sealed) error {
	var ct, nonce string
	if sealed != nil {
		ct = base64.StdEncoding.EncodeToString(sealed.Ciphertext)
		nonce = base64.StdEncoding.EncodeToString(sealed.Nonce)
	}

	updated, err := setRecoveryLua.Run(ctx, s.redis,
		[]string{s.accountKey(accountID)}, ct, nonce,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if updated == 0 {
		return store.ErrNotFound
	}

	return nil
}

// CreateSession implements [store.Store].
func (s *Store) CreateSession(ctx context.Context, sess *store.Session) error {
	payload, err := json.Marshal(newSessionRecord(sess))
	if err != nil {
		return err
	}

	ttl := s.sessionTTL(sess)
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.sessionKey(sess.ID), payload, ttl)
	pipe.SAdd(ctx, s.lineageKey(sess.LineageID), sess.ID)
	pipe.PExpire(ctx, s.lineageKey(sess.LineageID), ttl)
	pipe.SAdd(ctx, s.accountSessionsKey(sess.AccountID), sess.ID)
	pipe.PExpire(ctx, s.accountSessionsKey(sess.AccountID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	return nil
}

// GetSession implements [store.Store].
func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	raw, err := s.redis.Get(ctx, s.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	var rec sessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: corrupt session record: %v", store.ErrUnavailable, err)
	}

	return rec.toSession()
}

// ConsumeAndChain implements [store.Store].
func (s *Store) ConsumeAndChain(ctx context.Context, oldID string, next *store.Session) error {
	payload, err := json.Marshal(newSessionRecord(next))
	if err != nil {
		return err
	}

	status, err := consumeAndChainLua.Run(ctx, s.redis,
		[]string{
			s.sessionKey(oldID),
			s.sessionKey(next.ID),
			s.lineageKey(next.LineageID),
			s.accountSessionsKey(next.AccountID),
		},
		string(payload),
		time.Now().Unix(),
		s.sessionTTL(next).Milliseconds(),
		next.ID,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	switch status {
	case statusOK:
		return nil
	case statusNotFound:
		return store.ErrNotFound
	case statusRevoked:
		return store.ErrSessionRevoked
	case statusConsumed:
		return store.ErrSessionConsumed
	default:
		return fmt.Errorf("%w: unexpected rotation status %d", store.ErrUnavailable, status)
	}
}

// RevokeSession implements [store.Store]. Revoking an unknown or
// already-revoked session is a silent success.
func (s *Store) RevokeSession(ctx context.Context, id string) error {
	if _, err := revokeSessionLua.Run(ctx, s.redis, []string{s.sessionKey(id)}).Int64(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// RevokeLineage implements [store.Store].
func (s *Store) RevokeLineage(ctx context.Context, lineageID string) error {
	return s.revokeMembers(ctx, s.lineageKey(lineageID))
}

// RevokeAllForAccount implements [store.Store].
func (s *Store) RevokeAllForAccount(ctx context.Context, accountID string) error {
	return s.revokeMembers(ctx, s.accountSessionsKey(accountID))
}

func (s *Store) revokeMembers(ctx context.Context, setKey string) error {
	ids, err := s.redis.SMembers(ctx, setKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	for _, id := range ids {
		if err := s.RevokeSession(ctx, id); err != nil {
			return err
		}
	}

	return nil
}

// Ping implements [store.Store].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) sessionTTL(sess *store.Session) time.Duration {
	ttl := time.Until(sess.ExpiresAt) + s.retention
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
