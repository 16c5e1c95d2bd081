package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/tarkov-database/identity-server/store"
	"github.com/tarkov-database/identity-server/vault"
)

var recoveryEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateRecoveryCodes issues a fresh batch of one-time recovery codes
// for the account, replacing any previous batch. Only SHA-256 digests
// are stored, sealed by the vault and bound to the account id; the
// plaintext codes in the returned batch are shown exactly once.
func (e *Engine) GenerateRecoveryCodes(ctx context.Context, accountID string) (*RecoveryBatch, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	if _, err := e.store.GetAccount(ctx, accountID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, e.storeErr("get account", err)
	}

	codes := make([]string, e.cfg.RecoveryCodeCount)
	digests := make([]string, e.cfg.RecoveryCodeCount)
	for i := range codes {
		code, err := newRecoveryCode()
		if err != nil {
			return nil, e.storeErr("generate recovery code", err)
		}
		codes[i] = code
		digests[i] = recoveryDigest(code)
	}

	sealed, err := e.sealDigests(digests, accountID)
	if err != nil {
		return nil, e.storeErr("seal recovery codes", err)
	}
	if err := e.store.SetRecoveryCodes(ctx, accountID, sealed); err != nil {
		return nil, e.storeErr("store recovery codes", err)
	}

	e.emit(ctx, AuditEvent{Type: AuditRecoveryIssued, AccountID: accountID, Success: true})
	return &RecoveryBatch{Codes: codes, IssuedAt: time.Now().UTC()}, nil
}

// LoginWithRecoveryCode opens a session using a one-time recovery code
// instead of the password. The code is consumed on success; replaying it
// fails with ErrRecoveryInvalid.
func (e *Engine) LoginWithRecoveryCode(ctx context.Context, handle, code string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	acc, err := e.store.FindAccountByHandle(ctx, strings.TrimSpace(handle))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRecoveryInvalid
		}
		return nil, e.storeErr("find account", err)
	}
	if acc.Revoked || acc.Recovery == nil {
		return nil, ErrRecoveryInvalid
	}

	digests, err := e.openDigests(acc.Recovery, acc.ID)
	if err != nil {
		return nil, e.storeErr("open recovery codes", err)
	}

	presented := recoveryDigest(normalizeRecoveryCode(code))
	match := -1
	for i, d := range digests {
		if subtle.ConstantTimeCompare([]byte(d), []byte(presented)) == 1 {
			match = i
		}
	}
	if match < 0 {
		e.emit(ctx, AuditEvent{
			Type:      AuditRecoveryUsed,
			AccountID: acc.ID,
			Success:   false,
			Error:     ErrRecoveryInvalid.Error(),
		})
		return nil, ErrRecoveryInvalid
	}

	remaining := append(digests[:match], digests[match+1:]...)
	sealed, err := e.sealDigests(remaining, acc.ID)
	if err != nil {
		return nil, e.storeErr("seal recovery codes", err)
	}
	if err := e.store.SetRecoveryCodes(ctx, acc.ID, sealed); err != nil {
		return nil, e.storeErr("store recovery codes", err)
	}

	e.emit(ctx, AuditEvent{Type: AuditRecoveryUsed, AccountID: acc.ID, Success: true})
	return e.openSession(ctx, acc.ID)
}

func (e *Engine) sealDigests(digests []string, accountID string) (*vault.Sealed, error) {
	raw, err := json.Marshal(digests)
	if err != nil {
		return nil, err
	}
	return e.vault.Seal(raw, []byte(accountID))
}

func (e *Engine) openDigests(sealed *vault.Sealed, accountID string) ([]string, error) {
	raw, err := e.vault.Open(sealed, []byte(accountID))
	if err != nil {
		return nil, err
	}
	var digests []string
	if err := json.Unmarshal(raw, &digests); err != nil {
		return nil, err
	}
	return digests, nil
}

// newRecoveryCode returns a code like "c4zw-k2mx-7q9f" carrying 60 bits
// of randomness.
func newRecoveryCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	enc := strings.ToLower(recoveryEncoding.EncodeToString(buf))[:12]
	return enc[0:4] + "-" + enc[4:8] + "-" + enc[8:12], nil
}

func normalizeRecoveryCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

func recoveryDigest(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
