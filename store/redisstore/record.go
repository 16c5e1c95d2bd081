package redisstore

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/tarkov-database/identity-server/store"
	"github.com/tarkov-database/identity-server/vault"
)

// accountRecord is the JSON shape of a persisted account. Binary fields are
// base64 strings and timestamps are unix seconds so the rotation Lua
// scripts can round-trip records through cjson without loss.
type accountRecord struct {
	ID            string `json:"id"`
	Handle        string `json:"handle"`
	PasswordHash  string `json:"password_hash"`
	RecoveryCT    string `json:"recovery_ct"`
	RecoveryNonce string `json:"recovery_nonce"`
	CreatedAt     int64  `json:"created_at"`
	Revoked       bool   `json:"revoked"`
}

func newAccountRecord(acc *store.Account) accountRecord {
	rec := accountRecord{
		ID:           acc.ID,
		Handle:       acc.Handle,
		PasswordHash: acc.PasswordHash,
		CreatedAt:    acc.CreatedAt.Unix(),
		Revoked:      acc.Revoked,
	}
	if acc.Recovery != nil {
		rec.RecoveryCT = base64.StdEncoding.EncodeToString(acc.Recovery.Ciphertext)
		rec.RecoveryNonce = base64.StdEncoding.EncodeToString(acc.Recovery.Nonce)
	}
	return rec
}

func (r accountRecord) toAccount() (*store.Account, error) {
	acc := &store.Account{
		ID:           r.ID,
		Handle:       r.Handle,
		PasswordHash: r.PasswordHash,
		CreatedAt:    time.Unix(r.CreatedAt, 0).UTC(),
		Revoked:      r.Revoked,
	}

	if r.RecoveryCT != "" {
		ct, err := base64.StdEncoding.DecodeString(r.RecoveryCT)
		if err != nil {
			return nil, fmt.Errorf("corrupt recovery ciphertext: %w", err)
		}
		nonce, err := base64.StdEncoding.DecodeString(r.RecoveryNonce)
		if err != nil {
			return nil, fmt.Errorf("corrupt recovery nonce: %w", err)
		}
		acc.Recovery = &vault.Sealed{Ciphertext: ct, Nonce: nonce}
	}

	return acc, nil
}

type sessionRecord struct {
	ID          string `json:"id"`
	AccountID   string `json:"account_id"`
	LineageID   string `json:"lineage_id"`
	ParentID    string `json:"parent_id"`
	SecretCT    string `json:"secret_ct"`
	SecretNonce string `json:"secret_nonce"`
	IssuedAt    int64  `json:"issued_at"`
	ExpiresAt   int64  `json:"expires_at"`
	RotatedAt   int64  `json:"rotated_at"`
	ConsumedAt  int64  `json:"consumed_at"`
	Revoked     bool   `json:"revoked"`
}

func newSessionRecord(sess *store.Session) sessionRecord {
	rec := sessionRecord{
		ID:          sess.ID,
		AccountID:   sess.AccountID,
		LineageID:   sess.LineageID,
		ParentID:    sess.ParentID,
		SecretCT:    base64.StdEncoding.EncodeToString(sess.Secret.Ciphertext),
		SecretNonce: base64.StdEncoding.EncodeToString(sess.Secret.Nonce),
		IssuedAt:    sess.IssuedAt.Unix(),
		ExpiresAt:   sess.ExpiresAt.Unix(),
		Revoked:     sess.Revoked,
	}
	if !sess.RotatedAt.IsZero() {
		rec.RotatedAt = sess.RotatedAt.Unix()
	}
	if !sess.ConsumedAt.IsZero() {
		rec.ConsumedAt = sess.ConsumedAt.Unix()
	}
	return rec
}

func (r sessionRecord) toSession() (*store.Session, error) {
	ct, err := base64.StdEncoding.DecodeString(r.SecretCT)
	if err != nil {
		return nil, fmt.Errorf("corrupt secret ciphertext: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(r.SecretNonce)
	if err != nil {
		return nil, fmt.Errorf("corrupt secret nonce: %w", err)
	}

	sess := &store.Session{
		ID:        r.ID,
		AccountID: r.AccountID,
		LineageID: r.LineageID,
		ParentID:  r.ParentID,
		Secret:    vault.Sealed{Ciphertext: ct, Nonce: nonce},
		IssuedAt:  time.Unix(r.IssuedAt, 0).UTC(),
		ExpiresAt: time.Unix(r.ExpiresAt, 0).UTC(),
		Revoked:   r.Revoked,
	}
	if r.RotatedAt > 0 {
		sess.RotatedAt = time.Unix(r.RotatedAt, 0).UTC()
	}
	if r.ConsumedAt > 0 {
		sess.ConsumedAt = time.Unix(r.ConsumedAt, 0).UTC()
	}

	return sess, nil
}
