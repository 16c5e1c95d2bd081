package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tarkov-database/identity-server/store"
	"github.com/tarkov-database/identity-server/vault"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, Config{Prefix: "test"})
}

func testAccount(id, handle string) *store.Account {
	return &store.Account{
		ID:           id,
		Handle:       handle,
		PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$ZGlnZXN0",
		CreatedAt:    time.Now().UTC(),
	}
}

func testSession(id, accountID, lineageID, parentID string) *store.Session {
	return &store.Session{
		ID:        id,
		AccountID: accountID,
		LineageID: lineageID,
		ParentID:  parentID,
		Secret: vault.Sealed{
			Ciphertext: []byte("ciphertext-" + id),
			Nonce:      []byte("nonce-" + id),
		},
		IssuedAt:  time.Now().UTC(),
		ExpiresAt: time.Now().Add(time.Hour).UTC(),
	}
}

func TestCreateAccountEnforcesHandleUniqueness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateAccount(ctx, testAccount("a1", "alice@example.com")); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := s.CreateAccount(ctx, testAccount("a2", "Alice@Example.com"))
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate handle, got %v", err)
	}
}

func TestFindAccountByHandle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateAccount(ctx, testAccount("a1", "alice@example.com")); err != nil {
		t.Fatalf("create: %v", err)
	}

	acc, err := s.FindAccountByHandle(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if acc.ID != "a1" {
		t.Fatalf("unexpected account id %s", acc.ID)
	}

	if _, err := s.FindAccountByHandle(ctx, "nobody@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdatePassword(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateAccount(ctx, testAccount("a1", "alice@example.com")); err != nil {
		t.Fatalf("create: %v", err)
	}

	const next = "$argon2id$v=19$m=8192,t=2,p=1$c2FsdA$bmV4dA"
	if err := s.UpdatePassword(ctx, "a1", next); err != nil {
		t.Fatalf("update: %v", err)
	}

	acc, err := s.GetAccount(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if acc.PasswordHash != next {
		t.Fatalf("password hash not updated: %s", acc.PasswordHash)
	}

	if err := s.UpdatePassword(ctx, "missing", next); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetRecoveryCodesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateAccount(ctx, testAccount("a1", "alice@example.com")); err != nil {
		t.Fatalf("create: %v", err)
	}

	sealed := &vault.Sealed{Ciphertext: []byte{1, 2, 3}, Nonce: []byte{4, 5, 6}}
	if err := s.SetRecoveryCodes(ctx, "a1", sealed); err != nil {
		t.Fatalf("set recovery: %v", err)
	}

	acc, err := s.GetAccount(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if acc.Recovery == nil {
		t.Fatal("recovery secret missing after set")
	}
	if string(acc.Recovery.Ciphertext) != string(sealed.Ciphertext) {
		t.Fatal("recovery ciphertext mismatch")
	}

	if err := s.SetRecoveryCodes(ctx, "a1", nil); err != nil {
		t.Fatalf("clear recovery: %v", err)
	}
	acc, err = s.GetAccount(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if acc.Recovery != nil {
		t.Fatal("recovery secret present after clear")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := testSession("s1", "a1", "s1", "")
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.AccountID != "a1" || got.LineageID != "s1" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if !got.Active() {
		t.Fatal("fresh session should be active")
	}
	if string(got.Secret.Ciphertext) != "ciphertext-s1" {
		t.Fatal("sealed secret did not round trip")
	}

	if _, err := s.GetSession(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConsumeAndChain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, testSession("s1", "a1", "s1", "")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.ConsumeAndChain(ctx, "s1", testSession("s2", "a1", "s1", "s1")); err != nil {
		t.Fatalf("first rotation: %v", err)
	}

	old, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get old: %v", err)
	}
	if old.Active() || old.ConsumedAt.IsZero() {
		t.Fatal("old session should be consumed")
	}

	next, err := s.GetSession(ctx, "s2")
	if err != nil {
		t.Fatalf("get next: %v", err)
	}
	if !next.Active() || next.ParentID != "s1" {
		t.Fatalf("unexpected successor: %+v", next)
	}

	// Replay against the consumed session.
	err = s.ConsumeAndChain(ctx, "s1", testSession("s3", "a1", "s1", "s1"))
	if !errors.Is(err, store.ErrSessionConsumed) {
		t.Fatalf("expected ErrSessionConsumed, got %v", err)
	}
	if _, err := s.GetSession(ctx, "s3"); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("failed rotation must not insert a successor")
	}

	err = s.ConsumeAndChain(ctx, "missing", testSession("s4", "a1", "s1", "missing"))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConsumeAndChainRevoked(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, testSession("s1", "a1", "s1", "")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.RevokeSession(ctx, "s1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	err := s.ConsumeAndChain(ctx, "s1", testSession("s2", "a1", "s1", "s1"))
	if !errors.Is(err, store.ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
}

func TestConsumeAndChainSingleWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, testSession("s1", "a1", "s1", "")); err != nil {
		t.Fatalf("create: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			next := testSession(fmt.Sprintf("next-%d", i), "a1", "s1", "s1")
			results <- s.ConsumeAndChain(ctx, "s1", next)
		}(i)
	}
	wg.Wait()
	close(results)

	wins, losses := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, store.ErrSessionConsumed):
			losses++
		default:
			t.Fatalf("unexpected rotation error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if losses != n-1 {
		t.Fatalf("expected %d consumed losses, got %d", n-1, losses)
	}
}

func TestRevokeSessionIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, testSession("s1", "a1", "s1", "")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.RevokeSession(ctx, "s1"); err != nil {
		t.Fatalf("first revoke: %v", err)
	}
	if err := s.RevokeSession(ctx, "s1"); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if err := s.RevokeSession(ctx, "unknown"); err != nil {
		t.Fatalf("revoke unknown: %v", err)
	}

	sess, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !sess.Revoked {
		t.Fatal("session not marked revoked")
	}
}

func TestRevokeLineage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, testSession("s1", "a1", "s1", "")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.ConsumeAndChain(ctx, "s1", testSession("s2", "a1", "s1", "s1")); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if err := s.ConsumeAndChain(ctx, "s2", testSession("s3", "a1", "s1", "s2")); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	if err := s.RevokeLineage(ctx, "s1"); err != nil {
		t.Fatalf("revoke lineage: %v", err)
	}

	for _, id := range []string{"s1", "s2", "s3"} {
		sess, err := s.GetSession(ctx, id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if !sess.Revoked {
			t.Fatalf("session %s not revoked with its lineage", id)
		}
	}
}

func TestRevokeAllForAccount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Two independent lineages for the same account.
	if err := s.CreateSession(ctx, testSession("s1", "a1", "s1", "")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateSession(ctx, testSession("s2", "a1", "s2", "")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.RevokeAllForAccount(ctx, "a1"); err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	for _, id := range []string{"s1", "s2"} {
		sess, err := s.GetSession(ctx, id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if !sess.Revoked {
			t.Fatalf("session %s still active", id)
		}
	}

	// Zero sessions is success.
	if err := s.RevokeAllForAccount(ctx, "nobody"); err != nil {
		t.Fatalf("revoke all for unknown account: %v", err)
	}
}
