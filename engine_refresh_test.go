package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRefreshRotates(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	accountID := mustCreateAccount(t, env.engine, "alice@example.com", "correct-horse")
	pair, err := env.engine.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	next, err := env.engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if next.RefreshExpiresAt.After(pair.RefreshExpiresAt.Add(time.Second)) {
		t.Fatal("rotation extended the lineage lifetime")
	}

	id, err := env.engine.ValidateAccess(ctx, next.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if id.AccountID != accountID {
		t.Fatalf("AccountID = %s, want %s", id.AccountID, accountID)
	}
}

func TestRefreshReplayKillsLineage(t *testing.T) {
	sink := NewAuditChannelSink(64)
	env := newTestEngine(t, nil, func(b *Builder) { b.WithAuditSink(sink) })
	ctx := context.Background()

	mustCreateAccount(t, env.engine, "alice@example.com", "correct-horse")
	first, err := env.engine.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	second, err := env.engine.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Replaying the consumed token is theft evidence.
	if _, err := env.engine.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("replay err = %v, want ErrRefreshReuse", err)
	}

	// The whole lineage is dead, including the legitimate successor.
	if _, err := env.engine.Refresh(ctx, second.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("successor after replay err = %v, want ErrRefreshReuse", err)
	}

	env.engine.Close()
	found := false
	for {
		select {
		case ev := <-sink.Events():
			if ev.Type == AuditSessionReuse {
				found = true
			}
			continue
		default:
		}
		break
	}
	if !found {
		t.Fatal("no reuse audit event emitted")
	}
}

func TestRefreshGarbageToken(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := env.engine.Refresh(ctx, "garbage"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("garbage err = %v, want ErrTokenInvalid", err)
	}
}

func TestRefreshWrongSecretDoesNotBurnLineage(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	mustCreateAccount(t, env.engine, "alice@example.com", "correct-horse")
	pair, err := env.engine.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Same session id, forged secret: must be rejected without touching
	// the real session.
	sid, _, err := decodeForTest(pair.RefreshToken)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	forged, err := encodeForTest(sid)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, forged); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("forged err = %v, want ErrTokenInvalid", err)
	}

	// The genuine token still works.
	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("genuine refresh after forgery: %v", err)
	}
}

func TestRefreshExpired(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) {
		cfg.JWT.AccessTTL = 10 * time.Millisecond
		cfg.RefreshTTL = 30 * time.Millisecond
	})
	ctx := context.Background()

	mustCreateAccount(t, env.engine, "alice@example.com", "correct-horse")
	pair, err := env.engine.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	time.Sleep(60 * time.Millisecond)

	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshExpired) {
		t.Fatalf("expired err = %v, want ErrRefreshExpired", err)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	mustCreateAccount(t, env.engine, "alice@example.com", "correct-horse")
	pair, err := env.engine.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.engine.Refresh(ctx, pair.RefreshToken); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			} else if !errors.Is(err, ErrRefreshReuse) {
				t.Errorf("loser err = %v, want ErrRefreshReuse", err)
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
}
