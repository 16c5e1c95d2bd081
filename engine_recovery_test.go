package identity

import (
	"context"
	"errors"
	"testing"
)

func TestRecoveryCodeLifecycle(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	accountID := mustCreateAccount(t, env.engine, "alice@example.com", "correct-horse")

	batch, err := env.engine.GenerateRecoveryCodes(ctx, accountID)
	if err != nil {
		t.Fatalf("GenerateRecoveryCodes: %v", err)
	}
	if len(batch.Codes) != DefaultConfig().RecoveryCodeCount {
		t.Fatalf("got %d codes, want %d", len(batch.Codes), DefaultConfig().RecoveryCodeCount)
	}

	pair, err := env.engine.LoginWithRecoveryCode(ctx, "alice@example.com", batch.Codes[0])
	if err != nil {
		t.Fatalf("LoginWithRecoveryCode: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("token pair incomplete")
	}

	// One-time: the same code is burned.
	if _, err := env.engine.LoginWithRecoveryCode(ctx, "alice@example.com", batch.Codes[0]); !errors.Is(err, ErrRecoveryInvalid) {
		t.Fatalf("replayed code err = %v, want ErrRecoveryInvalid", err)
	}

	// Other codes from the batch still work.
	if _, err := env.engine.LoginWithRecoveryCode(ctx, "alice@example.com", batch.Codes[1]); err != nil {
		t.Fatalf("second code: %v", err)
	}
}

func TestRecoveryCodeWrong(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	accountID := mustCreateAccount(t, env.engine, "alice@example.com", "correct-horse")
	if _, err := env.engine.GenerateRecoveryCodes(ctx, accountID); err != nil {
		t.Fatalf("GenerateRecoveryCodes: %v", err)
	}

	if _, err := env.engine.LoginWithRecoveryCode(ctx, "alice@example.com", "zzzz-zzzz-zzzz"); !errors.Is(err, ErrRecoveryInvalid) {
		t.Fatalf("wrong code err = %v, want ErrRecoveryInvalid", err)
	}
}

func TestRecoveryCodeWithoutBatch(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	mustCreateAccount(t, env.engine, "alice@example.com", "correct-horse")

	if _, err := env.engine.LoginWithRecoveryCode(ctx, "alice@example.com", "aaaa-bbbb-cccc"); !errors.Is(err, ErrRecoveryInvalid) {
		t.Fatalf("err = %v, want ErrRecoveryInvalid", err)
	}
	// Unknown handles get the same answer.
	if _, err := env.engine.LoginWithRecoveryCode(ctx, "nobody@example.com", "aaaa-bbbb-cccc"); !errors.Is(err, ErrRecoveryInvalid) {
		t.Fatalf("unknown handle err = %v, want ErrRecoveryInvalid", err)
	}
}

func TestRegenerateReplacesBatch(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	accountID := mustCreateAccount(t, env.engine, "alice@example.com", "correct-horse")

	first, err := env.engine.GenerateRecoveryCodes(ctx, accountID)
	if err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if _, err := env.engine.GenerateRecoveryCodes(ctx, accountID); err != nil {
		t.Fatalf("second batch: %v", err)
	}

	if _, err := env.engine.LoginWithRecoveryCode(ctx, "alice@example.com", first.Codes[0]); !errors.Is(err, ErrRecoveryInvalid) {
		t.Fatalf("old batch code err = %v, want ErrRecoveryInvalid", err)
	}
}

func TestGenerateRecoveryCodesUnknownAccount(t *testing.T) {
	env := newTestEngine(t, nil)

	if _, err := env.engine.GenerateRecoveryCodes(context.Background(), "no-such-account"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
