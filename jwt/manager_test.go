package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

func edConfig(t *testing.T, ttl time.Duration) Config {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return Config{
		AccessTTL:     ttl,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "identity-server-test",
	}
}

func TestCreateParseRoundTrip(t *testing.T) {
	m, err := NewManager(edConfig(t, time.Minute))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, err := m.CreateAccess("acct-1", "sess-1", []string{"account:read"})
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if claims.Subject != "acct-1" {
		t.Fatalf("subject mismatch: %s", claims.Subject)
	}
	if claims.SessionID != "sess-1" {
		t.Fatalf("session id mismatch: %s", claims.SessionID)
	}
	if len(claims.Scope) != 1 || claims.Scope[0] != "account:read" {
		t.Fatalf("scope mismatch: %v", claims.Scope)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	m, err := NewManager(edConfig(t, time.Millisecond))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, err := m.CreateAccess("acct-1", "sess-1", nil)
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected expired token rejection")
	}
}

func TestLeewayToleratesSkew(t *testing.T) {
	cfg := edConfig(t, time.Millisecond)
	cfg.Leeway = time.Minute
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, err := m.CreateAccess("acct-1", "sess-1", nil)
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if _, err := m.ParseAccess(token); err != nil {
		t.Fatalf("expected leeway to tolerate expiry skew, got %v", err)
	}
}

func TestParseRejectsForeignKey(t *testing.T) {
	issuer, err := NewManager(edConfig(t, time.Minute))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	verifier, err := NewManager(edConfig(t, time.Minute))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, err := issuer.CreateAccess("acct-1", "sess-1", nil)
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}

	if _, err := verifier.ParseAccess(token); err == nil {
		t.Fatal("expected signature rejection under a different key")
	}
}

func TestParseRejectsAlgorithmConfusion(t *testing.T) {
	edManager, err := NewManager(edConfig(t, time.Minute))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	hsManager, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, err := hsManager.CreateAccess("acct-1", "sess-1", nil)
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}

	if _, err := edManager.ParseAccess(token); err == nil {
		t.Fatal("expected hs256 token to be rejected by ed25519 manager")
	}
}

func TestHS256RoundTrip(t *testing.T) {
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "identity-server-test",
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, err := m.CreateAccess("acct-1", "sess-1", nil)
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	if _, err := m.ParseAccess(token); err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
}

func TestParseRejectsMissingClaims(t *testing.T) {
	m, err := NewManager(edConfig(t, time.Minute))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, err := m.CreateAccess("", "", nil)
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected structural claim rejection")
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(Config{SigningMethod: MethodHS256}); err == nil {
		t.Fatal("expected rejection of zero TTL")
	}
	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256}); err == nil {
		t.Fatal("expected rejection of missing hs256 secret")
	}
	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: "rs256"}); err == nil {
		t.Fatal("expected rejection of unsupported method")
	}
}
