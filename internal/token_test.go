package internal

import (
	"errors"
	"testing"
)

func TestRefreshTokenRoundTrip(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID: %v", err)
	}
	secret, err := NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret: %v", err)
	}

	token, err := EncodeRefreshToken(sid.String(), secret)
	if err != nil {
		t.Fatalf("EncodeRefreshToken: %v", err)
	}

	gotID, gotSecret, err := DecodeRefreshToken(token)
	if err != nil {
		t.Fatalf("DecodeRefreshToken: %v", err)
	}
	if gotID != sid.String() {
		t.Fatalf("session id mismatch: %s != %s", gotID, sid.String())
	}
	if gotSecret != secret {
		t.Fatal("secret mismatch after round trip")
	}
}

func TestDecodeRefreshTokenRejectsGarbage(t *testing.T) {
	for _, token := range []string{"", "!!!", "dG9vLXNob3J0"} {
		if _, _, err := DecodeRefreshToken(token); !errors.Is(err, ErrTokenFormat) {
			t.Fatalf("token %q: expected ErrTokenFormat, got %v", token, err)
		}
	}
}

func TestParseSessionIDRejectsWrongSize(t *testing.T) {
	if _, err := ParseSessionID("c2hvcnQ"); !errors.Is(err, ErrTokenFormat) {
		t.Fatalf("expected ErrTokenFormat, got %v", err)
	}
}

func TestSecretsEqual(t *testing.T) {
	a := []byte{1, 2, 3}
	if !SecretsEqual(a, []byte{1, 2, 3}) {
		t.Fatal("equal secrets reported unequal")
	}
	if SecretsEqual(a, []byte{1, 2, 4}) {
		t.Fatal("unequal secrets reported equal")
	}
	if SecretsEqual(a, []byte{1, 2}) {
		t.Fatal("different lengths reported equal")
	}
}
