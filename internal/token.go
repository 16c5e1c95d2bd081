// Package internal holds random material generation and the opaque
// refresh-token wire codec shared by the engine and stores.
package internal

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

// Sizes of refresh-token components. The wire token is the session ID and
// the secret concatenated, base64url without padding.
const (
	SessionIDSize     = 16
	RefreshSecretSize = 32

	refreshTokenRawSize = SessionIDSize + RefreshSecretSize
)

// ErrTokenFormat is returned when an opaque token cannot be decoded.
var ErrTokenFormat = errors.New("invalid refresh token format")

// SessionID is the random lookup identifier of a session.
type SessionID [SessionIDSize]byte

// NewSessionID draws a fresh random session identifier.
func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

// String encodes the identifier as compact base64url without padding.
func (s SessionID) String() string {
	return base64.RawURLEncoding.EncodeToString(s[:])
}

// ParseSessionID decodes a session identifier produced by [SessionID.String].
func ParseSessionID(id string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return sid, ErrTokenFormat
	}
	if len(raw) != len(sid) {
		return sid, ErrTokenFormat
	}

	copy(sid[:], raw)
	return sid, nil
}

// NewRefreshSecret draws a fresh high-entropy refresh secret.
func NewRefreshSecret() ([RefreshSecretSize]byte, error) {
	var secret [RefreshSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// SecretsEqual compares two refresh secrets in constant time.
func SecretsEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// EncodeRefreshToken packs a session identifier and its secret into the
// single opaque bearer value handed to clients.
func EncodeRefreshToken(sessionID string, secret [RefreshSecretSize]byte) (string, error) {
	sid, err := ParseSessionID(sessionID)
	if err != nil {
		return "", err
	}

	var raw [refreshTokenRawSize]byte
	copy(raw[:len(sid)], sid[:])
	copy(raw[len(sid):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// DecodeRefreshToken unpacks an opaque bearer value into the session
// identifier and the presented secret.
func DecodeRefreshToken(token string) (string, [RefreshSecretSize]byte, error) {
	var secret [RefreshSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secret, ErrTokenFormat
	}
	if len(raw) != refreshTokenRawSize {
		return "", secret, ErrTokenFormat
	}

	var sid SessionID
	copy(sid[:], raw[:len(sid)])
	copy(secret[:], raw[len(sid):])

	return sid.String(), secret, nil
}
