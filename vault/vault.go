// Package vault provides authenticated encryption for sensitive record
// fields (refresh-token secrets, recovery codes) using a process-held
// symmetric key and a fresh random nonce per sealed value.
package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required vault key length in bytes.
const KeySize = chacha20poly1305.KeySize

// ErrAuthentication is returned when a sealed value fails tag verification
// or was sealed under different associated data.
var ErrAuthentication = errors.New("vault authentication failed")

// ErrKeySize is returned when the vault key has the wrong length.
var ErrKeySize = errors.New("vault key must be 32 bytes")

// Sealed is ciphertext plus the nonce it was sealed under. The Poly1305 tag
// is appended to Ciphertext.
type Sealed struct {
	Ciphertext []byte
	Nonce      []byte
}

// Vault seals and opens values with XChaCha20-Poly1305. The key is loaded
// once at startup and never mutated; a Vault is safe for concurrent use.
type Vault struct {
	aead cipher.AEAD
}

// New creates a Vault from a 32-byte key.
func New(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Vault{aead: aead}, nil
}

// Seal encrypts plaintext bound to the given associated data. Every call
// draws a fresh random nonce; nonces are never reused under the same key.
func (v *Vault) Seal(plaintext, associated []byte) (*Sealed, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return &Sealed{
		Ciphertext: v.aead.Seal(nil, nonce, plaintext, associated),
		Nonce:      nonce,
	}, nil
}

// Open decrypts a sealed value. It fails with [ErrAuthentication] if the tag
// does not verify or the associated data does not match what was sealed; it
// never returns partial plaintext.
func (v *Vault) Open(s *Sealed, associated []byte) ([]byte, error) {
	if s == nil || len(s.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrAuthentication
	}

	plaintext, err := v.aead.Open(nil, s.Nonce, s.Ciphertext, associated)
	if err != nil {
		return nil, ErrAuthentication
	}

	return plaintext, nil
}

// Reseal re-encrypts a value sealed under the old vault with the new vault's
// key. Used by out-of-band key rotation maintenance, not the request path.
func Reseal(oldVault, newVault *Vault, s *Sealed, associated []byte) (*Sealed, error) {
	plaintext, err := oldVault.Open(s, associated)
	if err != nil {
		return nil, err
	}
	return newVault.Seal(plaintext, associated)
}
