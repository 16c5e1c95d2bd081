package identity

import "time"

// TokenPair is the credential set issued by Login and Refresh. The
// refresh token plaintext exists only in this value; it is never
// recoverable from the engine again.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	// AccessExpiresAt is the access token's expiry.
	AccessExpiresAt time.Time
	// RefreshExpiresAt is the lineage expiry shared by every rotation of
	// this refresh token.
	RefreshExpiresAt time.Time
}

// AccessIdentity is the validated content of an access token.
type AccessIdentity struct {
	AccountID string
	SessionID string
	Scope     []string
	ExpiresAt time.Time
}

// RecoveryBatch is a freshly issued set of one-time recovery codes.
// Plaintext codes are returned exactly once.
type RecoveryBatch struct {
	Codes    []string
	IssuedAt time.Time
}

// IdentityProvider resolves principals from an external identity system.
// The engine never calls it; it is carried for API consumers that
// federate account data and want it wired through the same builder.
type IdentityProvider interface {
	ResolveHandle(handle string) (accountID string, err error)
}
