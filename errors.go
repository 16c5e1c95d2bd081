package identity

import "errors"

var (
	// ErrInvalidCredentials covers both unknown handles and wrong
	// passwords; callers cannot distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenInvalid is the single outward signal for any access token
	// validation failure.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrRefreshReuse reports a refresh token presented after it was
	// already rotated or its session revoked. The lineage is dead.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrRefreshExpired reports a refresh token past its lifetime.
	ErrRefreshExpired = errors.New("refresh token expired")
	// ErrConflict reports a duplicate handle on account creation.
	ErrConflict = errors.New("account already exists")
	// ErrNotFound reports a missing account.
	ErrNotFound = errors.New("account not found")
	// ErrRateLimited reports a spent login attempt budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrWeakPassword reports a password below the minimum size.
	ErrWeakPassword = errors.New("password too weak")
	// ErrRecoveryInvalid reports an unknown or already used recovery code.
	ErrRecoveryInvalid = errors.New("invalid recovery code")
	// ErrStorage reports a credential store failure.
	ErrStorage = errors.New("credential store failure")
	// ErrEngineNotReady is returned by operations on a nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not ready")
)
