package identity

import "sync/atomic"

// Metrics holds the engine's in-process counters.
type Metrics struct {
	loginSuccess    atomic.Uint64
	loginFailure    atomic.Uint64
	loginThrottled  atomic.Uint64
	refreshSuccess  atomic.Uint64
	refreshReuse    atomic.Uint64
	refreshExpired  atomic.Uint64
	logouts         atomic.Uint64
	revokeAll       atomic.Uint64
	passwordChanges atomic.Uint64
	tokenRejected   atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of the engine counters.
type MetricsSnapshot struct {
	LoginSuccess    uint64 `json:"login_success"`
	LoginFailure    uint64 `json:"login_failure"`
	LoginThrottled  uint64 `json:"login_throttled"`
	RefreshSuccess  uint64 `json:"refresh_success"`
	RefreshReuse    uint64 `json:"refresh_reuse"`
	RefreshExpired  uint64 `json:"refresh_expired"`
	Logouts         uint64 `json:"logouts"`
	RevokeAll       uint64 `json:"revoke_all"`
	PasswordChanges uint64 `json:"password_changes"`
	TokenRejected   uint64 `json:"token_rejected"`
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		LoginSuccess:    m.loginSuccess.Load(),
		LoginFailure:    m.loginFailure.Load(),
		LoginThrottled:  m.loginThrottled.Load(),
		RefreshSuccess:  m.refreshSuccess.Load(),
		RefreshReuse:    m.refreshReuse.Load(),
		RefreshExpired:  m.refreshExpired.Load(),
		Logouts:         m.logouts.Load(),
		RevokeAll:       m.revokeAll.Load(),
		PasswordChanges: m.passwordChanges.Load(),
		TokenRejected:   m.tokenRejected.Load(),
	}
}
