package identity

import (
	"fmt"
	"time"

	"github.com/tarkov-database/identity-server/jwt"
	"github.com/tarkov-database/identity-server/password"
	"github.com/tarkov-database/identity-server/vault"
)

// ThrottleConfig tunes the per-handle and per-IP login throttle. The
// throttle is only active when the engine is built with a Redis client.
type ThrottleConfig struct {
	// MaxAttempts is the failed-login budget per window.
	MaxAttempts int
	// Window is the fixed counting window.
	Window time.Duration
	// PerIP additionally counts failures per client IP, taken from the
	// request context via [WithClientIP].
	PerIP bool
}

// Config holds engine tuning. Zero fields are filled with defaults at
// Build time; the engine keeps its own copy, so a Config is free to
// reuse or mutate afterwards.
type Config struct {
	// VaultKey is the 32-byte key sealing refresh secrets and recovery
	// codes at rest.
	VaultKey []byte

	// RefreshTTL bounds the life of a refresh session, including all of
	// its rotated successors. Each successor inherits the remaining
	// lifetime of its lineage.
	RefreshTTL time.Duration

	// JWT configures the access token issuer.
	JWT jwt.Config

	// Password configures Argon2id hashing costs.
	Password password.Config

	// Throttle configures login throttling.
	Throttle ThrottleConfig

	// AuditBuffer is the audit dispatcher's channel capacity.
	AuditBuffer int

	// RecoveryCodeCount is the number of one-time codes issued per
	// recovery batch.
	RecoveryCodeCount int
}

// DefaultConfig returns the stock engine configuration, minus the key
// material the caller must supply.
func DefaultConfig() Config {
	return Config{
		RefreshTTL: 30 * 24 * time.Hour,
		JWT: jwt.Config{
			AccessTTL:     10 * time.Minute,
			SigningMethod: jwt.MethodEd25519,
			Leeway:        30 * time.Second,
		},
		Password: password.DefaultConfig(),
		Throttle: ThrottleConfig{
			MaxAttempts: 10,
			Window:      15 * time.Minute,
			PerIP:       true,
		},
		AuditBuffer:       256,
		RecoveryCodeCount: 10,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = def.RefreshTTL
	}
	if c.JWT.AccessTTL <= 0 {
		c.JWT.AccessTTL = def.JWT.AccessTTL
	}
	if c.JWT.SigningMethod == "" {
		c.JWT.SigningMethod = def.JWT.SigningMethod
	}
	if c.Password == (password.Config{}) {
		c.Password = def.Password
	}
	if c.Throttle.MaxAttempts <= 0 {
		c.Throttle.MaxAttempts = def.Throttle.MaxAttempts
	}
	if c.Throttle.Window <= 0 {
		c.Throttle.Window = def.Throttle.Window
	}
	if c.AuditBuffer <= 0 {
		c.AuditBuffer = def.AuditBuffer
	}
	if c.RecoveryCodeCount <= 0 {
		c.RecoveryCodeCount = def.RecoveryCodeCount
	}
}

func (c *Config) validate() error {
	if len(c.VaultKey) != vault.KeySize {
		return fmt.Errorf("vault key must be %d bytes, got %d", vault.KeySize, len(c.VaultKey))
	}
	if c.JWT.AccessTTL >= c.RefreshTTL {
		return fmt.Errorf("access TTL %v must be shorter than refresh TTL %v", c.JWT.AccessTTL, c.RefreshTTL)
	}
	return nil
}
