package identity

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tarkov-database/identity-server/internal/audit"
	"github.com/tarkov-database/identity-server/internal/rate"
	"github.com/tarkov-database/identity-server/jwt"
	"github.com/tarkov-database/identity-server/password"
	"github.com/tarkov-database/identity-server/store"
	"github.com/tarkov-database/identity-server/vault"
)

// Builder assembles an [Engine]. A builder is single-use; Build returns
// an error when called twice.
type Builder struct {
	cfg   Config
	store store.Store
	redis redis.UniversalClient
	log   *zap.Logger
	sink  AuditSink
	idp   IdentityProvider
	built bool
}

// NewBuilder returns a builder preloaded with [DefaultConfig].
func NewBuilder() *Builder {
	return &Builder{cfg: DefaultConfig()}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithStore sets the credential store. Required.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithRedis sets the Redis client backing the login throttle. Without
// it the engine runs with throttling disabled.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the engine logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.log = l
	return b
}

// WithAuditSink sets the sink receiving audit events. Without it no
// dispatcher is started and events are dropped.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithIdentityProvider attaches an external principal resolver for API
// consumers. The engine's own operations never call it.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.idp = p
	return b
}

// Build validates the configuration and constructs the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	if b.store == nil {
		return nil, errors.New("credential store is required")
	}

	cfg := b.cfg
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("password: %w", err)
	}
	v, err := vault.New(cfg.VaultKey)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	tokens, err := jwt.NewManager(cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}

	dummyHash, err := hasher.Hash("decoy-password-for-timing")
	if err != nil {
		return nil, fmt.Errorf("password: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		store:   b.store,
		hasher:  hasher,
		vault:   v,
		tokens:  tokens,
		metrics: &Metrics{},
		log:     log,
		idp:     b.idp,

		dummyHash: dummyHash,
	}

	if b.redis != nil {
		e.limiter = rate.New(b.redis, rate.Config{
			MaxAttempts: cfg.Throttle.MaxAttempts,
			Window:      cfg.Throttle.Window,
			ThrottleIP:  cfg.Throttle.PerIP,
		})
	}
	if b.sink != nil {
		e.audit = audit.NewDispatcher(audit.Config{
			BufferSize: cfg.AuditBuffer,
			DropIfFull: true,
		}, b.sink)
	}

	return e, nil
}
