package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	identity "github.com/tarkov-database/identity-server"
	"github.com/tarkov-database/identity-server/admission"
	"github.com/tarkov-database/identity-server/httpapi"
	"github.com/tarkov-database/identity-server/jwt"
	"github.com/tarkov-database/identity-server/store"
	"github.com/tarkov-database/identity-server/store/postgres"
	"github.com/tarkov-database/identity-server/store/redisstore"
)

type config struct {
	Listen          string        `env:"LISTEN" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"redis"`
	RedisAddr    string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	PostgresDSN  string `env:"POSTGRES_DSN"`
	Migrate      bool   `env:"MIGRATE" envDefault:"true"`

	VaultKey      string        `env:"VAULT_KEY,required"`
	JWTMethod     string        `env:"JWT_METHOD" envDefault:"ed25519"`
	JWTPrivateKey string        `env:"JWT_PRIVATE_KEY,required"`
	JWTPublicKey  string        `env:"JWT_PUBLIC_KEY"`
	JWTIssuer     string        `env:"JWT_ISSUER" envDefault:"identity-server"`
	AccessTTL     time.Duration `env:"ACCESS_TTL" envDefault:"10m"`
	RefreshTTL    time.Duration `env:"REFRESH_TTL" envDefault:"720h"`

	MaxConcurrent  int           `env:"ADMISSION_MAX_CONCURRENT" envDefault:"256"`
	RequestTimeout time.Duration `env:"ADMISSION_TIMEOUT" envDefault:"5s"`

	ThrottleAttempts int           `env:"THROTTLE_MAX_ATTEMPTS" envDefault:"10"`
	ThrottleWindow   time.Duration `env:"THROTTLE_WINDOW" envDefault:"15m"`
}

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	vaultKey, err := base64.StdEncoding.DecodeString(cfg.VaultKey)
	if err != nil {
		return fmt.Errorf("decode vault key: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = rdb.Close() }()

	st, cleanup, err := openStore(ctx, cfg, rdb, log)
	if err != nil {
		return err
	}
	defer cleanup()

	engineCfg := identity.DefaultConfig()
	engineCfg.VaultKey = vaultKey
	engineCfg.RefreshTTL = cfg.RefreshTTL
	engineCfg.JWT, err = jwtConfig(cfg)
	if err != nil {
		return err
	}
	engineCfg.Throttle.MaxAttempts = cfg.ThrottleAttempts
	engineCfg.Throttle.Window = cfg.ThrottleWindow

	engine, err := identity.NewBuilder().
		WithConfig(engineCfg).
		WithStore(st).
		WithRedis(rdb).
		WithLogger(log).
		WithAuditSink(identity.NewZapSink(log.Named("audit"))).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	pipe := admission.New(admission.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		Timeout:       cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           httpapi.New(engine, pipe, log).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Listen), zap.String("store", cfg.StoreBackend))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config, rdb *redis.Client, log *zap.Logger) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case "redis":
		return redisstore.New(rdb, redisstore.Config{}), func() {}, nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, nil, errors.New("POSTGRES_DSN is required for the postgres backend")
		}
		if cfg.Migrate {
			if err := postgres.Migrate(ctx, cfg.PostgresDSN); err != nil {
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
			log.Info("migrations applied")
		}
		db, err := postgres.NewDB(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return postgres.New(db), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func jwtConfig(cfg config) (jwt.Config, error) {
	out := jwt.Config{
		AccessTTL: cfg.AccessTTL,
		Issuer:    cfg.JWTIssuer,
		Leeway:    30 * time.Second,
	}

	priv, err := decodeKey(cfg.JWTPrivateKey)
	if err != nil {
		return out, fmt.Errorf("decode private key: %w", err)
	}
	pub, err := decodeKey(cfg.JWTPublicKey)
	if err != nil {
		return out, fmt.Errorf("decode public key: %w", err)
	}
	out.PrivateKey = priv
	out.PublicKey = pub

	switch cfg.JWTMethod {
	case "ed25519":
		out.SigningMethod = jwt.MethodEd25519
	case "hs256":
		out.SigningMethod = jwt.MethodHS256
	default:
		return out, fmt.Errorf("unknown signing method %q", cfg.JWTMethod)
	}
	return out, nil
}

// decodeKey accepts base64 or raw PEM key material.
func decodeKey(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	if raw, err := base64.StdEncoding.DecodeString(value); err == nil {
		return raw, nil
	}
	return []byte(value), nil
}
