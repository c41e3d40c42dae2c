// Package app assembles the service from configuration and runs the HTTP
// server until its context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clipsocial/social-api/internal/api"
	"github.com/clipsocial/social-api/internal/api/handler"
	"github.com/clipsocial/social-api/internal/core/ports"
	"github.com/clipsocial/social-api/internal/core/service"
	"github.com/clipsocial/social-api/internal/infrastructure/config"
	"github.com/clipsocial/social-api/internal/infrastructure/db/memory"
	mongostore "github.com/clipsocial/social-api/internal/infrastructure/db/mongo"
	pgstore "github.com/clipsocial/social-api/internal/infrastructure/db/postgres"
	redisstore "github.com/clipsocial/social-api/internal/infrastructure/db/redis"
	"github.com/clipsocial/social-api/internal/infrastructure/queue"
	"github.com/clipsocial/social-api/internal/infrastructure/security/password"
	"github.com/clipsocial/social-api/internal/infrastructure/security/token"
)

// identityStore is a credential store that can create its own schema.
type identityStore interface {
	ports.IdentityRepository
	EnsureSchema(ctx context.Context) error
}

// App owns every long-lived resource of the process.
type App struct {
	cfg        *config.Config
	log        zerolog.Logger
	echo       *echo.Echo
	dispatcher *queue.Dispatcher
	closers    []func(context.Context) error
}

// New connects to the configured backends and builds the HTTP router. On
// error every resource opened so far is released.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	store, sink, pingers, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	var throttle ports.LoginThrottle
	if cfg.ThrottleEnabled() {
		rdb, err := redisstore.Connect(ctx, redisstore.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
		throttle = redisstore.NewLoginThrottle(rdb, cfg.Login.MaxFailures, cfg.Login.FailureWindow)
		pingers = append(pingers, redisstore.Pinger{Client: rdb})
	}

	hasher, err := password.NewHasher(password.Params{
		Algorithm:     password.Algorithm(cfg.Password.Algorithm),
		BcryptCost:    cfg.Password.BcryptCost,
		Argon2Time:    cfg.Password.Argon2Time,
		Argon2Memory:  cfg.Password.Argon2Memory,
		Argon2Threads: cfg.Password.Argon2Threads,
		Concurrency:   cfg.Password.Concurrency,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := token.NewService(token.Config{
		Secret: []byte(cfg.Token.Secret),
		Method: cfg.Token.SigningMethod,
		TTL:    cfg.Token.TTL,
	})
	if err != nil {
		return nil, err
	}

	// Audit writes outlive request cancellation so Stop can drain the queue.
	a.dispatcher = queue.NewDispatcher(cfg.Audit.Workers, sink, log)
	a.dispatcher.Start(context.WithoutCancel(ctx))

	authService := service.NewAuthService(store, hasher, tokens, throttle, a.dispatcher, log)

	a.echo = api.NewRouter(api.Dependencies{
		AuthService: authService,
		Verifier:    tokens,
		Pingers:     pingers,
		RateLimit:   api.RateLimit{RPS: cfg.Login.RateLimitRPS, Burst: cfg.Login.RateLimitBurst},
		Log:         log,
	})

	return a, nil
}

// openStore returns the identity store selected by STORE_DRIVER together
// with the audit sink and the readiness checks that belong to it.
func (a *App) openStore(ctx context.Context) (identityStore, ports.AuthEventSink, []handler.Pinger, error) {
	switch a.cfg.StoreDriver {
	case config.StoreMongo:
		client, db, err := mongostore.Connect(ctx, mongostore.Config{URI: a.cfg.Mongo.URI, Database: a.cfg.Mongo.Database})
		if err != nil {
			return nil, nil, nil, err
		}
		a.closers = append(a.closers, client.Disconnect)
		a.log.Info().Str("database", a.cfg.Mongo.Database).Msg("connected to mongo")
		return mongostore.NewIdentityRepository(db), mongostore.NewAuditSink(db), []handler.Pinger{mongostore.Pinger{Client: client}}, nil

	case config.StorePostgres:
		pool, err := pgstore.Connect(ctx, pgstore.Config{DSN: a.cfg.Postgres.DSN})
		if err != nil {
			return nil, nil, nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { pool.Close(); return nil })
		a.log.Info().Msg("connected to postgres")
		return pgstore.NewIdentityRepository(pool), queue.NewLogSink(a.log), []handler.Pinger{pgstore.Pinger{Pool: pool}}, nil

	case config.StoreMemory:
		a.log.Warn().Msg("using in-memory identity store, data is lost on restart")
		store := memory.NewIdentityRepository()
		return store, queue.NewLogSink(a.log), []handler.Pinger{store}, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown store driver %q", a.cfg.StoreDriver)
}

// Handler exposes the router, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.echo
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully within
// SHUTDOWN_TIMEOUT.
func (a *App) Run(ctx context.Context) error {
	addr := ":" + a.cfg.Port
	errCh := make(chan error, 1)

	go func() {
		a.log.Info().Str("addr", addr).Str("env", a.cfg.Env).Msg("http server listening")
		if err := a.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			a.log.Error().Err(serveErr).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.echo.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("http server shutdown")
	}
	a.close(shutdownCtx)

	a.log.Info().Msg("server stopped")
	return serveErr
}

// close stops the audit dispatcher first so queued events reach the store
// before its connection goes away.
func (a *App) close(ctx context.Context) {
	if a.dispatcher != nil {
		a.dispatcher.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Warn().Err(err).Msg("closing resource")
		}
	}
	a.closers = nil
}
