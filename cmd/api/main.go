package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/eli-ai/eli-backend/internal/auth"
	"github.com/eli-ai/eli-backend/internal/config"
	"github.com/eli-ai/eli-backend/internal/handler"
	"github.com/eli-ai/eli-backend/internal/service/evi"
	"github.com/eli-ai/eli-backend/internal/service/relay"
	"github.com/eli-ai/eli-backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file if present; production supplies real env vars.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		errLogger := zerolog.New(os.Stderr)
		errLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	var logger zerolog.Logger
	if cfg.Server.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	if !cfg.Hume.Enabled() {
		logger.Fatal().Msg("HUME_API_KEY is required")
	}

	var st store.Store
	if cfg.Database.URL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		defer pgStore.Close()

		if err := pgStore.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("connected to PostgreSQL")
		st = pgStore
	} else {
		logger.Warn().Msg("DATABASE_URL not set, chats will not survive restarts")
		st = store.NewMemoryStore()
	}

	verifier := auth.NewVerifier(cfg.Auth.Secret)
	eviClient := evi.NewClient(cfg.Hume)
	dialer := relay.DialerFunc(func(ctx context.Context) (relay.Upstream, error) {
		return eviClient.Connect(ctx)
	})
	relaySvc := relay.NewService(verifier, dialer, st, logger, cfg.Hume.IdleTimeout)

	router := handler.NewRouter(logger, verifier, relaySvc, st)

	startServer(ctx, logger, cfg.Server, router, relaySvc)
}

func startServer(ctx context.Context, logger zerolog.Logger, serverCfg config.ServerConfig, router http.Handler, relaySvc *relay.Service) {
	srv := &http.Server{
		Addr:    serverCfg.Addr,
		Handler: router,
		// Request contexts derive from the signal context so relay
		// sessions see the shutdown and finalize their chats.
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", serverCfg.Addr).Msg("eli backend listening")
	if err := runServer(ctx, srv, relaySvc, logger); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server, relaySvc *relay.Service, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		// Shutdown does not wait for hijacked websocket connections.
		if err := relaySvc.Drain(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("shutdown deadline hit with sessions still draining")
		}
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
