package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/linkerbell/campus-market-chat/internal/auth"
	"github.com/linkerbell/campus-market-chat/internal/config"
	"github.com/linkerbell/campus-market-chat/internal/core"
	"github.com/linkerbell/campus-market-chat/internal/fanout"
	"github.com/linkerbell/campus-market-chat/internal/push"
	"github.com/linkerbell/campus-market-chat/internal/service/chat"
	"github.com/linkerbell/campus-market-chat/internal/service/devicetoken"
	"github.com/linkerbell/campus-market-chat/internal/service/notify"
	"github.com/linkerbell/campus-market-chat/internal/store/sqlite"
	transporthttp "github.com/linkerbell/campus-market-chat/internal/transport/http"
)

// App wires together storage, services and transport.
type App struct {
	server          *transporthttp.Server
	shutdownTimeout time.Duration
	store           *sqlite.SQLiteStore
	relay           *fanout.RedisRelay
	notifier        *notify.Service
	log             *zerolog.Logger
}

// JWTConfig converts the configured token settings for the auth package.
func JWTConfig(cfg config.JWTConfig) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.Secret),
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		TTL:      cfg.TTL,
	}
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := checkJWTSecret(cfg, logger); err != nil {
		return nil, err
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	broker := core.NewBroker()

	var broadcaster chat.Broadcaster = broker
	var relay *fanout.RedisRelay
	if cfg.Fanout.RedisAddr != "" {
		relay, err = fanout.NewRedisRelay(ctx, fanout.RedisConfig{
			Addr:     cfg.Fanout.RedisAddr,
			Password: cfg.Fanout.RedisPassword,
			DB:       cfg.Fanout.RedisDB,
			Prefix:   cfg.Fanout.ChannelPrefix,
		}, broker, logger)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("init fanout: %w", err)
		}
		broadcaster = relay
		logger.Info().Str("redis_addr", cfg.Fanout.RedisAddr).Msg("redis fan-out enabled")
	}

	sender, err := newPushSender(ctx, cfg.Push, logger)
	if err != nil {
		_ = st.Close()
		if relay != nil {
			_ = relay.Close()
		}
		return nil, err
	}
	transport := push.NewTransport(sender, push.Options{
		Timeout:         cfg.Push.Timeout,
		BreakerFailures: cfg.Push.BreakerFailures,
		BreakerTimeout:  cfg.Push.BreakerTimeout,
	}, logger)

	tokens := devicetoken.New(st, logger)
	notifier := notify.New(st, transport, tokens, cfg.Push.DeeplinkBase, logger)
	chatSvc := chat.New(st, broadcaster, notifier, logger)

	validator := auth.NewValidator(JWTConfig(cfg.JWT), logger)
	server := transporthttp.NewServer(transporthttp.Deps{
		Broker:       broker,
		Validator:    validator,
		Chat:         chatSvc,
		DeviceTokens: tokens,
	}, *cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		relay:           relay,
		notifier:        notifier,
		log:             logger,
	}, nil
}

// ErrDefaultJWTSecret rejects the shipped placeholder secret where it matters.
var ErrDefaultJWTSecret = errors.New("jwt.secret is unset or still the default; set a private secret")

// checkJWTSecret refuses an empty secret, and the default one when push is enabled.
// Otherwise the default only earns a warning, for local development.
func checkJWTSecret(cfg *config.Config, logger *zerolog.Logger) error {
	switch {
	case cfg.JWT.Secret == "":
		return ErrDefaultJWTSecret
	case cfg.JWT.Secret != config.DefaultJWTSecret:
		return nil
	case cfg.Push.Enabled:
		return ErrDefaultJWTSecret
	default:
		logger.Warn().Msg("jwt.secret is the default value; anyone can mint tokens for this server")
		return nil
	}
}

func newPushSender(ctx context.Context, cfg config.PushConfig, logger *zerolog.Logger) (push.Sender, error) {
	if !cfg.Enabled {
		logger.Info().Msg("push disabled, notifications are logged only")
		return push.NewLogSender(logger), nil
	}
	sender, err := push.NewFCMSender(ctx, cfg.ProjectID, cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("init fcm: %w", err)
	}
	logger.Info().Str("project_id", cfg.ProjectID).Msg("fcm push enabled")
	return sender, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	if a.relay != nil {
		go func() {
			if err := a.relay.Run(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error().Err(err).Msg("redis relay stopped")
			}
		}()
	}

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()
		_ = a.server.Shutdown(shutdownCtx)
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup drains in-flight notifications, then closes the relay and database.
// Callers shut the server down first so no session can still send.
func (a *App) cleanup() {
	a.notifier.Shutdown()

	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis relay")
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close store")
	} else {
		a.log.Info().Msg("store closed")
	}
}
