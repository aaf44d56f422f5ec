package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mahaj/chat-delivery/pkg/auth"
	"github.com/mahaj/chat-delivery/pkg/config"
	"github.com/mahaj/chat-delivery/pkg/delivery"
	"github.com/mahaj/chat-delivery/pkg/logging"
	"github.com/mahaj/chat-delivery/pkg/mailbox"
	"github.com/mahaj/chat-delivery/pkg/notify"
	"github.com/mahaj/chat-delivery/pkg/policy"
	"github.com/mahaj/chat-delivery/pkg/presence"
	"github.com/mahaj/chat-delivery/pkg/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logging.New("gateway", true)
		l.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.New("gateway", cfg.IsDevelopment())

	ctx := context.Background()

	mb, closeMailbox, err := mailbox.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.MailboxBackend).Msg("failed to open mailbox")
	}
	defer closeMailbox()
	logger.Info().Str("backend", cfg.MailboxBackend).Msg("mailbox ready")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, block checks will fail until it is up")
	}

	var notifier notify.Notifier
	switch cfg.Notifier {
	case "kafka":
		k := notify.NewKafka(cfg.KafkaBrokers, cfg.NotificationTopic)
		defer k.Close()
		notifier = k
	default:
		notifier = notify.NewLog(logger)
	}

	reg := registry.New()
	router := delivery.NewRouter(mb, reg, policy.NewRedis(rdb), notifier, logger,
		delivery.WithNotifyTimeout(cfg.NotifyTimeout))
	replayer := delivery.NewReplayer(mb, cfg.UndeliveredWindow, cfg.ReplayLimit, logger)

	gw := NewGateway(reg, router, replayer, auth.NewAuthenticator(cfg.JWTSecret), presence.New(rdb), logger,
		WithMaxFrameBytes(cfg.MaxFrameBytes))

	// No write timeout: websocket connections are hijacked and manage their
	// own deadlines.
	srv := &http.Server{
		Addr:        cfg.GatewayAddr,
		Handler:     gw.Routes(cfg.ServiceToken),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.GatewayAddr).
			Str("env", cfg.Env).
			Msg("starting gateway")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gateway...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	// Let in-flight notifications finish before their producer closes.
	router.Wait()

	logger.Info().Msg("gateway stopped")
}
