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
	"github.com/mahaj/chat-delivery/pkg/logging"
	"github.com/mahaj/chat-delivery/pkg/mailbox"
	"github.com/mahaj/chat-delivery/pkg/presence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logging.New("api", true)
		l.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.New("api", cfg.IsDevelopment())

	ctx := context.Background()

	mb, closeMailbox, err := mailbox.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.MailboxBackend).Msg("failed to open mailbox")
	}
	defer closeMailbox()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	api := NewAPI(mb, auth.NewAuthenticator(cfg.JWTSecret), presence.New(rdb), logger, Options{
		DefaultLimit: cfg.HistoryDefaultLimit,
		MaxLimit:     cfg.HistoryMaxLimit,
		DevLogin:     cfg.IsDevelopment(),
	})

	srv := &http.Server{
		Addr:         cfg.APIAddr,
		Handler:      api.Routes(cfg.ServiceToken),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.APIAddr).
			Str("env", cfg.Env).
			Str("backend", cfg.MailboxBackend).
			Msg("starting api")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down api...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	logger.Info().Msg("api stopped")
}
