package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/mahaj/chat-delivery/pkg/config"
	"github.com/mahaj/chat-delivery/pkg/logging"
	"github.com/mahaj/chat-delivery/pkg/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logging.New("notifier", true)
		l.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.New("notifier", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := notify.NewHTTPDispatcher(cfg.NotificationServiceURL, cfg.ServiceToken, cfg.NotifyTimeout)
	consumer := NewConsumer(NewReader(cfg.KafkaBrokers, cfg.NotificationTopic, cfg.NotifierGroupID), dispatcher, logger)
	defer consumer.Close()

	logger.Info().
		Strs("brokers", cfg.KafkaBrokers).
		Str("topic", cfg.NotificationTopic).
		Str("group_id", cfg.NotifierGroupID).
		Str("target", cfg.NotificationServiceURL).
		Msg("starting notification relay")

	if err := consumer.Consume(ctx); err != nil {
		logger.Error().Err(err).Msg("consumer stopped")
	}
	logger.Info().Msg("notification relay stopped")
}
