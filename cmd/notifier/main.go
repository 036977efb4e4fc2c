package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ecomjrm/fulfillment-sync/internal/config"
	"github.com/ecomjrm/fulfillment-sync/internal/logger"
	"github.com/ecomjrm/fulfillment-sync/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info").Fatal("failed to load config", zap.Error(err))
	}
	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(cfg.Kafka.Brokers) == 0 {
		log.Fatal("KAFKA_BROKERS is required for the notifier")
	}

	var sender notify.Sender = notify.NewLogSender(log)
	if cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegramSender(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			log.Fatal("failed to start telegram sender", zap.Error(err))
		}
		sender = tg
	} else {
		log.Info("TELEGRAM_BOT_TOKEN not set, notifications go to the log")
	}

	r := notify.NewReader(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID)
	defer func() {
		log.Info("closing kafka reader")
		if err := r.Close(); err != nil {
			log.Error("failed to close kafka reader", zap.Error(err))
		}
	}()

	log.Info("notifier consuming",
		zap.String("topic", cfg.Kafka.Topic),
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("group_id", cfg.Kafka.GroupID))

	if err := notify.Consume(ctx, r, notify.NewNotifier(sender, log), log); err != nil {
		log.Error("consumer stopped", zap.Error(err))
	}
	log.Info("notifier stopped")
}
