package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/0niel/ninja-payment-bot/internal/config"
	"github.com/0niel/ninja-payment-bot/internal/discourse"
	"github.com/0niel/ninja-payment-bot/internal/lib/retry"
	"github.com/0niel/ninja-payment-bot/internal/lib/sl"
	"github.com/0niel/ninja-payment-bot/internal/rabbitmq"
	"github.com/0niel/ninja-payment-bot/internal/services/membership"
)

func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger.Info("starting membership worker", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", sl.Err(err))
		os.Exit(1)
	}
	defer func() {
		_ = conn.Close()
	}()
	logger.Info("connected to RabbitMQ", slog.String("url", cfg.RabbitMQURL))

	ch, err := rabbitmq.SetupChannel(conn, cfg.GrantRetryInterval)
	if err != nil {
		logger.Error("failed to setup RabbitMQ channel", sl.Err(err))
		os.Exit(1)
	}
	defer func() {
		_ = ch.Close()
	}()

	forum := discourse.NewClient(cfg.Discourse.URL, cfg.APIKey, cfg.APIUsername)
	policy := retry.FixedInterval{Interval: cfg.GrantRetryInterval}
	service := membership.New(forum, ch, policy, cfg.GroupID, logger)

	if err := rabbitmq.ConsumerMessage(ctx, ch, rabbitmq.GrantQueue, service.HandleTask(ctx)); err != nil {
		logger.Error("failed to start consumer", sl.Err(err))
		os.Exit(1)
	}
	logger.Info("consuming membership grant tasks", slog.String("queue", rabbitmq.GrantQueue))

	<-ctx.Done()
	logger.Info("membership worker stopped gracefully")
}
