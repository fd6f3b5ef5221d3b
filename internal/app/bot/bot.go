// Package bot собирает все зависимости платёжного бота: хранилище,
// сессии, брокер задач, клиентов Telegram и Discourse и сервисы ядра.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/0niel/ninja-payment-bot/internal/config"
	"github.com/0niel/ninja-payment-bot/internal/discourse"
	"github.com/0niel/ninja-payment-bot/internal/lib/report"
	"github.com/0niel/ninja-payment-bot/internal/localization"
	"github.com/0niel/ninja-payment-bot/internal/migrations"
	"github.com/0niel/ninja-payment-bot/internal/models"
	"github.com/0niel/ninja-payment-bot/internal/rabbitmq"
	"github.com/0niel/ninja-payment-bot/internal/services/checkout"
	"github.com/0niel/ninja-payment-bot/internal/services/conversation"
	"github.com/0niel/ninja-payment-bot/internal/services/dispatcher"
	"github.com/0niel/ninja-payment-bot/internal/services/sweeper"
	"github.com/0niel/ninja-payment-bot/internal/session"
	"github.com/0niel/ninja-payment-bot/internal/storage/repository"
	"github.com/0niel/ninja-payment-bot/internal/telegram"
)

// App собранное приложение бота.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	db         *repository.Storage
	sessions   *session.Store
	amqpConn   *amqp.Connection
	channel    *amqp.Channel
	telegram   *telegram.Client
	dispatcher *dispatcher.Dispatcher
	sweeper    *sweeper.Service
	server     *http.Server
}

// New инициализирует все зависимости приложения.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	sessions, err := session.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}
	channel, err := rabbitmq.SetupChannel(conn, cfg.GrantRetryInterval)
	if err != nil {
		return nil, err
	}

	loc, err := localization.Load(cfg.TranslationsPath, models.DefaultLanguage)
	if err != nil {
		return nil, err
	}

	tgClient := telegram.NewClient(cfg.TelegramToken)
	forum := discourse.NewClient(cfg.Discourse.URL, cfg.APIKey, cfg.APIUsername)

	engine := conversation.New(db, forum, tgClient, sessions, loc, cfg, logger)
	checkoutService := checkout.New(db, sessions, tgClient, channel, loc, cfg, logger)
	sweeperService := sweeper.New(db, forum, cfg.GroupID, logger)
	reporter := report.New(tgClient, cfg.DeveloperChatID, logger)
	disp := dispatcher.New(engine, checkoutService, sessions, reporter, logger)

	app := &App{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		sessions:   sessions,
		amqpConn:   conn,
		channel:    channel,
		telegram:   tgClient,
		dispatcher: disp,
		sweeper:    sweeperService,
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, disp, cfg.WebhookSecret)
	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return app, nil
}

// RunPolling запускает очистку просроченных подписок и цикл длинного
// опроса; возвращается после отмены контекста.
func (a *App) RunPolling(ctx context.Context) error {
	go a.sweeper.Run(ctx)

	poller := telegram.NewPoller(a.telegram, a.dispatcher, a.logger)
	poller.Run(ctx)
	return a.close()
}

// RunWebhook запускает HTTP-сервер вебхука и очистку просроченных
// подписок; сервер останавливается после отмены контекста.
func (a *App) RunWebhook(ctx context.Context) error {
	go a.sweeper.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("webhook server listening", slog.String("addr", a.server.Addr))
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.TimeoutHTTP)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return a.close()
}

func (a *App) close() error {
	if err := a.channel.Close(); err != nil {
		a.logger.Error("failed to close amqp channel", slog.Any("err", err))
	}
	if err := a.amqpConn.Close(); err != nil {
		a.logger.Error("failed to close amqp connection", slog.Any("err", err))
	}
	return a.db.DB.Close()
}
