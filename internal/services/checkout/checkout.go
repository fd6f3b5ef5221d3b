// Package checkout координирует завершение оплаты: проверку pre-checkout
// запроса, запись подписки и постановку задачи на выдачу доступа.
package checkout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/0niel/ninja-payment-bot/internal/config"
	"github.com/0niel/ninja-payment-bot/internal/lib/sl"
	"github.com/0niel/ninja-payment-bot/internal/localization"
	"github.com/0niel/ninja-payment-bot/internal/metrics"
	"github.com/0niel/ninja-payment-bot/internal/models"
	"github.com/0niel/ninja-payment-bot/internal/rabbitmq"
	"github.com/0niel/ninja-payment-bot/internal/storage/repository"
	"github.com/0niel/ninja-payment-bot/internal/telegram"
)

// SubscriptionCreator записывает новую подписку в хранилище.
type SubscriptionCreator interface {
	CreateSubscription(ctx context.Context, sub models.Subscription) (int, error)
}

// SessionStore читает и удаляет состояние диалогов.
type SessionStore interface {
	Get(ctx context.Context, userID int64) (models.Session, error)
	Delete(ctx context.Context, userID int64) error
}

// Messenger отвечает плательщику в Telegram.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard *telegram.InlineKeyboardMarkup) error
	AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool, errorMessage string) error
}

// Service координатор оплаты.
type Service struct {
	subs      SubscriptionCreator
	sessions  SessionStore
	messenger Messenger
	channel   rabbitmq.Channel
	loc       *localization.Localizer
	cfg       *config.Config
	log       *slog.Logger
}

// New создает новый Service.
func New(subs SubscriptionCreator, sessions SessionStore, messenger Messenger,
	channel rabbitmq.Channel, loc *localization.Localizer, cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		subs:      subs,
		sessions:  sessions,
		messenger: messenger,
		channel:   channel,
		loc:       loc,
		cfg:       cfg,
		log:       log,
	}
}

// HandlePreCheckout подтверждает либо отклоняет платёж до списания средств.
// Платёж принимается только с ожидаемой меткой и при наличии в сессии
// подтверждённого имени пользователя.
func (s *Service) HandlePreCheckout(ctx context.Context, query *telegram.PreCheckoutQuery) error {
	const op = "checkout.HandlePreCheckout"
	log := s.log.With(slog.String("op", op), slog.Int64("user_id", query.From.ID))

	sess, err := s.sessions.Get(ctx, query.From.ID)
	if err != nil {
		log.Error("failed to load session", sl.Err(err))
		return s.messenger.AnswerPreCheckoutQuery(ctx, query.ID, false, s.loc.Get("precheckout_error", models.DefaultLanguage))
	}

	if query.InvoicePayload != s.cfg.Payload || sess.Username == "" {
		log.Error("invalid precheckout payload", slog.String("payload", query.InvoicePayload))
		return s.messenger.AnswerPreCheckoutQuery(ctx, query.ID, false, s.loc.Get("precheckout_error", sess.Lang()))
	}

	log.Info("precheckout query is valid")
	return s.messenger.AnswerPreCheckoutQuery(ctx, query.ID, true, "")
}

// HandleSuccessfulPayment записывает подписку после состоявшегося платежа
// и ставит задачу выдачи членства с нулевой задержкой. Сумма платежа
// повторно не сверяется: расчёт уже проведён платёжной системой.
func (s *Service) HandleSuccessfulPayment(ctx context.Context, msg *telegram.Message) error {
	const op = "checkout.HandleSuccessfulPayment"
	log := s.log.With(slog.String("op", op), slog.Int64("user_id", msg.From.ID))

	metrics.PaymentsTotal.Inc()

	sess, err := s.sessions.Get(ctx, msg.From.ID)
	if err != nil || sess.Username == "" {
		// Средства уже списаны, а сессии нет: разбор вручную.
		log.Error("session has no confirmed username after settlement", slog.Any("err", err))
		return s.messenger.SendMessage(ctx, msg.Chat.ID,
			s.loc.Get("payment_session_lost", sess.Lang()), s.contactKeyboard(sess.Lang()))
	}
	lang := sess.Lang()

	startDate := time.Now()
	endDate := startDate.Add(s.cfg.Subscription.Duration())

	sub := models.Subscription{
		TelegramUserID: msg.From.ID,
		Username:       sess.Username,
		StartDate:      startDate,
		EndDate:        endDate,
	}
	id, err := s.subs.CreateSubscription(ctx, sub)
	if errors.Is(err, repository.ErrAlreadyExists) {
		// Два покупателя одного имени: гонку выиграл другой платёж.
		log.Error("subscription already exists after settlement", sl.Username(sess.Username))
		return s.messenger.SendMessage(ctx, msg.Chat.ID,
			s.loc.Get("already_subscribed", lang), s.contactKeyboard(lang))
	}
	if err != nil {
		// Платёж состоялся, подписка не записана: известный пробел,
		// пользователю уходит общая ошибка, дальше разбирается оператор.
		log.Error("failed to create subscription", sl.Err(err), sl.Username(sess.Username))
		return s.messenger.SendMessage(ctx, msg.Chat.ID,
			s.loc.Get("payment_failed", lang), s.contactKeyboard(lang))
	}
	metrics.SubscriptionsCreatedTotal.Inc()
	log.Info("subscription created", slog.Int("id", id), sl.Username(sess.Username))

	task := models.GrantTask{Username: sess.Username}
	if err := rabbitmq.PublishMessage(s.channel, rabbitmq.Exchange, rabbitmq.GrantRoutingKey, task); err != nil {
		log.Error("failed to schedule membership grant", sl.Err(err), sl.Username(sess.Username))
	}

	if err := s.messenger.SendMessage(ctx, msg.Chat.ID,
		s.loc.Getf("payment_success", lang, startDate.Format("02.01.2006"), endDate.Format("02.01.2006")), nil); err != nil {
		return err
	}
	if err := s.messenger.SendMessage(ctx, msg.Chat.ID, s.loc.Get("access_instructions", lang), nil); err != nil {
		return err
	}
	if err := s.messenger.SendMessage(ctx, msg.Chat.ID,
		s.loc.Get("questions_contact", lang), s.contactKeyboard(lang)); err != nil {
		return err
	}

	// Диалог завершён, сессия больше не нужна.
	if err := s.sessions.Delete(ctx, msg.From.ID); err != nil {
		log.Error("failed to delete session", sl.Err(err))
	}
	return nil
}

func (s *Service) contactKeyboard(lang string) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{{
			{Text: s.loc.Get("contact_admin", lang), URL: s.cfg.AdminContactURL},
		}},
	}
}
