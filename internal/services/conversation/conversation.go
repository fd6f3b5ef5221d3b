// Package conversation реализует машину состояний диалога покупки подписки:
// проверка имени пользователя на форуме, подтверждение и выставление счёта.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/go-playground/validator"

	"github.com/0niel/ninja-payment-bot/internal/config"
	"github.com/0niel/ninja-payment-bot/internal/discourse"
	"github.com/0niel/ninja-payment-bot/internal/localization"
	"github.com/0niel/ninja-payment-bot/internal/models"
	"github.com/0niel/ninja-payment-bot/internal/telegram"
)

// Аватар в сообщении подтверждения запрашивается этим размером.
const avatarSize = 100

// SubscriptionProvider ищет живую подписку по имени пользователя форума.
type SubscriptionProvider interface {
	GetSubscriptionByUsername(ctx context.Context, username string) (*models.Subscription, error)
}

// Directory читает данные пользователей форума.
type Directory interface {
	GetUser(ctx context.Context, username string) (*discourse.User, error)
	AvatarURL(avatarTemplate string, size int) string
}

// Messenger отправляет сообщения и счета в Telegram.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard *telegram.InlineKeyboardMarkup) error
	SendPhoto(ctx context.Context, chatID int64, photoURL, caption string, keyboard *telegram.InlineKeyboardMarkup) error
	SendInvoice(ctx context.Context, chatID int64, title, description, payload, providerToken, currency string, prices []telegram.LabeledPrice) error
	AnswerCallbackQuery(ctx context.Context, queryID, text string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

// SessionStore хранит состояние диалогов.
type SessionStore interface {
	Get(ctx context.Context, userID int64) (models.Session, error)
	Save(ctx context.Context, userID int64, sess models.Session) error
}

// Engine машина состояний диалога.
type Engine struct {
	subs      SubscriptionProvider
	directory Directory
	messenger Messenger
	sessions  SessionStore
	loc       *localization.Localizer
	cfg       *config.Config
	validate  *validator.Validate
	log       *slog.Logger
}

// New создает новый Engine.
func New(subs SubscriptionProvider, directory Directory, messenger Messenger,
	sessions SessionStore, loc *localization.Localizer, cfg *config.Config, log *slog.Logger) *Engine {
	return &Engine{
		subs:      subs,
		directory: directory,
		messenger: messenger,
		sessions:  sessions,
		loc:       loc,
		cfg:       cfg,
		validate:  validator.New(),
		log:       log,
	}
}

func (e *Engine) contactKeyboard(lang string) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{{
			{Text: e.loc.Get("contact_admin", lang), URL: e.cfg.AdminContactURL},
		}},
	}
}

// HandleMessage обрабатывает входящее текстовое сообщение.
func (e *Engine) HandleMessage(ctx context.Context, msg *telegram.Message) error {
	const op = "conversation.HandleMessage"
	log := e.log.With(slog.String("op", op), slog.Int64("user_id", msg.From.ID))

	sess, err := e.sessions.Get(ctx, msg.From.ID)
	if err != nil {
		return err
	}
	lang := sess.Lang()

	switch {
	case msg.IsCommand("start"):
		// /start всегда сбрасывает диалог к вводу имени пользователя.
		log.Info("user started the bot")
		sess.State = models.StateAwaitingUsername
		sess.Username = ""
		if err := e.sessions.Save(ctx, msg.From.ID, sess); err != nil {
			return err
		}
		return e.messenger.SendMessage(ctx, msg.Chat.ID, e.loc.Get("welcome", lang), nil)

	case msg.IsCommand("language"):
		// Выбор языка не трогает состояние диалога.
		keyboard := &telegram.InlineKeyboardMarkup{
			InlineKeyboard: [][]telegram.InlineKeyboardButton{{
				{Text: "Русский", CallbackData: "lang:ru"},
				{Text: "English", CallbackData: "lang:en"},
			}},
		}
		return e.messenger.SendMessage(ctx, msg.Chat.ID, e.loc.Get("language_prompt", lang), keyboard)

	case sess.State == models.StateAwaitingUsername && !strings.HasPrefix(msg.Text, "/"):
		return e.handleUsername(ctx, msg, sess)
	}

	return nil
}

// handleUsername проверяет кандидата в подписчики: имя должно существовать
// на форуме, не иметь живой подписки и не состоять в закрытой группе.
func (e *Engine) handleUsername(ctx context.Context, msg *telegram.Message, sess models.Session) error {
	const op = "conversation.handleUsername"
	log := e.log.With(slog.String("op", op), slog.Int64("user_id", msg.From.ID))
	lang := sess.Lang()

	username := strings.TrimSpace(msg.Text)
	if err := e.validate.Var(username, "required,max=60,excludesall= "); err != nil {
		return e.messenger.SendMessage(ctx, msg.Chat.ID, e.loc.Get("user_not_found", lang), nil)
	}

	sub, err := e.subs.GetSubscriptionByUsername(ctx, username)
	if err != nil {
		log.Error("failed to check existing subscription", slog.Any("err", err))
		return e.messenger.SendMessage(ctx, msg.Chat.ID, e.loc.Get("lookup_error", lang), e.contactKeyboard(lang))
	}
	if sub != nil {
		return e.messenger.SendMessage(ctx, msg.Chat.ID, e.loc.Get("already_subscribed", lang), nil)
	}

	user, err := e.directory.GetUser(ctx, username)
	if errors.Is(err, discourse.ErrNotFound) {
		return e.messenger.SendMessage(ctx, msg.Chat.ID, e.loc.Get("user_not_found", lang), nil)
	}
	if err != nil {
		log.Error("failed to get forum user", slog.Any("err", err))
		return e.messenger.SendMessage(ctx, msg.Chat.ID, e.loc.Get("lookup_error", lang), e.contactKeyboard(lang))
	}
	if user.InGroup(e.cfg.GroupID) {
		return e.messenger.SendMessage(ctx, msg.Chat.ID, e.loc.Get("already_subscribed", lang), nil)
	}

	sess.Username = username
	sess.State = models.StateAwaitingConfirmation
	if err := e.sessions.Save(ctx, msg.From.ID, sess); err != nil {
		return err
	}

	keyboard := &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{{
			{Text: e.loc.Get("confirm_yes", lang), CallbackData: "confirm"},
			{Text: e.loc.Get("confirm_no", lang), CallbackData: "cancel"},
		}},
	}
	caption := e.loc.Getf("confirm_prompt", lang, e.cfg.DurationDays, username)
	avatar := e.directory.AvatarURL(user.AvatarTemplate, avatarSize)
	return e.messenger.SendPhoto(ctx, msg.Chat.ID, avatar, caption, keyboard)
}

// HandleCallback обрабатывает нажатие inline-кнопки.
func (e *Engine) HandleCallback(ctx context.Context, cb *telegram.CallbackQuery) error {
	const op = "conversation.HandleCallback"
	log := e.log.With(slog.String("op", op), slog.Int64("user_id", cb.From.ID))

	sess, err := e.sessions.Get(ctx, cb.From.ID)
	if err != nil {
		return err
	}
	lang := sess.Lang()

	switch {
	case strings.HasPrefix(cb.Data, "lang:"):
		sess.Language = strings.TrimPrefix(cb.Data, "lang:")
		if err := e.sessions.Save(ctx, cb.From.ID, sess); err != nil {
			return err
		}
		return e.messenger.AnswerCallbackQuery(ctx, cb.ID, e.loc.Get("language_set", sess.Language))

	case cb.Data == "cancel":
		if err := e.messenger.AnswerCallbackQuery(ctx, cb.ID, e.loc.Get("operation_cancelled", lang)); err != nil {
			return err
		}
		if cb.Message != nil {
			if err := e.messenger.DeleteMessage(ctx, cb.Message.Chat.ID, cb.Message.MessageID); err != nil {
				log.Error("failed to delete confirmation prompt", slog.Any("err", err))
			}
		}
		sess.State = models.StateAwaitingUsername
		sess.Username = ""
		return e.sessions.Save(ctx, cb.From.ID, sess)

	case cb.Data == "confirm":
		// Поле message в callback-запросе опционально: без него
		// некуда выставлять счёт.
		if sess.State != models.StateAwaitingConfirmation || sess.Username == "" || cb.Message == nil {
			return e.messenger.AnswerCallbackQuery(ctx, cb.ID, "")
		}
		if err := e.messenger.AnswerCallbackQuery(ctx, cb.ID, ""); err != nil {
			return err
		}
		log.Info("sending invoice", slog.String("username", sess.Username))
		prices := []telegram.LabeledPrice{
			{Label: e.loc.Get("invoice_label", lang), Amount: e.cfg.PriceRub * 100},
		}
		return e.messenger.SendInvoice(ctx,
			cb.Message.Chat.ID,
			e.loc.Get("invoice_title", lang),
			e.loc.Getf("invoice_description", lang, e.cfg.DurationDays),
			e.cfg.Payload,
			e.cfg.PaymentProviderToken,
			e.cfg.Currency,
			prices,
		)
	}

	return e.messenger.AnswerCallbackQuery(ctx, cb.ID, "")
}
