// Package dispatcher направляет входящие обновления Telegram нужному
// сервису и изолирует сбои обработчиков: любая паника или ошибка
// превращается в отчёт оператору, а не в падение процесса.
package dispatcher

import (
	"context"
	"log/slog"

	"github.com/0niel/ninja-payment-bot/internal/lib/report"
	"github.com/0niel/ninja-payment-bot/internal/lib/sl"
	"github.com/0niel/ninja-payment-bot/internal/models"
	"github.com/0niel/ninja-payment-bot/internal/telegram"
)

// Conversation обрабатывает сообщения и нажатия кнопок диалога.
type Conversation interface {
	HandleMessage(ctx context.Context, msg *telegram.Message) error
	HandleCallback(ctx context.Context, cb *telegram.CallbackQuery) error
}

// Checkout обрабатывает платёжные события.
type Checkout interface {
	HandlePreCheckout(ctx context.Context, query *telegram.PreCheckoutQuery) error
	HandleSuccessfulPayment(ctx context.Context, msg *telegram.Message) error
}

// SessionReader читает сессию для отчёта о сбое.
type SessionReader interface {
	Get(ctx context.Context, userID int64) (models.Session, error)
}

// Dispatcher маршрутизатор обновлений.
type Dispatcher struct {
	conversation Conversation
	checkout     Checkout
	sessions     SessionReader
	reporter     *report.Reporter
	log          *slog.Logger
}

// New создает новый Dispatcher.
func New(conversation Conversation, checkout Checkout, sessions SessionReader,
	reporter *report.Reporter, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		conversation: conversation,
		checkout:     checkout,
		sessions:     sessions,
		reporter:     reporter,
		log:          log,
	}
}

// HandleUpdate обрабатывает одно обновление Bot API.
func (d *Dispatcher) HandleUpdate(ctx context.Context, upd telegram.Update) {
	defer func() {
		if r := recover(); r != nil {
			sess, _ := d.sessions.Get(ctx, updateUserID(upd))
			d.reporter.ReportPanic(ctx, r, upd, sess)
		}
	}()

	var err error
	switch {
	case upd.PreCheckoutQuery != nil:
		err = d.checkout.HandlePreCheckout(ctx, upd.PreCheckoutQuery)
	case upd.Message != nil && upd.Message.SuccessfulPayment != nil:
		err = d.checkout.HandleSuccessfulPayment(ctx, upd.Message)
	case upd.Message != nil && upd.Message.From != nil:
		err = d.conversation.HandleMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		err = d.conversation.HandleCallback(ctx, upd.CallbackQuery)
	}
	if err != nil {
		d.log.Error("failed to handle update", slog.Int64("update_id", upd.UpdateID), sl.Err(err))
		sess, _ := d.sessions.Get(ctx, updateUserID(upd))
		d.reporter.ReportError(ctx, err, upd, sess)
	}
}

func updateUserID(upd telegram.Update) int64 {
	switch {
	case upd.Message != nil && upd.Message.From != nil:
		return upd.Message.From.ID
	case upd.CallbackQuery != nil:
		return upd.CallbackQuery.From.ID
	case upd.PreCheckoutQuery != nil:
		return upd.PreCheckoutQuery.From.ID
	}
	return 0
}
