// Package report отправляет диагностические сообщения о необработанных
// сбоях в чат оператора: сериализованное обновление, снимок сессии
// и стек вызовов в HTML-блоках.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"runtime/debug"
	"unicode/utf8"

	"github.com/0niel/ninja-payment-bot/internal/lib/sl"
	"github.com/0niel/ninja-payment-bot/internal/models"
)

// Telegram режет сообщения длиннее 4096 символов.
const maxMessageLen = 4000

// Messenger отправляет HTML-сообщение в чат.
type Messenger interface {
	SendHTMLMessage(ctx context.Context, chatID int64, text string) error
}

// Reporter форматирует и отправляет отчёты о сбоях оператору.
type Reporter struct {
	messenger Messenger
	chatID    int64
	log       *slog.Logger
}

// New создает новый Reporter. Нулевой chatID отключает отправку,
// отчёты остаются только в логе.
func New(messenger Messenger, chatID int64, log *slog.Logger) *Reporter {
	return &Reporter{
		messenger: messenger,
		chatID:    chatID,
		log:       log,
	}
}

// ReportPanic отправляет оператору отчёт о панике в обработчике обновления.
// Стек берётся в точке вызова.
func (r *Reporter) ReportPanic(ctx context.Context, recovered any, update any, sess models.Session) {
	r.log.Error("panic while handling an update", slog.Any("panic", recovered))

	detail := fmt.Sprintf("%v: %s", recovered, debug.Stack())
	r.send(ctx, update, sess, detail)
}

// ReportError отправляет оператору отчёт об ошибке, которую не смог
// обработать ни один сервис.
func (r *Reporter) ReportError(ctx context.Context, handlerErr error, update any, sess models.Session) {
	r.log.Error("unhandled error while handling an update", sl.Err(handlerErr))

	r.send(ctx, update, sess, handlerErr.Error())
}

func (r *Reporter) send(ctx context.Context, update any, sess models.Session, detail string) {
	updateJSON, err := json.MarshalIndent(update, "", "  ")
	if err != nil {
		updateJSON = []byte(fmt.Sprintf("%+v", update))
	}

	message := fmt.Sprintf(
		"An exception was raised while handling an update\n"+
			"<pre>update = %s</pre>\n\n"+
			"<pre>session = %s</pre>\n\n"+
			"<pre>%s</pre>",
		html.EscapeString(string(updateJSON)),
		html.EscapeString(fmt.Sprintf("%+v", sess)),
		html.EscapeString(detail),
	)
	if len(message) > maxMessageLen {
		// Обрезка не должна разрывать многобайтовую руну.
		cut := maxMessageLen
		for cut > 0 && !utf8.RuneStart(message[cut]) {
			cut--
		}
		message = message[:cut] + "</pre>"
	}

	if r.chatID == 0 {
		return
	}
	if err := r.messenger.SendHTMLMessage(ctx, r.chatID, message); err != nil {
		r.log.Error("failed to report to operator chat", sl.Err(err))
	}
}
