package telegram

import (
	"context"
	"log/slog"
	"time"

	"github.com/0niel/ninja-payment-bot/internal/lib/sl"
)

// UpdateHandler обрабатывает одно входящее обновление.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, upd Update)
}

// Poller читает обновления длинным опросом и передаёт их обработчику.
// Обновления одного опроса обрабатываются последовательно: Bot API
// отдаёт события каждого чата по порядку, и порядок важен для диалога.
type Poller struct {
	client  *Client
	handler UpdateHandler
	log     *slog.Logger
	timeout time.Duration
}

// NewPoller создает новый Poller.
func NewPoller(client *Client, handler UpdateHandler, log *slog.Logger) *Poller {
	return &Poller{
		client:  client,
		handler: handler,
		log:     log,
		timeout: 60 * time.Second,
	}
}

// Run крутит цикл длинного опроса до отмены контекста.
func (p *Poller) Run(ctx context.Context) {
	var offset int64

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := p.client.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error("failed to get updates", sl.Err(err))
			time.Sleep(3 * time.Second)
			continue
		}

		for _, upd := range updates {
			offset = upd.UpdateID + 1
			p.handler.HandleUpdate(ctx, upd)
		}
	}
}
