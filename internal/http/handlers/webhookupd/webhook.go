// Package webhookupd реализует HTTP-обработчик вебхука Telegram.
//
// Bot API подписывает запросы заголовком X-Telegram-Bot-Api-Secret-Token;
// запросы с неверным секретом отклоняются до разбора тела. Обновление
// обрабатывается синхронно, Telegram ждёт только подтверждения приёма.
package webhookupd

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/0niel/ninja-payment-bot/internal/http/response"
	"github.com/0niel/ninja-payment-bot/internal/lib/sl"
	"github.com/0niel/ninja-payment-bot/internal/telegram"
)

// Handler управляет HTTP-запросами вебхука Telegram.
type Handler struct {
	log     *slog.Logger
	handler telegram.UpdateHandler
	secret  string
}

// New создает новый Handler.
func New(log *slog.Logger, handler telegram.UpdateHandler, secret string) *Handler {
	return &Handler{
		log:     log,
		handler: handler,
		secret:  secret,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.webhookupd"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	token := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) != 1 {
		log.Error("webhook secret mismatch")
		w.WriteHeader(http.StatusForbidden)
		render.JSON(w, r, response.Error("forbidden"))
		return
	}

	var upd telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		log.Error("failed to decode update", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	h.handler.HandleUpdate(r.Context(), upd)
	render.JSON(w, r, response.OK())
}
