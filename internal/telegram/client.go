package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client клиент Telegram Bot API. Все исходящие вызовы проходят через
// общий ограничитель частоты: Bot API допускает порядка 30 сообщений
// в секунду на бота.
type Client struct {
	apiURL     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient создаёт новый клиент Bot API для переданного токена.
func NewClient(token string) *Client {
	return &Client{
		apiURL:     "https://api.telegram.org/bot" + token,
		httpClient: &http.Client{Timeout: 65 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(25), 5),
	}
}

func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	const op = "telegram.call"

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var buf bytes.Buffer
	if params != nil {
		if err := json.NewEncoder(&buf).Encode(params); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/"+method, &buf)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !envelope.Ok {
		return fmt.Errorf("%s: %s: %s", op, method, envelope.Description)
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

// SendMessage отправляет текстовое сообщение, опционально с клавиатурой.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, keyboard *InlineKeyboardMarkup) error {
	params := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if keyboard != nil {
		params["reply_markup"] = keyboard
	}
	return c.call(ctx, "sendMessage", params, nil)
}

// SendHTMLMessage отправляет сообщение с HTML-разметкой.
func (c *Client) SendHTMLMessage(ctx context.Context, chatID int64, text string) error {
	params := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	return c.call(ctx, "sendMessage", params, nil)
}

// SendPhoto отправляет фотографию по URL с подписью и клавиатурой.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photoURL, caption string, keyboard *InlineKeyboardMarkup) error {
	params := map[string]any{
		"chat_id": chatID,
		"photo":   photoURL,
		"caption": caption,
	}
	if keyboard != nil {
		params["reply_markup"] = keyboard
	}
	return c.call(ctx, "sendPhoto", params, nil)
}

// SendInvoice выставляет счёт на оплату. Сумма в prices указывается
// в минимальных единицах валюты (копейках).
func (c *Client) SendInvoice(ctx context.Context, chatID int64, title, description, payload, providerToken, currency string, prices []LabeledPrice) error {
	params := map[string]any{
		"chat_id":        chatID,
		"title":          title,
		"description":    description,
		"payload":        payload,
		"provider_token": providerToken,
		"currency":       currency,
		"prices":         prices,
	}
	return c.call(ctx, "sendInvoice", params, nil)
}

// AnswerPreCheckoutQuery отвечает на pre-checkout-запрос. Непустой
// errorMessage означает отказ, он будет показан плательщику.
func (c *Client) AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool, errorMessage string) error {
	params := map[string]any{
		"pre_checkout_query_id": queryID,
		"ok":                    ok,
	}
	if errorMessage != "" {
		params["error_message"] = errorMessage
	}
	return c.call(ctx, "answerPreCheckoutQuery", params, nil)
}

// AnswerCallbackQuery отвечает на нажатие inline-кнопки.
func (c *Client) AnswerCallbackQuery(ctx context.Context, queryID, text string) error {
	params := map[string]any{
		"callback_query_id": queryID,
	}
	if text != "" {
		params["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", params, nil)
}

// DeleteMessage удаляет сообщение из чата.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	params := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}
	return c.call(ctx, "deleteMessage", params, nil)
}

// GetUpdates получает очередную порцию обновлений длинным опросом.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	params := map[string]any{
		"offset":  offset,
		"timeout": int(timeout.Seconds()),
		"allowed_updates": []string{
			"message", "callback_query", "pre_checkout_query",
		},
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}
