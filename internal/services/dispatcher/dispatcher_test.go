package dispatcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/0niel/ninja-payment-bot/internal/lib/report"
	"github.com/0niel/ninja-payment-bot/internal/models"
	"github.com/0niel/ninja-payment-bot/internal/telegram"
)

type ConversationMock struct{ mock.Mock }

func (m *ConversationMock) HandleMessage(ctx context.Context, msg *telegram.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *ConversationMock) HandleCallback(ctx context.Context, cb *telegram.CallbackQuery) error {
	return m.Called(ctx, cb).Error(0)
}

type CheckoutMock struct{ mock.Mock }

func (m *CheckoutMock) HandlePreCheckout(ctx context.Context, query *telegram.PreCheckoutQuery) error {
	return m.Called(ctx, query).Error(0)
}

func (m *CheckoutMock) HandleSuccessfulPayment(ctx context.Context, msg *telegram.Message) error {
	return m.Called(ctx, msg).Error(0)
}

type SessionsMock struct{ mock.Mock }

func (m *SessionsMock) Get(ctx context.Context, userID int64) (models.Session, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(models.Session), args.Error(1)
}

type MessengerMock struct{ mock.Mock }

func (m *MessengerMock) SendHTMLMessage(ctx context.Context, chatID int64, text string) error {
	return m.Called(ctx, chatID, text).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func newDispatcher(conv *ConversationMock, chk *CheckoutMock, sessions *SessionsMock, messenger *MessengerMock) *Dispatcher {
	reporter := report.New(messenger, 42, newNoopLogger())
	return New(conv, chk, sessions, reporter, newNoopLogger())
}

func TestDispatcher_Routing(t *testing.T) {
	message := &telegram.Message{From: &telegram.User{ID: 1}, Chat: telegram.Chat{ID: 1}, Text: "bob"}
	payment := &telegram.Message{
		From:              &telegram.User{ID: 1},
		Chat:              telegram.Chat{ID: 1},
		SuccessfulPayment: &telegram.SuccessfulPayment{Currency: "RUB"},
	}
	callback := &telegram.CallbackQuery{ID: "cb1", From: telegram.User{ID: 1}, Data: "confirm"}
	precheckout := &telegram.PreCheckoutQuery{ID: "q1", From: telegram.User{ID: 1}}

	cases := []struct {
		name   string
		upd    telegram.Update
		expect func(conv *ConversationMock, chk *CheckoutMock)
	}{
		{
			name: "text message goes to the conversation",
			upd:  telegram.Update{UpdateID: 1, Message: message},
			expect: func(conv *ConversationMock, _ *CheckoutMock) {
				conv.On("HandleMessage", mock.Anything, message).Return(nil).Once()
			},
		},
		{
			name: "successful payment goes to the checkout",
			upd:  telegram.Update{UpdateID: 2, Message: payment},
			expect: func(_ *ConversationMock, chk *CheckoutMock) {
				chk.On("HandleSuccessfulPayment", mock.Anything, payment).Return(nil).Once()
			},
		},
		{
			name: "callback goes to the conversation",
			upd:  telegram.Update{UpdateID: 3, CallbackQuery: callback},
			expect: func(conv *ConversationMock, _ *CheckoutMock) {
				conv.On("HandleCallback", mock.Anything, callback).Return(nil).Once()
			},
		},
		{
			name: "precheckout goes to the checkout",
			upd:  telegram.Update{UpdateID: 4, PreCheckoutQuery: precheckout},
			expect: func(_ *ConversationMock, chk *CheckoutMock) {
				chk.On("HandlePreCheckout", mock.Anything, precheckout).Return(nil).Once()
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conv := new(ConversationMock)
			chk := new(CheckoutMock)
			sessions := new(SessionsMock)
			messenger := new(MessengerMock)
			tc.expect(conv, chk)

			d := newDispatcher(conv, chk, sessions, messenger)
			d.HandleUpdate(context.Background(), tc.upd)

			conv.AssertExpectations(t)
			chk.AssertExpectations(t)
			// Без паники отчёт оператору не отправляется.
			messenger.AssertNotCalled(t, "SendHTMLMessage", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestDispatcher_HandlerErrorReported(t *testing.T) {
	message := &telegram.Message{From: &telegram.User{ID: 1}, Chat: telegram.Chat{ID: 1}, Text: "bob"}

	conv := new(ConversationMock)
	conv.On("HandleMessage", mock.Anything, message).
		Return(errors.New("redis: connection refused")).Once()

	sessions := new(SessionsMock)
	sessions.On("Get", mock.Anything, int64(1)).
		Return(models.Session{State: models.StateAwaitingUsername}, nil).Once()

	messenger := new(MessengerMock)
	messenger.On("SendHTMLMessage", mock.Anything, int64(42), mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "connection refused")
	})).Return(nil).Once()

	d := newDispatcher(conv, new(CheckoutMock), sessions, messenger)
	d.HandleUpdate(context.Background(), telegram.Update{UpdateID: 1, Message: message})

	messenger.AssertExpectations(t)
}

func TestDispatcher_PanicReported(t *testing.T) {
	message := &telegram.Message{From: &telegram.User{ID: 1}, Chat: telegram.Chat{ID: 1}, Text: "bob"}

	conv := new(ConversationMock)
	conv.On("HandleMessage", mock.Anything, message).
		Run(func(_ mock.Arguments) { panic("boom") }).Return(nil).Once()

	sessions := new(SessionsMock)
	sessions.On("Get", mock.Anything, int64(1)).
		Return(models.Session{State: models.StateAwaitingUsername}, nil).Once()

	messenger := new(MessengerMock)
	messenger.On("SendHTMLMessage", mock.Anything, int64(42), mock.MatchedBy(func(text string) bool {
		return len(text) > 0
	})).Return(nil).Once()

	d := newDispatcher(conv, new(CheckoutMock), sessions, messenger)

	assert.NotPanics(t, func() {
		d.HandleUpdate(context.Background(), telegram.Update{UpdateID: 1, Message: message})
	})
	messenger.AssertExpectations(t)
}
