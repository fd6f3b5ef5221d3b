package membership

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/0niel/ninja-payment-bot/internal/discourse"
	"github.com/0niel/ninja-payment-bot/internal/lib/retry"
	"github.com/0niel/ninja-payment-bot/internal/models"
	"github.com/0niel/ninja-payment-bot/internal/rabbitmq"
)

type DirectoryMock struct{ mock.Mock }

func (m *DirectoryMock) AddGroupMember(ctx context.Context, groupID int, username string) error {
	return m.Called(ctx, groupID, username).Error(0)
}

type ChannelMock struct{ mock.Mock }

func (m *ChannelMock) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return m.Called(exchange, key, mandatory, immediate, msg).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func taskBody(t *testing.T, task models.GrantTask) []byte {
	t.Helper()
	body, err := json.Marshal(task)
	require.NoError(t, err)
	return body
}

func TestService_EnsureMember(t *testing.T) {
	cases := []struct {
		name    string
		addErr  error
		wantErr bool
	}{
		{name: "added", addErr: nil, wantErr: false},
		{name: "already a member", addErr: discourse.ErrAlreadyMember, wantErr: false},
		{name: "forum unavailable", addErr: errors.New("502 Bad Gateway"), wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			directory := new(DirectoryMock)
			directory.On("AddGroupMember", mock.Anything, 107, "bob").Return(tc.addErr).Once()

			svc := New(directory, new(ChannelMock), retry.FixedInterval{Interval: time.Hour}, 107, newNoopLogger())
			err := svc.EnsureMember(context.Background(), "bob")

			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			directory.AssertExpectations(t)
		})
	}
}

func TestService_HandleTask_Success(t *testing.T) {
	directory := new(DirectoryMock)
	channel := new(ChannelMock)
	directory.On("AddGroupMember", mock.Anything, 107, "bob").Return(nil).Once()

	svc := New(directory, channel, retry.FixedInterval{Interval: time.Hour}, 107, newNoopLogger())
	err := svc.HandleTask(context.Background())(taskBody(t, models.GrantTask{Username: "bob"}))

	assert.NoError(t, err)
	// После успеха повтор не планируется.
	channel.AssertNotCalled(t, "Publish",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_HandleTask_TransientFailureReschedules(t *testing.T) {
	directory := new(DirectoryMock)
	channel := new(ChannelMock)
	directory.On("AddGroupMember", mock.Anything, 107, "bob").
		Return(errors.New("timeout")).Once()
	channel.On("Publish", rabbitmq.Exchange, rabbitmq.RetryRoutingKey, false, false,
		mock.MatchedBy(func(msg amqp.Publishing) bool {
			var next models.GrantTask
			if err := json.Unmarshal(msg.Body, &next); err != nil {
				return false
			}
			return next.Username == "bob" && next.Attempt == 4
		})).Return(nil).Once()

	svc := New(directory, channel, retry.FixedInterval{Interval: time.Hour}, 107, newNoopLogger())
	err := svc.HandleTask(context.Background())(taskBody(t, models.GrantTask{Username: "bob", Attempt: 3}))

	assert.NoError(t, err)
	channel.AssertExpectations(t)
}

func TestService_HandleTask_PermanentFailureAbandons(t *testing.T) {
	directory := new(DirectoryMock)
	channel := new(ChannelMock)
	directory.On("AddGroupMember", mock.Anything, 107, "ghost").
		Return(discourse.ErrNotFound).Once()

	svc := New(directory, channel, retry.FixedInterval{Interval: time.Hour}, 107, newNoopLogger())
	err := svc.HandleTask(context.Background())(taskBody(t, models.GrantTask{Username: "ghost", Attempt: 1}))

	assert.NoError(t, err)
	channel.AssertNotCalled(t, "Publish",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_HandleTask_AttemptsExhausted(t *testing.T) {
	directory := new(DirectoryMock)
	channel := new(ChannelMock)
	directory.On("AddGroupMember", mock.Anything, 107, "bob").
		Return(errors.New("timeout")).Once()

	policy := retry.LimitedAttempts{
		Policy:      retry.FixedInterval{Interval: time.Hour},
		MaxAttempts: 2,
	}
	svc := New(directory, channel, policy, 107, newNoopLogger())
	err := svc.HandleTask(context.Background())(taskBody(t, models.GrantTask{Username: "bob", Attempt: 2}))

	assert.NoError(t, err)
	channel.AssertNotCalled(t, "Publish",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_HandleTask_MalformedBody(t *testing.T) {
	svc := New(new(DirectoryMock), new(ChannelMock), retry.FixedInterval{Interval: time.Hour}, 107, newNoopLogger())
	err := svc.HandleTask(context.Background())([]byte("not json"))
	assert.Error(t, err)
}

func TestService_HandleTask_RepublishFailure(t *testing.T) {
	directory := new(DirectoryMock)
	channel := new(ChannelMock)
	directory.On("AddGroupMember", mock.Anything, 107, "bob").
		Return(errors.New("timeout")).Once()
	channel.On("Publish", rabbitmq.Exchange, rabbitmq.RetryRoutingKey, false, false, mock.Anything).
		Return(errors.New("channel closed")).Once()

	svc := New(directory, channel, retry.FixedInterval{Interval: time.Hour}, 107, newNoopLogger())
	err := svc.HandleTask(context.Background())(taskBody(t, models.GrantTask{Username: "bob"}))

	assert.Error(t, err)
}
