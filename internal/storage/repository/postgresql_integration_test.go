package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage_CreateSubscription(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	sub := GetTestSubscription("bob")
	id, err := storage.CreateSubscription(context.Background(), sub)

	require.NoError(t, err)
	assert.Greater(t, id, 0)
	assert.Equal(t, 1, CountSubscriptions(t, storage))
}

func TestStorage_CreateSubscription_Duplicate(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	first := GetTestSubscription("bob")
	_, err := storage.CreateSubscription(context.Background(), first)
	require.NoError(t, err)

	// Повторная вставка того же имени, даже от другого аккаунта Telegram,
	// упирается в уникальный индекс.
	second := GetTestSubscription("bob")
	second.TelegramUserID = 987654321
	_, err = storage.CreateSubscription(context.Background(), second)

	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, 1, CountSubscriptions(t, storage))
}

func TestStorage_GetSubscriptionByUsername(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	factory.CreateSubscription(t, 123456789, "bob", start, start.AddDate(0, 0, 30))

	got, err := storage.GetSubscriptionByUsername(context.Background(), "bob")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "bob", got.Username)
	assert.Equal(t, int64(123456789), got.TelegramUserID)
	assert.True(t, got.EndDate.Equal(start.AddDate(0, 0, 30)))

	missing, err := storage.GetSubscriptionByUsername(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStorage_ListExpiredUsernames(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	now := time.Now()
	// alice просрочена, bob ещё действует.
	factory.CreateSubscription(t, 1, "alice", now.AddDate(0, 0, -31), now.AddDate(0, 0, -1))
	factory.CreateSubscription(t, 2, "bob", now.AddDate(0, 0, -1), now.AddDate(0, 0, 29))

	got, err := storage.ListExpiredUsernames(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, got)
}

func TestStorage_DeleteSubscriptionsByUsernames(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	now := time.Now()
	factory.CreateSubscription(t, 1, "alice", now.AddDate(0, 0, -31), now.AddDate(0, 0, -1))
	factory.CreateSubscription(t, 2, "bob", now.AddDate(0, 0, -31), now.AddDate(0, 0, -1))
	factory.CreateSubscription(t, 3, "carol", now.AddDate(0, 0, -1), now.AddDate(0, 0, 29))

	deleted, err := storage.DeleteSubscriptionsByUsernames(context.Background(), []string{"alice", "bob"})

	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.Equal(t, 1, CountSubscriptions(t, storage))

	// Пустой список имён не трогает таблицу.
	deleted, err = storage.DeleteSubscriptionsByUsernames(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestStorage_CancelledContext(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := storage.CreateSubscription(ctx, GetTestSubscription("bob"))
	assert.Error(t, err)

	_, err = storage.GetSubscriptionByUsername(ctx, "bob")
	assert.Error(t, err)
}
