// Package session хранит состояние диалогов в Redis.
// Каждая сессия принадлежит одному пользователю Telegram
// и сериализуется в JSON под ключом session:<id>.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/0niel/ninja-payment-bot/internal/config"
	"github.com/0niel/ninja-payment-bot/internal/models"
)

// Сессии неактивных диалогов вычищаются сами.
const sessionTTL = 24 * time.Hour

// Store redis-хранилище сессий диалогов.
type Store struct {
	db *redis.Client
}

// InitServer подключается к Redis и возвращает готовое хранилище сессий.
func InitServer(ctx context.Context, cfg config.RedisConnection) (*Store, error) {
	const op = "session.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Store{db: db}, nil
}

func sessionKey(userID int64) string {
	return fmt.Sprintf("session:%d", userID)
}

// Get возвращает сессию пользователя. Для нового диалога возвращается
// пустая сессия в состоянии idle.
func (s *Store) Get(ctx context.Context, userID int64) (models.Session, error) {
	const op = "session.Get"

	val, err := s.db.Get(ctx, sessionKey(userID)).Result()
	if err == redis.Nil {
		return models.Session{State: models.StateIdle}, nil
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("%s: %w", op, err)
	}

	var sess models.Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return models.Session{}, fmt.Errorf("%s: %w", op, err)
	}
	return sess, nil
}

// Save сохраняет сессию пользователя.
func (s *Store) Save(ctx context.Context, userID int64, sess models.Session) error {
	const op = "session.Save"

	jsonData, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.db.Set(ctx, sessionKey(userID), jsonData, sessionTTL).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Delete удаляет сессию пользователя.
func (s *Store) Delete(ctx context.Context, userID int64) error {
	const op = "session.Delete"
	if err := s.db.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
