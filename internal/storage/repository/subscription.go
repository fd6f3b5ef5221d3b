package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/0niel/ninja-payment-bot/internal/models"
)

// ErrAlreadyExists возвращается при попытке создать подписку для имени,
// у которого уже есть живая запись. Уникальный индекс по имени закрывает
// гонку между проверкой и вставкой.
var ErrAlreadyExists = errors.New("subscription already exists")

// CreateSubscription вставляет новую запись подписки и возвращает её ID.
func (s *Storage) CreateSubscription(ctx context.Context, sub models.Subscription) (int, error) {
	const op = "storage.CreateSubscription"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO subscriptions (telegram_user_id, username, start_date, end_date)
			  VALUES ($1, $2, $3, $4)
			  ON CONFLICT (username) DO NOTHING
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query,
		sub.TelegramUserID, sub.Username, sub.StartDate, sub.EndDate).Scan(&newID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", op, ErrAlreadyExists)
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetSubscriptionByUsername возвращает живую подписку по имени пользователя
// форума либо nil, если подписки нет.
func (s *Storage) GetSubscriptionByUsername(ctx context.Context, username string) (*models.Subscription, error) {
	const op = "storage.GetSubscriptionByUsername"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, telegram_user_id, username, start_date, end_date
			  FROM subscriptions WHERE username = $1`
	row := s.DB.QueryRowContext(ctx, query, username)

	var result models.Subscription
	err := row.Scan(&result.ID, &result.TelegramUserID, &result.Username,
		&result.StartDate, &result.EndDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &result, nil
}

// ListExpiredUsernames возвращает имена пользователей, чьи подписки
// закончились к моменту now.
func (s *Storage) ListExpiredUsernames(ctx context.Context, now time.Time) ([]string, error) {
	const op = "storage.ListExpiredUsernames"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT username FROM subscriptions WHERE end_date <= $1 ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var result []string
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, username)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	err = rows.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// DeleteSubscriptionsByUsernames удаляет подписки перечисленных пользователей
// одним запросом и возвращает количество удалённых строк.
func (s *Storage) DeleteSubscriptionsByUsernames(ctx context.Context, usernames []string) (int, error) {
	const op = "storage.DeleteSubscriptionsByUsernames"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if len(usernames) == 0 {
		return 0, nil
	}

	query := `DELETE FROM subscriptions WHERE username = ANY($1)`
	result, err := s.DB.ExecContext(ctx, query, usernames)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}
