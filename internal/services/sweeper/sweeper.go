// Package sweeper реализует периодическую очистку просроченных подписок:
// отзыв членства в группе форума и удаление записей из хранилища.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/0niel/ninja-payment-bot/internal/lib/sl"
	"github.com/0niel/ninja-payment-bot/internal/metrics"
)

// Проход очистки выполняется раз в сутки, ночью.
const sweepSchedule = "0 3 * * *"

// SubscriptionRepository выбирает и удаляет просроченные подписки.
type SubscriptionRepository interface {
	ListExpiredUsernames(ctx context.Context, now time.Time) ([]string, error)
	DeleteSubscriptionsByUsernames(ctx context.Context, usernames []string) (int, error)
}

// Directory отзывает членство в группе форума.
type Directory interface {
	DeleteGroupMembers(ctx context.Context, groupID int, usernames []string) error
}

// Service процесс очистки просроченных подписок.
type Service struct {
	repo      SubscriptionRepository
	directory Directory
	groupID   int
	log       *slog.Logger
}

// New создает новый Service.
func New(repo SubscriptionRepository, directory Directory, groupID int, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		groupID:   groupID,
		log:       log,
	}
}

// Sweep выполняет один проход очистки. Отзыв членства идёт строго до
// удаления строк: при сбое между этими шагами осиротевшие записи будут
// подхвачены следующим проходом, а повторный отзыв форум переносит.
func (s *Service) Sweep(ctx context.Context) error {
	const op = "sweeper.Sweep"
	log := s.log.With(slog.String("op", op), slog.String("run_id", uuid.NewString()))

	usernames, err := s.repo.ListExpiredUsernames(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(usernames) == 0 {
		log.Info("no expired subscriptions found")
		return nil
	}
	log.Info("found expired subscriptions", slog.Int("count", len(usernames)))

	if err := s.directory.DeleteGroupMembers(ctx, s.groupID, usernames); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	deleted, err := s.repo.DeleteSubscriptionsByUsernames(ctx, usernames)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.SweptSubscriptionsTotal.Add(float64(deleted))
	log.Info("expired subscriptions removed", slog.Int("deleted", deleted))
	return nil
}

// Run выполняет проход сразу при старте и дальше по расписанию
// до отмены контекста. Ошибки прохода логируются и не останавливают
// планировщик.
func (s *Service) Run(ctx context.Context) {
	s.runOnce(ctx)

	c := cron.New()
	_, err := c.AddFunc(sweepSchedule, func() { s.runOnce(ctx) })
	if err != nil {
		s.log.Error("failed to schedule sweep", sl.Err(err))
		return
	}
	c.Start()

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
}

func (s *Service) runOnce(ctx context.Context) {
	s.log.Info("starting expired subscriptions sweep")
	if err := s.Sweep(ctx); err != nil {
		s.log.Error("sweep failed", sl.Err(err))
	}
}
