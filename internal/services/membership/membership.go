// Package membership выполняет задачи выдачи членства в группе форума:
// идемпотентное добавление с повторами через очередь отложенных задач.
package membership

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator"

	"github.com/0niel/ninja-payment-bot/internal/discourse"
	"github.com/0niel/ninja-payment-bot/internal/lib/retry"
	"github.com/0niel/ninja-payment-bot/internal/lib/sl"
	"github.com/0niel/ninja-payment-bot/internal/metrics"
	"github.com/0niel/ninja-payment-bot/internal/models"
	"github.com/0niel/ninja-payment-bot/internal/rabbitmq"
)

// Directory добавляет пользователей в группу форума.
type Directory interface {
	AddGroupMember(ctx context.Context, groupID int, username string) error
}

// Service исполнитель задач выдачи членства.
type Service struct {
	directory Directory
	channel   rabbitmq.Channel
	policy    retry.Policy
	groupID   int
	validate  *validator.Validate
	log       *slog.Logger
}

// New создает новый Service с переданной политикой повторов.
func New(directory Directory, channel rabbitmq.Channel, policy retry.Policy, groupID int, log *slog.Logger) *Service {
	return &Service{
		directory: directory,
		channel:   channel,
		policy:    policy,
		groupID:   groupID,
		validate:  validator.New(),
		log:       log,
	}
}

// EnsureMember идемпотентно добавляет пользователя в группу.
// Уже состоящий в группе пользователь ошибкой не считается.
func (s *Service) EnsureMember(ctx context.Context, username string) error {
	const op = "membership.EnsureMember"

	err := s.directory.AddGroupMember(ctx, s.groupID, username)
	if errors.Is(err, discourse.ErrAlreadyMember) {
		s.log.Info("user already holds group membership", sl.Username(username))
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("user added to the group", sl.Username(username))
	return nil
}

// permanent сообщает, что ошибка не исчезнет от повтора задачи.
func (s *Service) permanent(err error, username string) bool {
	if errors.Is(err, discourse.ErrNotFound) {
		return true
	}
	return s.validate.Var(username, "required,max=60,excludesall= ") != nil
}

// HandleTask обработчик сообщения очереди membership.grant.
// Успех и окончательный отказ подтверждают сообщение; временный сбой
// перекладывает задачу в очередь отложенных повторов с увеличенным
// счётчиком попыток. Ошибка возвращается только при невозможности
// разобрать или переотправить сообщение.
func (s *Service) HandleTask(ctx context.Context) func([]byte) error {
	return func(body []byte) error {
		const op = "membership.HandleTask"

		var task models.GrantTask
		if err := json.Unmarshal(body, &task); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		log := s.log.With(slog.String("op", op), sl.Username(task.Username), slog.Int("attempt", task.Attempt))

		err := s.EnsureMember(ctx, task.Username)
		if err == nil {
			metrics.GrantAttemptsTotal.WithLabelValues("ok").Inc()
			return nil
		}

		if s.permanent(err, task.Username) {
			// Пользователь уже получил сообщение об успешной оплате,
			// поэтому уведомления нет, задача просто снимается.
			log.Error("membership grant failed permanently", sl.Err(err))
			metrics.GrantAttemptsTotal.WithLabelValues("abandoned").Inc()
			return nil
		}

		delay, ok := s.policy.Next(task.Attempt + 1)
		if !ok {
			log.Error("membership grant attempts exhausted", sl.Err(err))
			metrics.GrantAttemptsTotal.WithLabelValues("abandoned").Inc()
			return nil
		}

		log.Warn("membership grant failed, rescheduling", sl.Err(err), slog.Duration("delay", delay))
		next := models.GrantTask{Username: task.Username, Attempt: task.Attempt + 1}
		if err := rabbitmq.PublishMessage(s.channel, rabbitmq.Exchange, rabbitmq.RetryRoutingKey, next); err != nil {
			// Переотправка не удалась: вернуть сообщение в очередь.
			return fmt.Errorf("%s: %w", op, err)
		}
		metrics.GrantAttemptsTotal.WithLabelValues("retry").Inc()
		return nil
	}
}
