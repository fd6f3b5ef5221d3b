// Package retry описывает политику повторов для фоновых задач.
// Политика отвечает на один вопрос: через какой интервал выполнять
// попытку с данным номером и выполнять ли её вообще.
package retry

import "time"

// Policy определяет расписание повторов задачи.
// Next принимает номер завершившейся попытки (нумерация с 1)
// и возвращает задержку перед следующей попыткой. Второе значение
// false означает, что попытки исчерпаны.
type Policy interface {
	Next(attempt int) (time.Duration, bool)
}

// FixedInterval повторяет задачу бесконечно с постоянным интервалом.
type FixedInterval struct {
	Interval time.Duration
}

// Next всегда разрешает следующую попытку через фиксированный интервал.
func (p FixedInterval) Next(_ int) (time.Duration, bool) {
	return p.Interval, true
}

// LimitedAttempts ограничивает число попыток вложенной политики.
// После MaxAttempts попыток задача считается невыполнимой.
type LimitedAttempts struct {
	Policy      Policy
	MaxAttempts int
}

// Next делегирует вложенной политике, пока не исчерпан лимит попыток.
func (p LimitedAttempts) Next(attempt int) (time.Duration, bool) {
	if attempt >= p.MaxAttempts {
		return 0, false
	}
	return p.Policy.Next(attempt)
}
