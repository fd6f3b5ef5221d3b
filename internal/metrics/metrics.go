// Package metrics регистрирует счётчики Prometheus основных событий бота.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PaymentsTotal количество успешно принятых платежей.
	PaymentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_payments_total",
		Help: "Number of successfully settled subscription payments.",
	})

	// SubscriptionsCreatedTotal количество созданных записей подписок.
	SubscriptionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_subscriptions_created_total",
		Help: "Number of subscription records persisted.",
	})

	// GrantAttemptsTotal попытки выдачи членства по результату:
	// ok, retry, abandoned.
	GrantAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_membership_grant_attempts_total",
		Help: "Membership grant attempts by outcome.",
	}, []string{"result"})

	// SweptSubscriptionsTotal количество подписок, удалённых очисткой.
	SweptSubscriptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_swept_subscriptions_total",
		Help: "Number of expired subscriptions removed by the sweeper.",
	})
)
