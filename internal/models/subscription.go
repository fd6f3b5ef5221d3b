// Package models содержит доменные структуры бота: подписку на закрытую
// группу форума, состояние диалога с пользователем и задачу выдачи доступа.
package models

import "time"

// Subscription представляет оплаченную подписку на закрытую группу форума.
// Запись создаётся один раз при успешной оплате и никогда не изменяется:
// продление оформляется новой записью после того, как старая будет удалена
// процессом очистки. EndDate всегда строго больше StartDate.
type Subscription struct {
	ID             int       // Суррогатный ключ, выдаётся хранилищем
	TelegramUserID int64     // Идентификатор пользователя в Telegram
	Username       string    // Имя пользователя на форуме
	StartDate      time.Time // Дата начала подписки
	EndDate        time.Time // Дата окончания, StartDate + срок подписки
}

// Состояния диалога покупки подписки.
const (
	StateIdle                 = "idle"
	StateAwaitingUsername     = "awaiting_username"
	StateAwaitingConfirmation = "awaiting_confirmation"
)

// DefaultLanguage язык интерфейса по умолчанию.
const DefaultLanguage = "ru"

// Session хранит эфемерное состояние одного диалога: этап покупки,
// подтверждённое имя пользователя на форуме и выбранный язык интерфейса.
// Сессия живёт только на время диалога и не переживает оформление подписки.
type Session struct {
	State    string `json:"state"`
	Username string `json:"username,omitempty"`
	Language string `json:"language,omitempty"`
}

// Lang возвращает язык сессии либо язык по умолчанию.
func (s Session) Lang() string {
	if s.Language == "" {
		return DefaultLanguage
	}
	return s.Language
}

// GrantTask сообщение очереди на выдачу членства в группе форума.
// Attempt увеличивается при каждой повторной постановке задачи.
type GrantTask struct {
	Username string `json:"username"`
	Attempt  int    `json:"attempt"`
}
