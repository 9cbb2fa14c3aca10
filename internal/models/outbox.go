package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxMessage — событие, подготовленное к постановке в outbox.
// Payload уже сериализован; timestamp в нём проставит воркер при отправке.
type OutboxMessage struct {
	Event   string
	Payload json.RawMessage
}

// OutboxEvent — запись исходящего вебхука.
// Создаётся в той же транзакции, что и породившая его мутация,
// и доставляется фоновым воркером с ограниченным числом попыток.
type OutboxEvent struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	Event         string          `db:"event" json:"event"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	Status        string          `db:"status" json:"status"`
	Attempts      int             `db:"attempts" json:"attempts"`
	NextAttemptAt time.Time       `db:"next_attempt_at" json:"next_attempt_at"`
	LastError     *string         `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	DeliveredAt   *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
}
