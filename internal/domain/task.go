package domain

import (
	"time"

	"github.com/google/uuid"
)

// Task — запись журнала о задаче одного субъекта.
//
// Одна запись на пару (Worker, SubjectID): каждая обработанная доставка
// перезаписывает последнее состояние. Журнал не участвует в управлении
// задачей, единственный источник истины — конверт в очереди.
type Task struct {
	// Worker — тип воркера, обработавшего конверт.
	Worker string `json:"worker"`

	// SubjectID — идентификатор субъекта задачи.
	SubjectID string `json:"subject_id"`

	// EnvelopeID — ID последнего обработанного конверта.
	EnvelopeID uuid.UUID `json:"envelope_id"`

	// State — состояние последнего обработанного конверта.
	State State `json:"state"`

	// Attempt — попытка в последнем состоянии.
	Attempt int `json:"attempt"`

	// Status — статус задачи.
	Status TaskStatus `json:"status"`

	// Error — причина неудачи.
	Error string `json:"error,omitempty"`

	// CreatedAt — время создания исходного конверта задачи.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последней записи.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTask создаёт запись журнала по обработанному конверту.
func NewTask(worker string, env Envelope, status TaskStatus, reason string) *Task {
	return &Task{
		Worker:     worker,
		SubjectID:  env.SubjectID,
		EnvelopeID: env.ID,
		State:      env.State,
		Attempt:    env.Attempt,
		Status:     status,
		Error:      reason,
		CreatedAt:  env.CreatedAt,
		UpdatedAt:  time.Now().UTC(),
	}
}
