package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Envelope — сериализуемая единица работы: тег состояния + payload.
//
// Конверт не изменяется после создания. «Продвижение» задачи — это
// создание нового конверта через Next/Retry; конверт, который может
// ещё находиться в брокере, никогда не мутируется.
//
// Формат на проводе (тело сообщения RabbitMQ):
//
//	{"id": "...", "state": "...", "subject_id": "...", "attempt": 0,
//	 "payload": {...}, "created_at": "..."}
type Envelope struct {
	// ID — идентификатор конкретного конверта. ID продолжения выводится
	// из ID родителя, состояния и попытки (см. childID), поэтому повторное
	// выполнение Handler'а после падения до ack публикует конверт с тем же ID.
	// Используется как ключ идемпотентности при повторной доставке.
	ID uuid.UUID `json:"id"`

	// State — состояние, определяющее Handler.
	State State `json:"state"`

	// SubjectID — идентификатор доменной сущности (runner, organization...).
	// Стабилен на протяжении всего жизненного цикла задачи.
	SubjectID string `json:"subject_id"`

	// Attempt — номер повторной попытки в текущем состоянии.
	Attempt int `json:"attempt"`

	// Payload — данные для Handler. Схема зависит от состояния и ядром не проверяется.
	Payload map[string]any `json:"payload,omitempty"`

	// CreatedAt — время первой постановки задачи в очередь.
	CreatedAt time.Time `json:"created_at"`
}

// NewEnvelope создаёт начальный конверт задачи (attempt = 0).
func NewEnvelope(state State, subjectID string, payload map[string]any) Envelope {
	return Envelope{
		ID:        uuid.New(),
		State:     state,
		SubjectID: subjectID,
		Attempt:   0,
		Payload:   copyPayload(payload),
		CreatedAt: time.Now().UTC(),
	}
}

// Next возвращает конверт следующего состояния той же задачи.
//
// SubjectID и CreatedAt сохраняются, Attempt сбрасывается.
// Если payload == nil, переносится копия текущего payload.
func (e Envelope) Next(state State, payload map[string]any) Envelope {
	if payload == nil {
		payload = e.Payload
	}
	return Envelope{
		ID:        e.childID(state, 0),
		State:     state,
		SubjectID: e.SubjectID,
		Attempt:   0,
		Payload:   copyPayload(payload),
		CreatedAt: e.CreatedAt,
	}
}

// Retry возвращает конверт повторной попытки того же состояния (attempt+1).
func (e Envelope) Retry() Envelope {
	return Envelope{
		ID:        e.childID(e.State, e.Attempt+1),
		State:     e.State,
		SubjectID: e.SubjectID,
		Attempt:   e.Attempt + 1,
		Payload:   copyPayload(e.Payload),
		CreatedAt: e.CreatedAt,
	}
}

// childID выводит ID продолжения: UUIDv5 в пространстве ID родителя.
// Конверт без ID (старые продюсеры) получает случайный ID.
func (e Envelope) childID(state State, attempt int) uuid.UUID {
	if e.ID == uuid.Nil {
		return uuid.New()
	}
	return uuid.NewSHA1(e.ID, []byte(string(state)+"/"+strconv.Itoa(attempt)))
}

// WithPayload возвращает копию конверта с установленным ключом payload.
// ID сохраняется: результат ещё не опубликован и используется
// только для построения следующего конверта.
func (e Envelope) WithPayload(key string, value any) Envelope {
	out := e
	out.Payload = copyPayload(e.Payload)
	if out.Payload == nil {
		out.Payload = make(map[string]any, 1)
	}
	out.Payload[key] = value
	return out
}

// Age возвращает время, прошедшее с первой постановки задачи.
// Для конвертов без created_at возвращает 0.
func (e Envelope) Age(now time.Time) time.Duration {
	if e.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(e.CreatedAt)
}

// Validate проверяет обязательные поля конверта.
func (e Envelope) Validate() error {
	if e.State == "" {
		return ErrEmptyState
	}
	if e.SubjectID == "" {
		return ErrEmptySubject
	}
	if e.Attempt < 0 {
		return ErrNegativeAttempt
	}
	return nil
}

// Encode сериализует конверт в JSON.
func (e Envelope) Encode() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return body, nil
}

// DecodeEnvelope разбирает тело сообщения.
//
// Любая ошибка оборачивает ErrMalformedEnvelope: такое сообщение
// нельзя починить повторной доставкой.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return env, nil
}

// String возвращает краткое описание конверта для логов.
func (e Envelope) String() string {
	return fmt.Sprintf("%s/%s#%d", e.SubjectID, e.State, e.Attempt)
}

// copyPayload делает глубокую копию payload (вложенные map и слайсы).
func copyPayload(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = copyValue(v)
	}
	return dst
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyPayload(val)
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = copyValue(val[i])
		}
		return out
	default:
		return val
	}
}
