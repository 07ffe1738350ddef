package domain

// TaskStatus — статус задачи в журнале.
//
// Жизненный цикл:
//
//	ACTIVE → COMPLETED
//	       ↘ FAILED
//
// ACTIVE означает, что продолжение опубликовано и задача ещё идёт.
type TaskStatus string

const (
	// TaskStatusActive — задача в процессе, ожидает следующей доставки.
	TaskStatusActive TaskStatus = "ACTIVE"

	// TaskStatusCompleted — задача завершена успешно.
	TaskStatusCompleted TaskStatus = "COMPLETED"

	// TaskStatusFailed — задача завершена с ошибкой или исключением Handler'а.
	TaskStatusFailed TaskStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление TaskStatus.
func (s TaskStatus) String() string {
	return string(s)
}

// ParseTaskStatus парсит строку в TaskStatus.
func ParseTaskStatus(s string) TaskStatus {
	switch s {
	case "COMPLETED":
		return TaskStatusCompleted
	case "FAILED":
		return TaskStatusFailed
	default:
		return TaskStatusActive
	}
}
