package domain

// State — тег состояния задачи в конверте.
//
// Определяет, какой Handler обработает конверт. Каждое продолжение
// (continuation) несёт уже следующее состояние.
//
// Общая форма жизненного цикла (конкретный тип воркера добавляет
// свои RUNNING-подсостояния):
//
//	STARTED → {RUNNING...} → COMPLETED
//	                       ↘ ERROR
//	                       ↘ ABORTED
type State string

const (
	// StateStarted — задача создана внешним триггером.
	StateStarted State = "STARTED"

	// StateRunning — общее рабочее состояние.
	StateRunning State = "RUNNING"

	// StateCompleted — задача успешно завершена.
	StateCompleted State = "COMPLETED"

	// StateError — задача завершилась с ошибкой.
	StateError State = "ERROR"

	// StateAborted — задача прервана.
	StateAborted State = "ABORTED"
)

// IsTerminal возвращает true, если состояние финальное.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateError, StateAborted:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление состояния.
func (s State) String() string {
	return string(s)
}
