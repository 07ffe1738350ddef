package machine

import (
	"fmt"
	"sort"

	"github.com/shaiso/taskmachine/internal/domain"
)

// Table — таблица переходов: состояние → Handler.
//
// Строится один раз при старте процесса и после этого не меняется,
// поэтому доступ из нескольких горутин не требует блокировок.
// Один и тот же Worker Loop обслуживает разные типы воркеров,
// отличающиеся только таблицей.
type Table struct {
	name     string
	handlers map[domain.State]Handler
}

// NewTable создаёт таблицу переходов.
//
// Паникует на пустом состоянии или nil-Handler: некорректная таблица —
// ошибка программиста, а не данных.
func NewTable(name string, entries map[domain.State]Handler) *Table {
	handlers := make(map[domain.State]Handler, len(entries))
	for state, h := range entries {
		if state == "" {
			panic(fmt.Sprintf("machine: table %q: empty state", name))
		}
		if h == nil {
			panic(fmt.Sprintf("machine: table %q: nil handler for state %s", name, state))
		}
		handlers[state] = h
	}
	return &Table{name: name, handlers: handlers}
}

// Name возвращает имя таблицы (тип воркера).
func (t *Table) Name() string {
	return t.name
}

// Lookup возвращает Handler для состояния.
// Возвращает ErrUnknownState, если состояние не зарегистрировано.
func (t *Table) Lookup(state domain.State) (Handler, error) {
	h, ok := t.handlers[state]
	if !ok {
		return nil, fmt.Errorf("%w: %s (table %s)", ErrUnknownState, state, t.name)
	}
	return h, nil
}

// Has проверяет, зарегистрировано ли состояние.
func (t *Table) Has(state domain.State) bool {
	_, ok := t.handlers[state]
	return ok
}

// States возвращает отсортированный список зарегистрированных состояний.
func (t *Table) States() []domain.State {
	states := make([]domain.State, 0, len(t.handlers))
	for s := range t.handlers {
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool { return states[i] < states[j] })
	return states
}

// MustCover паникует, если какое-то из объявленных состояний
// не имеет Handler'а. Вызывается при построении таблицы.
func (t *Table) MustCover(states ...domain.State) *Table {
	for _, s := range states {
		if !t.Has(s) {
			panic(fmt.Sprintf("machine: table %q: state %s has no handler", t.name, s))
		}
	}
	return t
}
