package machine

import (
	"fmt"
	"time"

	"github.com/shaiso/taskmachine/internal/domain"
)

// Kind — вид решения Handler'а.
type Kind int

const (
	// KindComplete — жизненный цикл задачи завершён, публиковать нечего.
	KindComplete Kind = iota + 1

	// KindContinue — опубликовать следующий конверт (сразу или с задержкой).
	KindContinue

	// KindFail — задача завершена аварийно, публиковать нечего.
	KindFail
)

// String возвращает имя вида решения.
func (k Kind) String() string {
	switch k {
	case KindComplete:
		return "complete"
	case KindContinue:
		return "continue"
	case KindFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Outcome — решение Handler'а (tagged union).
//
// Значения создаются только конструкторами Complete, Continue,
// ContinueAfter и Fail; нулевое значение Outcome невалидно.
type Outcome struct {
	kind   Kind
	next   domain.Envelope
	delay  time.Duration
	reason string
}

// Complete завершает задачу.
func Complete() Outcome {
	return Outcome{kind: KindComplete}
}

// Continue публикует next в основную очередь.
func Continue(next domain.Envelope) Outcome {
	return Outcome{kind: KindContinue, next: next}
}

// ContinueAfter публикует next в очередь отложенного retry.
// Задержка <= 0 эквивалентна Continue.
func ContinueAfter(next domain.Envelope, delay time.Duration) Outcome {
	if delay < 0 {
		delay = 0
	}
	return Outcome{kind: KindContinue, next: next, delay: delay}
}

// Fail завершает задачу аварийно с причиной.
func Fail(reason string) Outcome {
	return Outcome{kind: KindFail, reason: reason}
}

// Kind возвращает вид решения.
func (o Outcome) Kind() Kind { return o.kind }

// Next возвращает следующий конверт (только для KindContinue).
func (o Outcome) Next() domain.Envelope { return o.next }

// Delay возвращает задержку публикации.
func (o Outcome) Delay() time.Duration { return o.delay }

// Delayed возвращает true, если продолжение идёт через отложенную очередь.
func (o Outcome) Delayed() bool { return o.kind == KindContinue && o.delay > 0 }

// Reason возвращает причину аварийного завершения.
func (o Outcome) Reason() string { return o.reason }

// Valid проверяет, что решение создано конструктором и согласовано.
func (o Outcome) Valid() error {
	switch o.kind {
	case KindComplete, KindFail:
		return nil
	case KindContinue:
		if err := o.next.Validate(); err != nil {
			return fmt.Errorf("invalid continuation: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("invalid outcome kind %d", o.kind)
	}
}

// String возвращает описание решения для логов.
func (o Outcome) String() string {
	switch o.kind {
	case KindContinue:
		if o.delay > 0 {
			return fmt.Sprintf("continue(%s, delay=%s)", o.next, o.delay)
		}
		return fmt.Sprintf("continue(%s)", o.next)
	case KindFail:
		return fmt.Sprintf("fail(%s)", o.reason)
	default:
		return o.kind.String()
	}
}
