package worker

import "errors"

// Ошибки воркера.
var (
	// ErrHandlerPanic — Handler завершился паникой.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrInvalidOutcome — Handler вернул несогласованное решение.
	ErrInvalidOutcome = errors.New("invalid outcome")

	// ErrNoTable — воркер создан без таблицы переходов.
	ErrNoTable = errors.New("transition table is required")

	// ErrNoPublisher — воркер создан без издателя продолжений.
	ErrNoPublisher = errors.New("continuation publisher is required")
)
