package machine

import "errors"

// Ошибки диспетчеризации.
var (
	// ErrUnknownState — для состояния не зарегистрирован Handler.
	// Признак рассинхронизации таблиц продюсера и потребителя.
	ErrUnknownState = errors.New("unknown state")

	// ErrRetryExhausted — попытки повторного выполнения исчерпаны.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)
