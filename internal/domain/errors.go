package domain

import "errors"

// Ошибки конверта.
var (
	// ErrMalformedEnvelope — тело сообщения не является валидным конвертом.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrEmptyState — в конверте не указано состояние.
	ErrEmptyState = errors.New("envelope state is empty")

	// ErrEmptySubject — в конверте не указан subject_id.
	ErrEmptySubject = errors.New("envelope subject_id is empty")

	// ErrNegativeAttempt — отрицательный номер попытки.
	ErrNegativeAttempt = errors.New("envelope attempt is negative")
)
