package machine

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shaiso/taskmachine/internal/config"
	"github.com/shaiso/taskmachine/internal/domain"
)

// Deps — внешние зависимости Handler'ов.
//
// Создаётся один раз при старте процесса и передаётся по указателю
// в каждый вызов Handler'а. Глобальных клиентов нет: в тестах
// достаточно подставить свой Deps.
type Deps struct {
	// Logger — базовый логгер процесса.
	Logger *slog.Logger

	// HTTP — клиент для вызовов downstream-сервисов.
	HTTP *http.Client

	// Config — конфигурация процесса.
	Config *config.Config

	// Services — адреса downstream-сервисов по имени.
	Services map[string]string
}

// Service возвращает адрес сервиса по имени или пустую строку.
func (d *Deps) Service(name string) string {
	if d == nil || d.Services == nil {
		return ""
	}
	return d.Services[name]
}

// Handler — доменная логика одного состояния.
//
// Handler должен быть идемпотентным по (subject_id, state): доставка
// at-least-once, и одна и та же пара может выполниться повторно.
// Неожиданное текущее состояние предметной сущности следует трактовать
// как Complete, а не как ошибку.
//
// Возвращённая ошибка — «исключение» Handler'а: сообщение подтверждается,
// продолжение не публикуется.
type Handler interface {
	Execute(ctx context.Context, env domain.Envelope, deps *Deps) (Outcome, error)
}

// HandlerFunc — адаптер функции к Handler.
type HandlerFunc func(ctx context.Context, env domain.Envelope, deps *Deps) (Outcome, error)

// Execute вызывает f.
func (f HandlerFunc) Execute(ctx context.Context, env domain.Envelope, deps *Deps) (Outcome, error) {
	return f(ctx, env, deps)
}
