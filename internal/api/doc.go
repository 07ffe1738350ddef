// Package api содержит HTTP API состояния воркера.
//
// Структура:
//   - handler.go    — Handler с зависимостями (журнал, проверка брокера)
//   - routes.go     — регистрация маршрутов
//   - middleware.go — middleware (logging, recovery)
//   - response.go   — унифицированные JSON-ответы и обработка ошибок
//
// API только читает: /healthz, /metrics и журнал задач своего типа воркера.
package api
