// Package steps содержит вспомогательные операции для Handler'ов.
//
//   - http.go     — HTTPCall: запрос к downstream-сервису с JSON-телом
//     и классификацией ошибок (IsTransient)
//   - template.go — Render: text/template с набором функций над payload
//
// Пакет ничего не знает о конвертах и переходах: Handler сам решает,
// что делать с результатом (Continue, RetryOrFail, Fail).
package steps
