// Package flows содержит таблицы переходов конкретных типов воркеров.
//
// Все типы разделяют одно ядро (machine, worker, mq); тип воркера —
// это только его Table и prefetch:
//
//   - pricing — дешёвые IO-операции, prefetch 50
//
//     STARTED → FETCHING → COMPLETED
//     ↘ ERROR
//
//   - report — тяжёлый рендеринг, prefetch 1
//
//     STARTED → WAITING → RENDERING → DELIVERING → COMPLETED
//     ↘ ERROR, ↘ ABORTED
//
// Тип выбирается переменной WORKER_TYPE через Lookup.
package flows
