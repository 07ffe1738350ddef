// Package cli реализует инструмент командной строки taskmachine.
//
// # Обзор
//
// CLI работает напрямую с брокером и журналом: публикует начальные
// конверты, объявляет топологию и показывает состояние задач.
// Используется операторами и для ручного запуска задач.
//
// # Ключевые компоненты
//
// ## Client
//
// Подключения к RabbitMQ и PostgreSQL по конфигурации процесса
// (config.Load). Каждая команда открывает подключение и закрывает его
// по завершении.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: taskmachine workers --json | jq .
//
// ## Commands
//
//   - publish: начальный конверт задачи (с --delay — через отложенную очередь)
//   - topology: объявление и описание топологии типа воркера
//   - workers: зарегистрированные типы воркеров и их состояния
//   - task: show, stale — записи журнала
//
// Каждая команда создаётся фабричной функцией, принимающей clientFn
// и outputFn — замыкания для ленивого создания Client и Output после
// парсинга PersistentFlags.
package cli
