// Package scheduler запускает периодическую работу воркера.
//
// Две задачи:
//   - триггеры: по cron-расписанию публикуют начальный конверт новой
//     задачи в основную очередь воркера
//   - sweeper: по журналу находит задачи без движения дольше порога
//     ожидания и сообщает о них (Warn + gauge)
//
// Структура:
//   - scheduler.go — Scheduler (Fire, Sweep, Start, Stop)
//   - cron.go      — парсинг cron-выражений
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Worker:    "pricing",
//	    Triggers:  cfg.Triggers,
//	    Publisher: publisher,
//	    Journal:   taskRepo, // опционально
//	    SweepCron: cfg.SweepCron,
//	    Logger:    logger,
//	})
//	sched.Start(ctx)
//	defer sched.Stop()
//
// Scheduler не реализует leader election: при нескольких экземплярах
// воркера триггер сработает в каждом. Задавайте фиксированный
// subject_id, если повторные задачи нежелательны.
package scheduler
