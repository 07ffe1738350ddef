// Package worker реализует Worker Loop — общий цикл обработки конвертов.
//
// # Обзор
//
// Worker потребляет основную очередь своего типа, диспетчеризует каждый
// конверт по таблице переходов и подтверждает доставку. Тип воркера
// задаётся только таблицей (machine.Table): цикл, публикация и топология
// общие для всех типов.
//
//	w, err := worker.New(worker.Config{
//	    Table:     flows.PricingTable(),
//	    Publisher: publisher,
//	    Conn:      mqConn,
//	    Prefetch:  50,
//	    Deps:      deps,
//	    Dedup:     store,
//	    Logger:    logger,
//	    Metrics:   metrics,
//	})
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Обработка доставки
//
//  1. Декодирование. Ошибка ⇒ ack (сообщение отброшено, не requeue)
//  2. Дедупликация по ID конверта. Уже обработан ⇒ ack
//  3. Проверка возраста. Старше WaitThreshold ⇒ Warn + метрика
//  4. Поиск Handler'а. Неизвестное состояние ⇒ ack
//  5. Вызов Handler'а. Ошибка или паника ⇒ ack без продолжения
//  6. Решение:
//     - Complete ⇒ ack
//     - Fail ⇒ ack + лог с subject_id и причиной
//     - Continue ⇒ публикация с подтверждением брокера, затем ack.
//     Публикация не удалась ⇒ nack с requeue; доставка не подтверждается
//
// Перед ack конверт отмечается в хранилище дедупликации, результат
// записывается в журнал.
//
// # Конкурентность
//
// Доставки обрабатываются строго последовательно в одной горутине.
// Масштабирование — запуск нескольких процессов на одну очередь,
// ограничение — prefetch каждого процесса.
package worker
