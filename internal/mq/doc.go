// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, хуки, confirm-канал)
//   - topology.go   — топология типа воркера: основная и отложенные очереди
//   - publisher.go  — Continuation Publisher: PublishNow / PublishDelayed
//   - consumer.go   — потребление с prefetch и ручным ack
//   - relay.go      — восстановление dead-letter relay после failover
//
// Отложенный retry реализован без планировщика: отложенная очередь
// имеет x-message-ttl и x-dead-letter-exchange, указывающий на основной
// обменник. По истечении TTL брокер сам возвращает сообщение в основную
// очередь.
package mq
