// Package repo хранит журнал задач в PostgreSQL.
//
// Журнал опционален: воркер работает и без БД. Он нужен для
// наблюдаемости (последнее состояние каждой задачи) и для поиска
// задач, застрявших дольше порога ожидания.
package repo
