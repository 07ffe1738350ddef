package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/taskmachine/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS tasks (
		worker       TEXT        NOT NULL,
		subject_id   TEXT        NOT NULL,
		envelope_id  UUID        NOT NULL,
		state        TEXT        NOT NULL,
		attempt      INT         NOT NULL DEFAULT 0,
		status       TEXT        NOT NULL,
		error        TEXT,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (worker, subject_id)
	);
	CREATE INDEX IF NOT EXISTS tasks_status_updated_idx ON tasks (status, updated_at);
`

// TaskRepo — журнал задач.
type TaskRepo struct {
	pool *pgxpool.Pool
}

// NewTaskRepo создаёт новый TaskRepo.
func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

// Migrate создаёт таблицу журнала, если её нет.
func (r *TaskRepo) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate tasks: %w", err)
	}
	return nil
}

// Record записывает последнее состояние задачи.
//
// Одна строка на (worker, subject_id). Запись с более поздним created_at
// начинает новый жизненный цикл и заменяет строку целиком. Внутри цикла
// запись применяется, только если она не старше текущей и не возвращает
// завершённую задачу в ACTIVE (запоздалая повторная доставка).
// Записи прошлых циклов игнорируются.
func (r *TaskRepo) Record(ctx context.Context, task *domain.Task) error {
	query := `
		INSERT INTO tasks (worker, subject_id, envelope_id, state, attempt, status, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (worker, subject_id) DO UPDATE
		SET envelope_id = EXCLUDED.envelope_id,
		    state = EXCLUDED.state,
		    attempt = EXCLUDED.attempt,
		    status = EXCLUDED.status,
		    error = EXCLUDED.error,
		    created_at = EXCLUDED.created_at,
		    updated_at = EXCLUDED.updated_at
		WHERE EXCLUDED.created_at > tasks.created_at
		   OR (EXCLUDED.created_at = tasks.created_at
		       AND tasks.updated_at <= EXCLUDED.updated_at
		       AND NOT (tasks.status <> $10 AND EXCLUDED.status = $10))
	`
	_, err := r.pool.Exec(ctx, query,
		task.Worker,
		task.SubjectID,
		task.EnvelopeID,
		task.State,
		task.Attempt,
		task.Status,
		nullString(task.Error),
		task.CreatedAt,
		task.UpdatedAt,
		domain.TaskStatusActive,
	)
	if err != nil {
		return fmt.Errorf("record task: %w", err)
	}
	return nil
}

// Get возвращает запись журнала по воркеру и субъекту.
func (r *TaskRepo) Get(ctx context.Context, worker, subjectID string) (*domain.Task, error) {
	query := `
		SELECT worker, subject_id, envelope_id, state, attempt, status, error, created_at, updated_at
		FROM tasks
		WHERE worker = $1 AND subject_id = $2
	`
	task, err := scanTask(r.pool.QueryRow(ctx, query, worker, subjectID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return task, err
}

// ListStale возвращает незавершённые задачи, не обновлявшиеся дольше olderThan.
func (r *TaskRepo) ListStale(ctx context.Context, worker string, olderThan time.Duration, limit int) ([]domain.Task, error) {
	query := `
		SELECT worker, subject_id, envelope_id, state, attempt, status, error, created_at, updated_at
		FROM tasks
		WHERE worker = $1 AND status = $2 AND updated_at < $3
		ORDER BY updated_at ASC
		LIMIT $4
	`
	before := time.Now().UTC().Add(-olderThan)

	rows, err := r.pool.Query(ctx, query, worker, domain.TaskStatusActive, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// --- Helpers ---

func scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	var taskError *string

	err := row.Scan(
		&task.Worker,
		&task.SubjectID,
		&task.EnvelopeID,
		&task.State,
		&task.Attempt,
		&task.Status,
		&taskError,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if taskError != nil {
		task.Error = *taskError
	}

	return &task, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
