package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shaiso/taskmachine/internal/domain"
)

// Параметры списка застрявших задач.
const (
	defaultStaleLimit = 100
	maxStaleLimit     = 1000
)

// Journal — журнал задач, доступный API.
type Journal interface {
	Get(ctx context.Context, worker, subjectID string) (*domain.Task, error)
	ListStale(ctx context.Context, worker string, olderThan time.Duration, limit int) ([]domain.Task, error)
}

// Handler — обработчик API состояния воркера.
type Handler struct {
	worker        string
	journal       Journal
	healthy       func() bool
	waitThreshold time.Duration
	metrics       http.Handler
	logger        *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	// Worker — тип воркера, чьи задачи отдаёт API.
	Worker string

	// Journal — журнал задач (nil — эндпоинты задач отвечают 503).
	Journal Journal

	// Healthy сообщает, подключён ли брокер.
	Healthy func() bool

	// WaitThreshold — порог застревания по умолчанию для /tasks/stale.
	WaitThreshold time.Duration

	// Metrics — обработчик /metrics (nil — маршрут не регистрируется).
	Metrics http.Handler

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	healthy := cfg.Healthy
	if healthy == nil {
		healthy = func() bool { return true }
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		worker:        cfg.Worker,
		journal:       cfg.Journal,
		healthy:       healthy,
		waitThreshold: cfg.WaitThreshold,
		metrics:       cfg.Metrics,
		logger:        logger,
	}
}

// Health отвечает 200, пока брокер подключён.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	if !h.healthy() {
		Error(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "broker disconnected")
		return
	}
	Success(w, map[string]string{"status": "ok", "worker": h.worker})
}

// GetTask возвращает последнюю запись журнала по subject_id.
// GET /api/v1/tasks/{subject}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		Error(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "task journal is not configured")
		return
	}

	subject := r.PathValue("subject")
	if subject == "" {
		BadRequest(w, "subject is required")
		return
	}

	task, err := h.journal.Get(r.Context(), h.worker, subject)
	if HandleRepoError(w, h.logger, err, "task not found") {
		return
	}

	Success(w, task)
}

// ListStale возвращает ACTIVE задачи без продвижения дольше порога.
// GET /api/v1/tasks/stale?older_than=10m&limit=100
func (h *Handler) ListStale(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		Error(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "task journal is not configured")
		return
	}

	olderThan := h.waitThreshold
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			BadRequest(w, "invalid older_than: "+v)
			return
		}
		olderThan = d
	}

	limit := defaultStaleLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			BadRequest(w, "invalid limit: "+v)
			return
		}
		limit = min(n, maxStaleLimit)
	}

	tasks, err := h.journal.ListStale(r.Context(), h.worker, olderThan, limit)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}

	List(w, tasks, len(tasks))
}
