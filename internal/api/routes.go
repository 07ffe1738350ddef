package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Служебные маршруты без логирования каждого запроса
	mux.Handle("GET /healthz", Recovery(h.logger)(http.HandlerFunc(h.Health)))
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	// Tasks
	mux.Handle("GET /api/v1/tasks/stale", chain(http.HandlerFunc(h.ListStale)))
	mux.Handle("GET /api/v1/tasks/{subject}", chain(http.HandlerFunc(h.GetTask)))
}
