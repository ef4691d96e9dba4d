package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
)

// defaultWSPath is used when the WebSocket config leaves the path empty.
const defaultWSPath = "/api/v1/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/accessories", func(r chi.Router) {
			r.Get("/", s.handleListAccessories)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetAccessory)
				r.Get("/history", s.handleGetHistory)
				r.Get("/{kind}", s.handleGetValue)
				r.Put("/{kind}", s.handleSetValue)
			})
		})
	})

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = defaultWSPath
	}
	r.Get(wsPath, s.handleWebSocket)

	if s.metricsCfg.Enabled && s.metricsHandler != nil {
		r.Handle(s.metricsCfg.Path, s.metricsHandler)
	}

	return r
}

// handleHealth reports the server and every registered component check.
// Any failing component turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":      status,
		"version":     s.version,
		"accessories": s.accessories.Len(),
		"ws_clients":  s.hub.ClientCount(),
		"components":  components,
	})
}
