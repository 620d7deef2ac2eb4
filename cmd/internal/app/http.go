package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

func (a *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler { return WithRecover(next, a.log) })
	r.Use(func(next http.Handler) http.Handler { return WithRequestLogging(next, a.log, a.metrics) })

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/readyz", a.handleReady)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	if a.handler != nil {
		a.handler.Routes(r)
	}

	return withTracing(WithSecurityHeaders(r), a.cfg.OTelServiceName)
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.cfg.ReadinessRequireDB && !a.dbEnabled {
		http.Error(w, "db not configured", http.StatusServiceUnavailable)
		return
	}
	if a.dbEnabled && a.dbPool != nil {
		if err := PingDB(r.Context(), a.dbPool, 2*time.Second); err != nil {
			a.log.Info("readyz.db.not_ready", "err", err)
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
}
