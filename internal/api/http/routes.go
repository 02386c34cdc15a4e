package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-testgen/internal/session"
)

// Mount registers the session API on r.
func Mount(r chi.Router, svc *session.Service) {
	r.Post("/templates/{templateID}/preview", PreviewTemplateHandler(svc))

	r.Route("/sessions", func(sr chi.Router) {
		sr.Get("/", ListSessionsHandler(svc))
		sr.Post("/", CreateSessionHandler(svc))
		sr.Get("/{sessionID}", GetSessionHandler(svc))
		sr.Post("/{sessionID}/close", CloseSessionHandler(svc))
		sr.Get("/{sessionID}/report", SessionReportHandler(svc))
	})

	r.Post("/access", AccessHandler(svc))

	r.Route("/instances/{instanceID}", func(ir chi.Router) {
		ir.Get("/", GetInstanceHandler(svc))
		ir.Post("/start", StartInstanceHandler(svc))
		ir.Post("/finish", FinishInstanceHandler(svc))
	})
}

func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
}

// ReadyHandler reports 503 while ping fails. A nil ping is always ready.
func ReadyHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}
