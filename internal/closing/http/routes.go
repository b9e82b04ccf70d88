package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/batasku/periodlock/internal/authz"
)

// Routes mounts the closing API. Every route requires an authenticated
// identity; per-action authorization happens in the service.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(authz.RequireIdentity)

	r.Route("/periods", func(r chi.Router) {
		r.Post("/", h.createPeriod)
		r.Get("/", h.listPeriods)
		r.Post("/generate", h.generatePeriods)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getPeriod)
			r.Delete("/", h.deletePeriod)
			r.Post("/close", h.closePeriod)
			r.Get("/preview", h.previewClose)
			r.Post("/reopen", h.reopenPeriod)
			r.Post("/permanent-close", h.permanentlyClosePeriod)
		})
	})

	r.Get("/config", h.getConfig)
	r.Put("/config", h.updateConfig)
	r.Post("/check-write", h.checkWrite)
	r.Get("/audit", h.auditTimeline)

	return r
}
