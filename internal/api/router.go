package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func Router(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Batch sends block for spacing*(n-1); leave generous headroom.
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/v1/health", h.Health)

	r.Route("/v1/scheduler", func(r chi.Router) {
		r.Get("/status", h.SchedulerStatus)
		r.Post("/start", h.SchedulerStart)
		r.Post("/stop", h.SchedulerStop)
	})

	r.Route("/v1/contacts", func(r chi.Router) {
		r.Get("/", h.ListContacts)
		r.Post("/", h.CreateContact)
		r.Get("/search", h.SearchContacts)
		r.Get("/{id}", h.GetContact)
		r.Put("/{id}", h.UpdateContact)
		r.Delete("/{id}", h.DeleteContact)
		r.Get("/{id}/messages", h.ListContactMessages)
	})

	r.Route("/v1/messages", func(r chi.Router) {
		r.Get("/", h.ListMessages)
		r.Get("/sent", h.ListSentMessages)
		r.Get("/stats", h.MessageStats)
		r.Post("/send", h.Send)
		r.Get("/{id}", h.GetMessage)
	})

	r.Route("/v1/scheduled-messages", func(r chi.Router) {
		r.Get("/", h.ListScheduledMessages)
		r.Get("/{id}", h.GetScheduledMessage)
		r.Delete("/{id}", h.DeleteScheduledMessage)
	})

	return r
}
