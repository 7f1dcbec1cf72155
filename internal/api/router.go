package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter constructs the chi router with all registered routes and
// middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/mqtt", func(r chi.Router) {
			r.Post("/publish", s.handleMQTTPublish)
			r.Post("/publish-api", s.handleMQTTPublishAPI)
			r.Post("/subscribe", s.handleMQTTSubscribe)
			r.Get("/status", s.handleMQTTStatus)
		})

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleDeviceList)
			r.Post("/", s.handleDeviceRegister)
			r.Route("/{deviceID}", func(r chi.Router) {
				r.Get("/", s.handleDeviceGet)
				r.Patch("/", s.handleDeviceRename)
				r.Delete("/", s.handleDeviceDelete)
				r.Post("/control", s.handleDeviceControl)
			})
		})

		r.Post("/provision", s.handleProvision)

		r.Get("/audit", s.handleAuditList)
	})

	path := s.wsCfg.Path
	if path == "" {
		path = "/ws"
	}
	r.Get(path, s.handleWS)

	return r
}
