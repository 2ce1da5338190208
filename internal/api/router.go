// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openlancer/relay/internal/config"
	"github.com/openlancer/relay/internal/middleware"
)

// NewRouter builds the HTTP router: health and metrics endpoints, the
// versioned REST surface, and the websocket handshake.
func NewRouter(h *Handler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)

	if len(cfg.Server.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health/live", h.HandleHealthLive)
	r.Get("/health/ready", h.HandleHealthReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.Server.RateLimit, time.Minute))

		r.Get("/ws", h.HandleWebSocket)

		r.Get("/conversations", h.HandleListConversations)
		r.Post("/conversations", h.HandleCreateGroup)
		r.Get("/conversations/{id}/messages", h.HandleMessages)
		r.Post("/conversations/{id}/members", h.HandleAddMember)
		r.Get("/users/online", h.HandleOnlineUsers)
	})

	return r
}
