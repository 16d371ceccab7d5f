// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vadubey78945-spec/iot-sentinel/internal/config"
	"github.com/vadubey78945-spec/iot-sentinel/internal/metrics"
)

// Router assembles the HTTP surface.
type Router struct {
	cfg     config.ServerConfig
	handler *Handler
}

// NewRouter creates a router over the given handler set.
func NewRouter(cfg config.ServerConfig, handler *Handler) *Router {
	return &Router{cfg: cfg, handler: handler}
}

// Setup configures all routes and the global middleware stack.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: router.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(router.cfg.RateLimitReqs, rateWindow(router.cfg)))
		r.Use(prometheusMetrics)

		r.Get("/health", router.handler.Health)
		r.Get("/dashboard", router.handler.Dashboard)

		r.Get("/devices", router.handler.Devices)
		r.Get("/devices/{id}", router.handler.Device)
		r.Post("/devices/{id}/block", router.handler.BlockDevice)

		r.Get("/threats", router.handler.Threats)
		r.Get("/threats/{id}", router.handler.Threat)
		r.Post("/threats/{id}/resolve", router.handler.ResolveThreat)

		r.Get("/actions", router.handler.Actions)
		r.Get("/observations", router.handler.Observations)
		r.Get("/deception", router.handler.Deception)
		r.Get("/defense", router.handler.Defense)

		r.Post("/scan", router.handler.Scan)

		r.Get("/ws", router.handler.WebSocket)
	})

	return r
}

func rateWindow(cfg config.ServerConfig) time.Duration {
	if cfg.RateLimitWindow > 0 {
		return cfg.RateLimitWindow
	}
	return time.Minute
}

// prometheusMetrics records request counts and latency per chi route
// pattern, so path parameters do not explode label cardinality.
func prometheusMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := statusClass(ww.Status())
		metrics.HTTPRequests.WithLabelValues(route, status).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
