// Package httpapi exposes the ambient HTTP surface (A3): the webhook
// ingress, the analytics reader, and health probes.
package httpapi

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"caloriebot/internal/analytics"
	"caloriebot/internal/webhook"
)

// Server wires the inline-pipeline HTTP routes.
type Server struct {
	dispatcher *webhook.Dispatcher
	analytics  *analytics.Aggregator
	mux        *http.ServeMux
}

// NewServer builds a Server backed by the given dispatcher and analytics reader.
func NewServer(dispatcher *webhook.Dispatcher, analyticsReader *analytics.Aggregator) *Server {
	s := &Server{dispatcher: dispatcher, analytics: analyticsReader, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// Handler returns the route mux as an http.Handler, instrumented end-to-end
// with otelhttp.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.mux, "httpapi")
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /bot", s.handleWebhook)
	s.mux.HandleFunc("GET /bot/webhook-info", s.handleWebhookInfo)
	s.mux.HandleFunc("GET /api/v1/analytics/inline-summary", s.handleAnalyticsSummary)
	s.mux.HandleFunc("GET /live", s.handleLive)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}
