package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"caloriebot/internal/inline"
	"caloriebot/internal/version"
	"caloriebot/internal/webhook"
)

const (
	ackTargetMS       = 3000
	accuracyTolerance = 5.0
)

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondJSON(w, http.StatusOK, webhook.Response{Status: "ignored"})
		return
	}

	resp, status := s.dispatcher.Handle(r.Context(), body)
	respondJSON(w, status, resp)
}

func (s *Server) handleWebhookInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"webhook_info": map[string]any{
			"url":                 "",
			"pending_update_count": 0,
		},
	})
}

func (s *Server) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start := q.Get("range_start")
	end := q.Get("range_end")
	chatType := inline.ChatType(q.Get("chat_type"))

	if start == "" || end == "" {
		respondError(w, http.StatusBadRequest, errMissingRange)
		return
	}

	buckets := s.analytics.Range(start, end, chatType)
	respondJSON(w, http.StatusOK, map[string]any{
		"range":    map[string]string{"start": start, "end": end},
		"sla":      map[string]any{"ack_target_ms": ackTargetMS},
		"accuracy": map[string]any{"tolerance_pct": accuracyTolerance},
		"buckets":  buckets,
	})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Version})
}

var errMissingRange = &rangeError{"range_start and range_end are required"}

type rangeError struct{ msg string }

func (e *rangeError) Error() string { return e.msg }

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}
