package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"caloriebot/internal/analytics"
	"caloriebot/internal/chatapi"
	"caloriebot/internal/inline"
	"caloriebot/internal/notice"
	"caloriebot/internal/queue"
	"caloriebot/internal/telemetry"
	"caloriebot/internal/trigger"
	"caloriebot/internal/webhook"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	reader := analytics.New()
	dispatcher := webhook.New(webhook.Dependencies{
		Classifier: trigger.New("@CalorieTrackAI_bot"),
		Queue:      queue.New(client),
		Notices:    notice.New(client),
		Telemetry:  telemetry.New(),
		Analytics:  reader,
		Chat:       chatapi.New("http://localhost:0", "TOKEN"),
		HashSalt:   "test-salt",
	})

	reader.RecordRequest("2025-01-01", inline.ChatGroup, inline.TriggerReplyMention, false, inline.ReasonProcessingError, 0)
	for i := 0; i < 4; i++ {
		reader.RecordRequest("2025-01-01", inline.ChatGroup, inline.TriggerReplyMention, true, "", 0)
	}

	return NewServer(dispatcher, reader)
}

func TestAnalyticsSummary_RangeQuery(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/inline-summary?range_start=2025-01-01&range_end=2025-01-07&chat_type=group", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	rng := body["range"].(map[string]any)
	require.Equal(t, "2025-01-01", rng["start"])
	require.Equal(t, "2025-01-07", rng["end"])

	sla := body["sla"].(map[string]any)
	require.EqualValues(t, 3000, sla["ack_target_ms"])

	accuracy := body["accuracy"].(map[string]any)
	require.EqualValues(t, 5.0, accuracy["tolerance_pct"])

	buckets := body["buckets"].([]any)
	require.Len(t, buckets, 1)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	for _, path := range []string{"/live", "/ready", "/healthz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, path)
	}
}
