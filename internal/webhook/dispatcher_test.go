package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"caloriebot/internal/analytics"
	"caloriebot/internal/chatapi"
	"caloriebot/internal/notice"
	"caloriebot/internal/queue"
	"caloriebot/internal/telemetry"
	"caloriebot/internal/trigger"
)

type recordingBotAPI struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingBotAPI) server() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		r.calls = append(r.calls, req.URL.Path)
		r.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
}

func (r *recordingBotAPI) calledPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *recordingBotAPI) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bot := &recordingBotAPI{}
	srv := bot.server()
	t.Cleanup(srv.Close)

	d := New(Dependencies{
		Classifier: trigger.New("@CalorieTrackAI_bot"),
		Queue:      queue.New(client),
		Notices:    notice.New(client),
		Telemetry:  telemetry.New(),
		Analytics:  analytics.New(),
		Chat:       chatapi.New(srv.URL, "TOKEN"),
		HashSalt:   "test-salt",
	})
	return d, bot
}

func TestHandle_GroupReplyMention(t *testing.T) {
	t.Parallel()
	d, bot := newTestDispatcher(t)

	body := []byte(`{
		"update_id": 1,
		"message": {
			"message_id": 124,
			"message_thread_id": 55,
			"text": "@CalorieTrackAI_bot fail this please",
			"entities": [{"type":"mention","offset":0,"length":18}],
			"chat": {"id": -100500600, "type": "supergroup"},
			"from": {"id": 777},
			"reply_to_message": {
				"message_id": 123,
				"photo": [{"file_id": "file-failure-1"}]
			}
		}
	}`)

	resp, status := d.Handle(context.Background(), body)
	require.Equal(t, 200, status)
	require.Equal(t, "ok", resp.Status)
	require.NotEmpty(t, resp.JobID)
	require.EqualValues(t, "reply_mention", resp.TriggerType)

	require.Eventually(t, func() bool { return len(bot.calledPaths()) > 0 }, time.Second, 10*time.Millisecond)
}

func TestHandle_PrivateInlineQuery(t *testing.T) {
	t.Parallel()
	d, _ := newTestDispatcher(t)

	body := []byte(`{
		"update_id": 2,
		"inline_query": {
			"id": "INLINE-PVT-1",
			"chat_type": "private",
			"query": "{\"file_id\":\"pvt-file-1\"}",
			"from": {"id": 42}
		}
	}`)

	resp, status := d.Handle(context.Background(), body)
	require.Equal(t, 200, status)
	require.Equal(t, "ok", resp.Status)
	require.EqualValues(t, "inline_query", resp.TriggerType)
}

func TestHandle_MalformedJSON_IsIgnored(t *testing.T) {
	t.Parallel()
	d, _ := newTestDispatcher(t)

	resp, status := d.Handle(context.Background(), []byte(`not json`))
	require.Equal(t, 200, status)
	require.Equal(t, "ignored", resp.Status)
}

func TestHandle_MediaGroup_ReturnsBufferedThenEnqueues(t *testing.T) {
	t.Parallel()
	d, _ := newTestDispatcher(t)

	mkUpdate := func(messageID int64, fileID, caption string) []byte {
		body := map[string]any{
			"update_id": messageID,
			"message": map[string]any{
				"message_id":     messageID,
				"media_group_id": "g123",
				"caption":        caption,
				"chat":           map[string]any{"id": 999, "type": "private"},
				"from":           map[string]any{"id": 1},
				"photo":          []map[string]any{{"file_id": fileID}},
			},
		}
		b, err := json.Marshal(body)
		require.NoError(t, err)
		return b
	}

	resp, status := d.Handle(context.Background(), mkUpdate(1, "p1", "Chicken pasta"))
	require.Equal(t, 200, status)
	require.Equal(t, "buffered", resp.Status)

	resp, status = d.Handle(context.Background(), mkUpdate(2, "p2", ""))
	require.Equal(t, 200, status)
	require.Equal(t, "buffered", resp.Status)

	resp, status = d.Handle(context.Background(), mkUpdate(3, "p3", ""))
	require.Equal(t, 200, status)
	require.Equal(t, "buffered", resp.Status)

	require.Eventually(t, func() bool {
		job, err := d.deps.Queue.Dequeue(context.Background(), 50*time.Millisecond)
		if err != nil || job == nil {
			return false
		}
		require.Equal(t, []string{"p1", "p2", "p3"}, job.PhotoFileIDs)
		require.Equal(t, "Chicken pasta", job.Caption)
		return true
	}, time.Second, 20*time.Millisecond)
}
