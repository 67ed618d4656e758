package analytics

import (
	"testing"

	"github.com/stretchr/testify/require"

	"caloriebot/internal/inline"
)

func seedBucket(t *testing.T) *Aggregator {
	t.Helper()
	a := New()
	for i := 0; i < 4; i++ {
		a.RecordRequest("2025-01-01", inline.ChatGroup, inline.TriggerReplyMention, true, "", 1000)
	}
	a.RecordRequest("2025-01-01", inline.ChatGroup, inline.TriggerReplyMention, false, inline.ReasonProcessingError, 0)
	return a
}

func TestRange_ReturnsMatchingBucket(t *testing.T) {
	t.Parallel()
	a := seedBucket(t)

	buckets := a.Range("2025-01-01", "2025-01-07", inline.ChatGroup)
	require.Len(t, buckets, 1)
	b := buckets[0]
	require.Equal(t, 5, b.RequestCount)
	require.Equal(t, 4, b.SuccessCount)
	require.Equal(t, 1, b.FailureCount)
	require.Len(t, b.FailureReasons, 1)
	require.Equal(t, inline.ReasonProcessingError, b.FailureReasons[0].Reason)
	require.Equal(t, 1, b.FailureReasons[0].Count)
}

func TestRange_FiltersByChatTypeAndDateWindow(t *testing.T) {
	t.Parallel()
	a := seedBucket(t)

	require.Empty(t, a.Range("2025-01-01", "2025-01-07", inline.ChatPrivate))
	require.Empty(t, a.Range("2025-02-01", "2025-02-07", inline.ChatGroup))
}

func TestRecordPermissionBlock_IncrementsCount(t *testing.T) {
	t.Parallel()
	a := New()
	a.RecordPermissionBlock("2025-01-01", inline.ChatGroup)
	a.RecordPermissionBlock("2025-01-01", inline.ChatGroup)

	buckets := a.Range("2025-01-01", "2025-01-01", "")
	require.Len(t, buckets, 1)
	require.Equal(t, 2, buckets[0].PermissionBlockCount)
}
