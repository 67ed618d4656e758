package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"caloriebot/internal/inline"
)

func TestRegistry_PermissionBlockAndResultLatencySnapshot(t *testing.T) {
	t.Parallel()
	r := New()

	r.RecordPermissionBlock(inline.TriggerReplyMention, inline.ChatGroup)
	r.RecordResultLatency(inline.TriggerReplyMention, 15000)

	snap := r.Snapshot(inline.TriggerReplyMention)
	require.Equal(t, 1, snap.PermissionBlocks)
	require.Equal(t, 1, snap.PermissionBlocksByChat[inline.ChatGroup])
	require.GreaterOrEqual(t, snap.ResultP95MS, 15000.0)
}

func TestRegistry_ResultP95FallsBackToMaxUnderFiveSamples(t *testing.T) {
	t.Parallel()
	r := New()
	for _, ms := range []float64{100, 200, 300} {
		r.RecordResultLatency(inline.TriggerPrivatePhoto, ms)
	}
	snap := r.Snapshot(inline.TriggerPrivatePhoto)
	require.Equal(t, 300.0, snap.ResultP95MS)
}

func TestRegistry_FailureCountsByReason(t *testing.T) {
	t.Parallel()
	r := New()
	r.RecordFailure(inline.TriggerDirectMention, inline.ReasonTimeout)
	r.RecordFailure(inline.TriggerDirectMention, inline.ReasonTimeout)
	r.RecordFailure(inline.TriggerDirectMention, inline.ReasonModelError)

	snap := r.Snapshot(inline.TriggerDirectMention)
	require.Equal(t, 2, snap.FailureReasons[inline.ReasonTimeout])
	require.Equal(t, 1, snap.FailureReasons[inline.ReasonModelError])
}

func TestRegistry_AccuracyDeltaAverage(t *testing.T) {
	t.Parallel()
	r := New()
	r.RecordAccuracyDelta(inline.TriggerInlineQuery, 10)
	r.RecordAccuracyDelta(inline.TriggerInlineQuery, 20)

	snap := r.Snapshot(inline.TriggerInlineQuery)
	require.InDelta(t, 15.0, snap.AvgAccuracyDeltaPct, 0.0001)
}

func TestRegistry_Reset(t *testing.T) {
	t.Parallel()
	r := New()
	r.RecordFailure(inline.TriggerPrivatePhoto, inline.ReasonTimeout)
	r.Reset()
	snap := r.Snapshot(inline.TriggerPrivatePhoto)
	require.Equal(t, 0, len(snap.FailureReasons))
}
