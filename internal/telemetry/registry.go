// Package telemetry implements the process-wide inline-pipeline monitoring
// registry (C1): bounded ring buffers of recent latency samples plus
// monotonic counters for permission blocks, failures, and accuracy deltas.
// Writes never fail observably — a telemetry call that panics is recovered
// and its sample dropped instead, per spec.
package telemetry

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"caloriebot/internal/inline"
)

const (
	windowSize          = 200
	blockRateWindow     = 50
	blockRateAlertRatio = 0.2
)

// Registry is the shared, per-trigger telemetry store. The zero value is
// not usable (its writes are dropped); construct with New.
type Registry struct {
	mu       sync.Mutex
	triggers map[inline.TriggerType]*triggerState
}

type triggerState struct {
	ackLatencies     ringBuffer
	resultLatencies  ringBuffer
	ackCount         int
	permissionBlocks int
	blocksByChat     map[inline.ChatType]int
	failures         map[inline.FailureReason]int
	accuracyDeltas   []float64
}

func newTriggerState() *triggerState {
	return &triggerState{
		ackLatencies:    newRingBuffer(windowSize),
		resultLatencies: newRingBuffer(windowSize),
		blocksByChat:    make(map[inline.ChatType]int),
		failures:        make(map[inline.FailureReason]int),
	}
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{triggers: make(map[inline.TriggerType]*triggerState)}
}

func (r *Registry) state(trigger inline.TriggerType) *triggerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.triggers[trigger]
	if !ok {
		st = newTriggerState()
		r.triggers[trigger] = st
	}
	return st
}

// RecordAckLatency records a webhook-dispatcher ack-latency sample in ms.
func (r *Registry) RecordAckLatency(trigger inline.TriggerType, ms float64) {
	defer recoverTelemetry()
	st := r.state(trigger)
	r.mu.Lock()
	st.ackLatencies.push(ms)
	st.ackCount++
	r.mu.Unlock()
}

// RecordResultLatency records an estimate-worker result-latency sample in ms.
func (r *Registry) RecordResultLatency(trigger inline.TriggerType, ms float64) {
	defer recoverTelemetry()
	st := r.state(trigger)
	r.mu.Lock()
	st.resultLatencies.push(ms)
	r.mu.Unlock()
}

// RecordPermissionBlock records a platform refusal to deliver to this
// chat/trigger pair and logs a warning if the per-trigger block rate over
// the current window exceeds the alerting threshold.
func (r *Registry) RecordPermissionBlock(trigger inline.TriggerType, chatType inline.ChatType) {
	defer recoverTelemetry()
	st := r.state(trigger)

	r.mu.Lock()
	st.permissionBlocks++
	st.blocksByChat[chatType]++
	blocks := st.permissionBlocks
	window := st.ackCount
	r.mu.Unlock()

	if window > blockRateWindow {
		window = blockRateWindow
	}
	if window < 1 {
		window = 1
	}
	if float64(blocks)/float64(window) > blockRateAlertRatio {
		log.Warn().
			Str("trigger", string(trigger)).
			Str("chat_type", string(chatType)).
			Int("permission_blocks", blocks).
			Msg("permission_block rate exceeds alerting threshold")
	}
}

// RecordFailure records a worker/estimator failure for a trigger, sliced by
// reason.
func (r *Registry) RecordFailure(trigger inline.TriggerType, reason inline.FailureReason) {
	defer recoverTelemetry()
	st := r.state(trigger)
	r.mu.Lock()
	st.failures[reason]++
	r.mu.Unlock()
}

// RecordAccuracyDelta records an absolute percentage delta between an
// estimate and observed ground truth, when available.
func (r *Registry) RecordAccuracyDelta(trigger inline.TriggerType, pct float64) {
	defer recoverTelemetry()
	st := r.state(trigger)
	r.mu.Lock()
	st.accuracyDeltas = append(st.accuracyDeltas, pct)
	if len(st.accuracyDeltas) > windowSize {
		st.accuracyDeltas = st.accuracyDeltas[len(st.accuracyDeltas)-windowSize:]
	}
	r.mu.Unlock()
}

// Snapshot returns a consistent, copy-on-read projection scoped to a single
// trigger. Call with an empty string to get a merged global snapshot.
func (r *Registry) Snapshot(trigger inline.TriggerType) inline.InlineMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if trigger != "" {
		st, ok := r.triggers[trigger]
		if !ok {
			return inline.InlineMetricsSnapshot{
				PermissionBlocksByChat: map[inline.ChatType]int{},
				FailureReasons:         map[inline.FailureReason]int{},
			}
		}
		return snapshotOf(st)
	}

	merged := newTriggerState()
	for _, st := range r.triggers {
		merged.ackLatencies.samples = append(merged.ackLatencies.samples, st.ackLatencies.samples...)
		merged.resultLatencies.samples = append(merged.resultLatencies.samples, st.resultLatencies.samples...)
		merged.ackCount += st.ackCount
		merged.permissionBlocks += st.permissionBlocks
		for ct, n := range st.blocksByChat {
			merged.blocksByChat[ct] += n
		}
		for reason, n := range st.failures {
			merged.failures[reason] += n
		}
		merged.accuracyDeltas = append(merged.accuracyDeltas, st.accuracyDeltas...)
	}
	return snapshotOf(merged)
}

func snapshotOf(st *triggerState) inline.InlineMetricsSnapshot {
	blocksByChat := make(map[inline.ChatType]int, len(st.blocksByChat))
	for k, v := range st.blocksByChat {
		blocksByChat[k] = v
	}
	failures := make(map[inline.FailureReason]int, len(st.failures))
	for k, v := range st.failures {
		failures[k] = v
	}

	var avgDelta float64
	if len(st.accuracyDeltas) > 0 {
		var sum float64
		for _, d := range st.accuracyDeltas {
			sum += d
		}
		avgDelta = sum / float64(len(st.accuracyDeltas))
	}

	return inline.InlineMetricsSnapshot{
		SampleSize:             st.ackCount,
		AckP95MS:               percentile(st.ackLatencies.samples, 0.95),
		ResultP95MS:            percentile(st.resultLatencies.samples, 0.95),
		PermissionBlocks:       st.permissionBlocks,
		PermissionBlocksByChat: blocksByChat,
		FailureReasons:         failures,
		AvgAccuracyDeltaPct:    avgDelta,
	}
}

// percentile computes p (0..1) over samples, sort-on-read. With fewer than
// 5 samples, the max is returned instead per spec §4.1.
func percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	if len(sorted) < 5 {
		return sorted[len(sorted)-1]
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

// Reset clears all state. Test hook only.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = make(map[inline.TriggerType]*triggerState)
}

func recoverTelemetry() {
	if rec := recover(); rec != nil {
		log.Warn().Interface("panic", rec).Msg("telemetry write dropped")
	}
}
