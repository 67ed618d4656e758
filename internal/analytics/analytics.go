// Package analytics implements the inline analytics aggregator (C9): it
// rolls the same events C1's telemetry registry observes into daily
// buckets, keyed by (date, chat_type), queryable by range. Buckets are held
// in process memory only; they are not persisted and do not survive a
// restart.
package analytics

import (
	"sort"
	"sync"
	"time"

	"caloriebot/internal/inline"
)

// reservoirSize bounds how many latency samples a single day's bucket keeps
// for percentile recomputation.
const reservoirSize = 1024

type dailyKey struct {
	date     string
	chatType inline.ChatType
}

type bucketState struct {
	daily     inline.InlineAnalyticsDaily
	latencies []float64
}

// Aggregator holds the in-memory per-day rollups. The zero value is not
// usable; construct with New.
type Aggregator struct {
	mu      sync.Mutex
	buckets map[dailyKey]*bucketState
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{buckets: make(map[dailyKey]*bucketState)}
}

func (a *Aggregator) bucket(date string, chatType inline.ChatType) *bucketState {
	key := dailyKey{date: date, chatType: chatType}
	b, ok := a.buckets[key]
	if !ok {
		b = &bucketState{daily: inline.InlineAnalyticsDaily{
			Date:          date,
			ChatType:      chatType,
			TriggerCounts: make(map[inline.TriggerType]int),
		}}
		a.buckets[key] = b
	}
	return b
}

// RecordRequest upserts-and-increments the (date, chat_type) bucket for a
// single inline-pipeline request outcome.
func (a *Aggregator) RecordRequest(date string, chatType inline.ChatType, trigger inline.TriggerType, succeeded bool, reason inline.FailureReason, resultLatencyMS float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b := a.bucket(date, chatType)
	b.daily.TriggerCounts[trigger]++
	b.daily.RequestCount++
	if succeeded {
		b.daily.SuccessCount++
	} else {
		b.daily.FailureCount++
		mergeFailureReason(&b.daily.FailureReasons, reason)
	}

	if resultLatencyMS > 0 {
		b.latencies = append(b.latencies, resultLatencyMS)
		if len(b.latencies) > reservoirSize {
			b.latencies = b.latencies[len(b.latencies)-reservoirSize:]
		}
		b.daily.P95ResultLatencyMS = percentile(b.latencies, 0.95)
	}
	b.daily.LastUpdatedAt = time.Now().UTC()
}

// RecordPermissionBlock increments the bucket's permission_block_count.
func (a *Aggregator) RecordPermissionBlock(date string, chatType inline.ChatType) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.bucket(date, chatType)
	b.daily.PermissionBlockCount++
	b.daily.LastUpdatedAt = time.Now().UTC()
}

func mergeFailureReason(reasons *[]inline.FailureReasonCount, reason inline.FailureReason) {
	for i := range *reasons {
		if (*reasons)[i].Reason == reason {
			(*reasons)[i].Count++
			return
		}
	}
	*reasons = append(*reasons, inline.FailureReasonCount{Reason: reason, Count: 1})
}

// Range returns the daily buckets overlapping [start, end] (inclusive,
// "YYYY-MM-DD" lexical comparison), optionally filtered to one chat type.
func (a *Aggregator) Range(start, end string, chatType inline.ChatType) []inline.InlineAnalyticsDaily {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []inline.InlineAnalyticsDaily
	for key, b := range a.buckets {
		if key.date < start || key.date > end {
			continue
		}
		if chatType != "" && key.chatType != chatType {
			continue
		}
		out = append(out, b.daily)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ChatType < out[j].ChatType
	})
	return out
}

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
