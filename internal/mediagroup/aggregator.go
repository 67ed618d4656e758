// Package mediagroup implements the media-group aggregator (C4): it
// coalesces platform updates sharing a media_group_id into a single
// ordered photo list, waiting a short window for siblings to arrive.
//
// Per the design note in spec §9, buffers are modeled as arena + index: the
// buffer map owns the buffer objects; each waiter goroutine holds only the
// media_group_id as its key, never a buffer pointer, so there is no
// reference cycle between the map and its timers.
package mediagroup

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultWindow       = 200 * time.Millisecond
	defaultQuietPeriod  = 50 * time.Millisecond
	defaultEvictAfter   = 2 * time.Second
	defaultPollInterval = 10 * time.Millisecond

	// safetyCap is the most updates a group's buffer retains (the 5-photo
	// policy). Later updates for the same group are dropped and reported
	// through onOverflow.
	safetyCap = maxPhotoCount
)

// PhotoUpdate is one platform update carrying a photo that belongs to a
// media group.
type PhotoUpdate struct {
	MessageID int64
	FileID    string
	Caption   string
	Arrived   time.Time
}

// FinalizedGroup is the aggregator's output: the ordered photo list and the
// first non-empty caption seen across the group's updates.
type FinalizedGroup struct {
	MediaGroupID string
	Photos       []PhotoUpdate
	Caption      string
}

type buffer struct {
	firstSeen     time.Time
	lastArrival   time.Time
	updates       []PhotoUpdate
	expectedCount int // 0 means unknown
	overflowed    bool
}

// Aggregator coalesces updates sharing a media_group_id. The zero value is
// not usable; construct with New.
type Aggregator struct {
	mu      sync.Mutex
	buffers map[string]*buffer

	onFinal    func(FinalizedGroup)
	onOverflow func(mediaGroupID, fileID string)

	window       time.Duration
	quietPeriod  time.Duration
	evictAfter   time.Duration
	pollInterval time.Duration
	now          func() time.Time
}

// Option configures an Aggregator, primarily so tests can shrink the
// waiting windows without changing production timing.
type Option func(*Aggregator)

// WithTiming overrides the window/quiet-period/evict-after durations.
func WithTiming(window, quiet, evictAfter, poll time.Duration) Option {
	return func(a *Aggregator) {
		a.window = window
		a.quietPeriod = quiet
		a.evictAfter = evictAfter
		a.pollInterval = poll
	}
}

// New builds an Aggregator. onFinal is invoked once per resolved group;
// onOverflow is invoked for each update dropped after the 5-photo cap.
func New(onFinal func(FinalizedGroup), onOverflow func(mediaGroupID, fileID string), opts ...Option) *Aggregator {
	a := &Aggregator{
		buffers:      make(map[string]*buffer),
		onFinal:      onFinal,
		onOverflow:   onOverflow,
		window:       defaultWindow,
		quietPeriod:  defaultQuietPeriod,
		evictAfter:   defaultEvictAfter,
		pollInterval: defaultPollInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Add buffers a new update for mediaGroupID. expectedCount, when known
// (e.g. from an explicit "complete" signal), lets the group resolve before
// the timing window elapses.
func (a *Aggregator) Add(mediaGroupID string, update PhotoUpdate, expectedCount int) {
	a.mu.Lock()
	b, exists := a.buffers[mediaGroupID]
	if !exists {
		b = &buffer{firstSeen: a.now()}
		a.buffers[mediaGroupID] = b
	}

	if expectedCount > 0 {
		b.expectedCount = expectedCount
	}

	if len(b.updates) >= safetyCap {
		b.overflowed = true
		a.mu.Unlock()
		if a.onOverflow != nil {
			a.onOverflow(mediaGroupID, update.FileID)
		}
		return
	}

	b.updates = append(b.updates, update)
	b.lastArrival = a.now()
	a.mu.Unlock()

	if !exists {
		go a.waitAndResolve(mediaGroupID)
	}
}

func (a *Aggregator) waitAndResolve(mediaGroupID string) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for range ticker.C {
		a.mu.Lock()
		b, ok := a.buffers[mediaGroupID]
		if !ok {
			a.mu.Unlock()
			return
		}

		now := a.now()
		cardinalityMet := b.expectedCount > 0 && len(b.updates) >= b.expectedCount
		quietLongEnough := now.Sub(b.firstSeen) >= a.window && now.Sub(b.lastArrival) >= a.quietPeriod

		switch {
		case cardinalityMet || quietLongEnough:
			delete(a.buffers, mediaGroupID)
			a.mu.Unlock()
			a.finalize(mediaGroupID, b)
			return
		case now.Sub(b.firstSeen) >= a.evictAfter:
			delete(a.buffers, mediaGroupID)
			a.mu.Unlock()
			return // malformed: evicted without ever finalizing
		default:
			a.mu.Unlock()
		}
	}
}

func (a *Aggregator) finalize(mediaGroupID string, b *buffer) {
	photos := append([]PhotoUpdate(nil), b.updates...)
	sort.SliceStable(photos, func(i, j int) bool {
		if photos[i].MessageID != photos[j].MessageID {
			return photos[i].MessageID < photos[j].MessageID
		}
		return photos[i].Arrived.Before(photos[j].Arrived)
	})

	var caption string
	for _, p := range photos {
		if p.Caption != "" {
			caption = p.Caption
			break
		}
	}

	for i := range photos {
		if err := ValidateDisplayOrder(i); err != nil {
			log.Warn().Str("media_group_id", mediaGroupID).Int("photo_count", len(photos)).
				Msg("media group exceeds the 5-photo display-order range; downstream validation will reject it")
			break
		}
	}

	if a.onFinal != nil {
		a.onFinal(FinalizedGroup{
			MediaGroupID: mediaGroupID,
			Photos:       photos,
			Caption:      caption,
		})
	}
}
