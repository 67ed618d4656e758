package mediagroup

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newFastAggregator(t *testing.T, onFinal func(FinalizedGroup), onOverflow func(string, string)) *Aggregator {
	t.Helper()
	return New(onFinal, onOverflow, WithTiming(40*time.Millisecond, 10*time.Millisecond, 300*time.Millisecond, 2*time.Millisecond))
}

func TestAggregator_MediaGroupOfThree_OrderedWithCaption(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var got *FinalizedGroup
	done := make(chan struct{})

	a := newFastAggregator(t, func(g FinalizedGroup) {
		mu.Lock()
		gg := g
		got = &gg
		mu.Unlock()
		close(done)
	}, nil)

	a.Add("g123", PhotoUpdate{MessageID: 3, FileID: "p3", Arrived: time.Now()}, 0)
	a.Add("g123", PhotoUpdate{MessageID: 1, FileID: "p1", Caption: "Chicken pasta", Arrived: time.Now()}, 0)
	a.Add("g123", PhotoUpdate{MessageID: 2, FileID: "p2", Arrived: time.Now()}, 0)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("aggregator did not finalize in time")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, got)
	require.Equal(t, "g123", got.MediaGroupID)
	require.Len(t, got.Photos, 3)
	require.Equal(t, []string{"p1", "p2", "p3"}, []string{got.Photos[0].FileID, got.Photos[1].FileID, got.Photos[2].FileID})
	require.Equal(t, "Chicken pasta", got.Caption)
}

func TestAggregator_CardinalityResolvesEarly(t *testing.T) {
	t.Parallel()

	done := make(chan FinalizedGroup, 1)
	a := New(func(g FinalizedGroup) { done <- g }, nil, WithTiming(time.Hour, time.Hour, time.Hour, 2*time.Millisecond))

	a.Add("g1", PhotoUpdate{MessageID: 1, FileID: "a"}, 2)
	a.Add("g1", PhotoUpdate{MessageID: 2, FileID: "b"}, 2)

	select {
	case g := <-done:
		require.Len(t, g.Photos, 2)
	case <-time.After(time.Second):
		t.Fatal("expected cardinality-based early resolution")
	}
}

func TestAggregator_OverflowBeyondFivePhotos(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var overflowed []string
	done := make(chan FinalizedGroup, 1)

	a := newFastAggregator(t, func(g FinalizedGroup) { done <- g }, func(groupID, fileID string) {
		mu.Lock()
		overflowed = append(overflowed, fileID)
		mu.Unlock()
	})

	for i := 1; i <= 6; i++ {
		a.Add("g-over", PhotoUpdate{MessageID: int64(i), FileID: string(rune('a' + i - 1))}, 0)
	}

	select {
	case g := <-done:
		require.Len(t, g.Photos, 5)
	case <-time.After(time.Second):
		t.Fatal("aggregator did not finalize in time")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, overflowed, 1)
}

func TestAggregator_TimeoutWithoutUpdates_NeverFinalizes(t *testing.T) {
	t.Parallel()

	called := false
	_ = newFastAggregator(t, func(FinalizedGroup) { called = true }, nil)

	// No Add call for this group at all: nothing should ever fire.
	time.Sleep(100 * time.Millisecond)
	require.False(t, called)
}
