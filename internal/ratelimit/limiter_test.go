package ratelimit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordStarts swaps the limiter's clock for one that keeps every start stamp.
func recordStarts(l *Limiter) func() []time.Time {
	var (
		mu     sync.Mutex
		starts []time.Time
	)
	l.now = func() time.Time {
		now := time.Now()
		mu.Lock()
		starts = append(starts, now)
		mu.Unlock()
		return now
	}
	return func() []time.Time {
		mu.Lock()
		defer mu.Unlock()
		out := append([]time.Time(nil), starts...)
		sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
		return out
	}
}

func TestAcquire_SpacesConcurrentCallsToSameProvider(t *testing.T) {
	t.Parallel()

	const interval = 40 * time.Millisecond
	l := New(map[string]time.Duration{"google": interval}, 0)
	starts := recordStarts(l)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Acquire(context.Background(), "google"))
		}()
	}
	wg.Wait()

	got := starts()
	require.Len(t, got, 6)
	for i := 1; i < len(got); i++ {
		gap := got[i].Sub(got[i-1])
		assert.GreaterOrEqual(t, gap, interval, "calls %d and %d too close: %s", i-1, i, gap)
	}
}

func TestAcquire_MinimumGapUnderContention(t *testing.T) {
	t.Parallel()

	const (
		interval = 2 * time.Millisecond
		callers  = 100
	)
	l := New(map[string]time.Duration{"jina": interval}, 0)
	starts := recordStarts(l)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Acquire(context.Background(), "jina"))
		}()
	}
	wg.Wait()

	got := starts()
	require.Len(t, got, callers)
	for i := 1; i < len(got); i++ {
		gap := got[i].Sub(got[i-1])
		assert.GreaterOrEqual(t, gap, interval, "calls %d and %d too close: %s", i-1, i, gap)
	}
}

func TestAcquire_CancelledWhileQueuedKeepsSpacing(t *testing.T) {
	t.Parallel()

	const interval = 50 * time.Millisecond
	l := New(map[string]time.Duration{"google": interval}, 0)
	starts := recordStarts(l)

	require.NoError(t, l.Acquire(context.Background(), "google"))

	done := make(chan error, 1)
	go func() { done <- l.Acquire(context.Background(), "google") }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx, "google")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, <-done)
	got := starts()
	require.Len(t, got, 2)
	assert.GreaterOrEqual(t, got[1].Sub(got[0]), interval)
}

func TestAcquire_ProvidersAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(map[string]time.Duration{
		"perplexity": time.Hour,
		"jina":       time.Hour,
	}, 0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, l.Acquire(ctx, "perplexity"))
	require.NoError(t, l.Acquire(ctx, "jina"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestAcquire_FallbackAndUnlimited(t *testing.T) {
	t.Parallel()

	l := New(nil, 0)
	assert.Equal(t, time.Duration(0), l.Interval("anything"))
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Acquire(context.Background(), "anything"))
	}

	l = New(map[string]time.Duration{"google": 600 * time.Millisecond}, time.Second)
	assert.Equal(t, 600*time.Millisecond, l.Interval("google"))
	assert.Equal(t, time.Second, l.Interval("unknown"))
}

func TestAcquire_CancelledWhileWaiting(t *testing.T) {
	t.Parallel()

	l := New(map[string]time.Duration{"perplexity": time.Hour}, 0)
	require.NoError(t, l.Acquire(context.Background(), "perplexity"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx, "perplexity")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_CopiesIntervals(t *testing.T) {
	t.Parallel()

	intervals := map[string]time.Duration{"jina": time.Second}
	l := New(intervals, 0)
	intervals["jina"] = time.Minute
	assert.Equal(t, time.Second, l.Interval("jina"))
}
