package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	loads    int
	listens  atomic.Int32
	changed  chan func()
	failOnce atomic.Bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{changed: make(chan func(), 4)}
}

func (f *fakeSource) Load(ctx context.Context) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return &Snapshot{Key: "r", Content: string(rune('0' + f.loads))}, nil
}

func (f *fakeSource) Listen(ctx context.Context, changed func()) error {
	f.listens.Add(1)
	if f.failOnce.CompareAndSwap(true, false) {
		return errors.New("feed broke")
	}
	f.changed <- changed
	changed()
	<-ctx.Done()
	return nil
}

type fastRetry struct{}

func (fastRetry) NextDelay(int, error) (time.Duration, bool) { return time.Millisecond, true }

type recorder struct {
	mu        sync.Mutex
	snapshots []*Snapshot
	errs      []error
}

func (r *recorder) handler() Handler {
	return Handler{
		OnSnapshot: func(s *Snapshot) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.snapshots = append(r.snapshots, s)
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
	}
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots), len(r.errs)
}

func TestFollow_InitialAndChangeSnapshots(t *testing.T) {
	src := newFakeSource()
	rec := &recorder{}

	sub := Follow(context.Background(), "r", rec.handler(), src, fastRetry{})
	defer sub.Cancel()

	assert.NotEmpty(t, sub.ID())
	assert.Equal(t, "r", sub.RootKey())

	require.Eventually(t, func() bool {
		n, _ := rec.counts()
		return n == 1
	}, time.Second, 5*time.Millisecond)

	changed := <-src.changed
	changed()

	require.Eventually(t, func() bool {
		n, _ := rec.counts()
		return n >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestFollow_RetriesBrokenFeed(t *testing.T) {
	src := newFakeSource()
	src.failOnce.Store(true)
	rec := &recorder{}

	sub := Follow(context.Background(), "r", rec.handler(), src, fastRetry{})
	defer sub.Cancel()

	require.Eventually(t, func() bool {
		n, e := rec.counts()
		return n >= 1 && e == 1
	}, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, src.listens.Load(), int32(2))
}

func TestFollow_CancelClosesDone(t *testing.T) {
	src := newFakeSource()
	sub := Follow(context.Background(), "r", Handler{}, src, fastRetry{})

	sub.Cancel()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription did not stop")
	}
}

func TestExponentialBackoffRetryer(t *testing.T) {
	r := &ExponentialBackoffRetryer{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
		MaxRetries:   4,
	}

	d, ok := r.NextDelay(0, nil)
	assert.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, d)

	d, _ = r.NextDelay(2, nil)
	assert.Equal(t, 400*time.Millisecond, d)

	d, _ = r.NextDelay(3, nil)
	assert.Equal(t, 800*time.Millisecond, d)

	_, ok = r.NextDelay(4, nil)
	assert.False(t, ok)

	r.MaxRetries = 0
	d, _ = r.NextDelay(10, nil)
	assert.Equal(t, time.Second, d)
}

type attemptRecorder struct {
	mu       sync.Mutex
	attempts []int
}

func (r *attemptRecorder) NextDelay(attempt int, _ error) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt)
	return time.Millisecond, true
}

func (r *attemptRecorder) seen() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.attempts...)
}

// brokenSource fails every Listen after holding the feed open for uptime.
type brokenSource struct {
	uptime time.Duration
}

func (brokenSource) Load(context.Context) (*Snapshot, error) { return &Snapshot{Key: "r"}, nil }

func (b brokenSource) Listen(ctx context.Context, _ func()) error {
	select {
	case <-ctx.Done():
	case <-time.After(b.uptime):
	}
	return errors.New("feed broke")
}

func TestFollow_AttemptsGrowWhileFeedKeepsFailing(t *testing.T) {
	retry := &attemptRecorder{}
	sub := Follow(context.Background(), "r", Handler{}, brokenSource{}, retry)
	defer sub.Cancel()

	require.Eventually(t, func() bool { return len(retry.seen()) >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{0, 1, 2}, retry.seen()[:3])
}

func TestFollow_StableFeedStartsAttemptsOver(t *testing.T) {
	prev := stableFeed
	stableFeed = 5 * time.Millisecond
	t.Cleanup(func() { stableFeed = prev })

	retry := &attemptRecorder{}
	sub := Follow(context.Background(), "r", Handler{}, brokenSource{uptime: 20 * time.Millisecond}, retry)
	defer func() {
		sub.Cancel()
		<-sub.Done()
	}()

	require.Eventually(t, func() bool { return len(retry.seen()) >= 3 }, 2*time.Second, 5*time.Millisecond)
	for _, a := range retry.seen() {
		assert.Equal(t, 0, a)
	}
}
