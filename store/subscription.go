// notes/store/subscription.go
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Source is what a backend plugs into Follow.
type Source interface {
	// Load reads the current subtree.
	Load(ctx context.Context) (*Snapshot, error)

	// Listen blocks until ctx is done or the change feed breaks. It must
	// call changed once the feed is established and again whenever
	// something below the subscribed key may have changed.
	Listen(ctx context.Context, changed func()) error
}

// Subscription is a running snapshot feed.
type Subscription struct {
	id      string
	rootKey string
	cancel  context.CancelFunc
	done    chan struct{}
}

func (s *Subscription) ID() string      { return s.id }
func (s *Subscription) RootKey() string { return s.rootKey }

// Cancel stops the feed. It does not wait for in-flight callbacks; use Done
// for that.
func (s *Subscription) Cancel() { s.cancel() }

// Done is closed once no further callbacks will be made.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Follow runs src until ctx is cancelled or the subscription is cancelled.
// Change signals are coalesced: while a snapshot is being loaded, any number
// of further signals collapse into one reload. A broken feed is reported to
// h.OnError and re-established after a backoff delay.
func Follow(ctx context.Context, rootKey string, h Handler, src Source, retry Retryer) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		id:      uuid.New().String(),
		rootKey: rootKey,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	if retry == nil {
		retry = NewExponentialBackoffRetryer()
	}
	stable := stableFeed

	pending := make(chan struct{}, 1)
	changed := func() {
		select {
		case pending <- struct{}{}:
		default:
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-pending:
			}
			snap, err := src.Load(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				notifyError(h, err)
				continue
			}
			if h.OnSnapshot != nil {
				h.OnSnapshot(snap)
			}
		}
	}()

	go func() {
		defer wg.Done()
		attempt := 0
		for {
			started := time.Now()
			err := src.Listen(ctx, changed)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				notifyError(h, err)
			}
			if time.Since(started) > stable {
				attempt = 0
			}
			delay, ok := retry.NextDelay(attempt, err)
			if !ok {
				return
			}
			attempt++
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}()

	go func() {
		wg.Wait()
		close(sub.done)
	}()

	return sub
}

// stableFeed is how long a feed must stay up before the attempt count
// starts again from 0.
var stableFeed = 30 * time.Second

func notifyError(h Handler, err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}
