// notes/store/notifier.go
package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ViniZap4/lumi-notes/pathcodec"
)

// Notifier fans change signals out to in-process listeners. Backends without
// a native change feed embed one and call Notify after every mutation.
type Notifier struct {
	mu   sync.RWMutex
	subs map[string]listener
}

type listener struct {
	rootKey string
	changed func()
}

// Listen implements the blocking half of Source.Listen for rootKey.
func (n *Notifier) Listen(ctx context.Context, rootKey string, changed func()) error {
	id := uuid.New().String()

	n.mu.Lock()
	if n.subs == nil {
		n.subs = make(map[string]listener)
	}
	n.subs[id] = listener{rootKey: rootKey, changed: changed}
	n.mu.Unlock()

	changed()
	<-ctx.Done()

	n.mu.Lock()
	delete(n.subs, id)
	n.mu.Unlock()
	return nil
}

// Notify signals every listener whose subtree contains key, or lies below it
// when a whole subtree went away.
func (n *Notifier) Notify(key string) {
	n.mu.RLock()
	targets := make([]func(), 0, len(n.subs))
	for _, l := range n.subs {
		if pathcodec.Within(l.rootKey, key) || pathcodec.Within(key, l.rootKey) {
			targets = append(targets, l.changed)
		}
	}
	n.mu.RUnlock()

	for _, changed := range targets {
		changed()
	}
}

func (n *Notifier) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}
