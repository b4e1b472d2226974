// notes/store/memory/memory.go

// Package memory is an in-process store backend. It keeps everything in maps
// and is used for tests and for running the server without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/pathcodec"
	"github.com/ViniZap4/lumi-notes/store"
)

type Store struct {
	mu      sync.RWMutex
	entries map[string]store.Entry
	users   map[string]domain.User
	seq     int64

	notifier store.Notifier

	logger zerolog.Logger
}

func New() *Store {
	return &Store{
		entries: make(map[string]store.Entry),
		users:   make(map[string]domain.User),
		logger:  zerolog.Nop(),
	}
}

func (s *Store) SetLogger(logger zerolog.Logger) {
	s.logger = logger.With().Str("component", "memstore").Logger()
}

func (s *Store) Read(ctx context.Context, key string) (*store.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	children := s.hasDescendants(key)
	if !ok && !children {
		return nil, nil
	}
	v := resolve(e.Value, children)
	return &v, nil
}

func resolve(v store.Value, hasChildren bool) store.Value {
	if hasChildren {
		return store.FolderValue()
	}
	if v.Kind == "" {
		v.Kind = domain.KindNote
	}
	return v
}

func (s *Store) hasDescendants(key string) bool {
	for k := range s.entries {
		if k != key && pathcodec.Within(key, k) {
			return true
		}
	}
	return false
}

func (s *Store) Write(ctx context.Context, key string, v store.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if v.Kind == domain.KindNote {
		s.deleteBelow(key)
	}
	s.put(key, v)
	for parent, _ := pathcodec.Parent(key); parent != ""; parent, _ = pathcodec.Parent(parent) {
		if _, ok := s.entries[parent]; ok {
			break
		}
		s.put(parent, store.FolderValue())
	}
	s.mu.Unlock()

	s.logger.Debug().Str("key", key).Str("kind", string(v.Kind)).Msg("write")
	s.notifier.Notify(key)
	return nil
}

func (s *Store) put(key string, v store.Value) {
	if e, ok := s.entries[key]; ok {
		e.Value = v
		s.entries[key] = e
		return
	}
	s.seq++
	s.entries[key] = store.Entry{Key: key, Value: v, Seq: s.seq}
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.entries, key)
	s.deleteBelow(key)
	s.mu.Unlock()

	s.logger.Debug().Str("key", key).Msg("delete")
	s.notifier.Notify(key)
	return nil
}

func (s *Store) deleteBelow(key string) {
	for k := range s.entries {
		if k != key && pathcodec.Within(key, k) {
			delete(s.entries, k)
		}
	}
}

// Keys lists every stored key. Intended for tests.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for k := range s.entries {
		out = append(out, k)
	}
	return out
}

func (s *Store) snapshot(rootKey string) *store.Snapshot {
	s.mu.RLock()
	entries := make([]store.Entry, 0, len(s.entries))
	for k, e := range s.entries {
		if pathcodec.Within(rootKey, k) {
			entries = append(entries, e)
		}
	}
	s.mu.RUnlock()
	return store.BuildSnapshot(rootKey, entries)
}

func (s *Store) Subscribe(ctx context.Context, rootKey string, h store.Handler) (*store.Subscription, error) {
	return store.Follow(ctx, rootKey, h, &source{s: s, rootKey: rootKey}, nil), nil
}

// SubscriberCount returns the number of live change listeners.
func (s *Store) SubscriberCount() int { return s.notifier.Count() }

type source struct {
	s       *Store
	rootKey string
}

func (src *source) Load(ctx context.Context) (*store.Snapshot, error) {
	return src.s.snapshot(src.rootKey), nil
}

func (src *source) Listen(ctx context.Context, changed func()) error {
	src.s.logger.Debug().Str("root", src.rootKey).Msg("listening")
	return src.s.notifier.Listen(ctx, src.rootKey, changed)
}

func (s *Store) FindUsersByEmail(ctx context.Context, email string) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.User
	for _, u := range s.users {
		if u.Email == email {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) InsertUser(ctx context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == u.Email {
			return domain.ErrAlreadyExists
		}
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	s.users[u.ID] = *u
	return nil
}

func (s *Store) Close() error { return nil }
