// notes/session/manager.go

// Package session keeps one sync engine per signed-in user and routes its
// notifications to the user's hub clients.
package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/hub"
	"github.com/ViniZap4/lumi-notes/store"
	"github.com/ViniZap4/lumi-notes/syncer"
)

type Manager struct {
	store store.RemoteStore
	hub   *hub.Hub
	opts  []syncer.Option

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	engines map[string]*running

	logger zerolog.Logger
}

type running struct {
	engine *syncer.Engine
	cancel context.CancelFunc
	done   chan struct{}
}

// hubListener publishes engine events to every client of one user.
type hubListener struct {
	hub    *hub.Hub
	userID string
}

func (l hubListener) TreeChanged(view domain.TreeView) {
	l.hub.Publish(l.userID, hub.TreeChanged(view))
}

func (l hubListener) OperationResult(opID string, err error) {
	l.hub.Publish(l.userID, hub.OpResult(opID, err))
}

func NewManager(rs store.RemoteStore, h *hub.Hub, opts ...syncer.Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:   rs,
		hub:     h,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		engines: make(map[string]*running),
		logger:  zerolog.Nop(),
	}
}

func (m *Manager) SetLogger(logger zerolog.Logger) {
	m.logger = logger.With().Str("component", "session").Logger()
}

// Start opens, or reopens, the session for userID. Reopening cancels the
// previous subscription before the new one is made.
func (m *Manager) Start(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	r, ok := m.engines[userID]
	if !ok {
		engineCtx, cancel := context.WithCancel(m.ctx)
		r = &running{
			engine: syncer.New(m.store, hubListener{hub: m.hub, userID: userID}, m.opts...),
			cancel: cancel,
			done:   make(chan struct{}),
		}
		go func(r *running) {
			defer close(r.done)
			r.engine.Run(engineCtx)
		}(r)
		m.engines[userID] = r
	}
	m.mu.Unlock()

	opID, err := r.engine.Start(ctx, userID)
	if err != nil {
		m.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to start session")
		return "", err
	}
	return opID, nil
}

// Stop ends userID's session and shuts its engine down.
func (m *Manager) Stop(ctx context.Context, userID string) error {
	m.mu.Lock()
	r, ok := m.engines[userID]
	delete(m.engines, userID)
	m.mu.Unlock()
	if !ok {
		return domain.ErrNoSession
	}

	err := r.engine.Stop(ctx)
	r.cancel()
	<-r.done
	return err
}

// Engine returns the engine serving userID.
func (m *Manager) Engine(userID string) (*syncer.Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.engines[userID]
	if !ok {
		return nil, domain.ErrNoSession
	}
	return r.engine, nil
}

func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.engines)
}

// Close stops every engine and waits for them.
func (m *Manager) Close() {
	m.cancel()
	m.mu.Lock()
	all := m.engines
	m.engines = make(map[string]*running)
	m.mu.Unlock()

	for _, r := range all {
		<-r.done
	}
	m.logger.Info().Int("sessions", len(all)).Msg("sessions closed")
}
