// notes/syncer/engine.go

// Package syncer keeps a user's note tree in step with the remote store.
//
// An Engine owns one tree.Tree and touches it only from the goroutine
// running Run. Store callbacks and write completions are posted onto that
// goroutine as closures, so listeners observe every change in order and
// never concurrently.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/pathcodec"
	"github.com/ViniZap4/lumi-notes/store"
	"github.com/ViniZap4/lumi-notes/tree"
)

// ErrNotRunning is returned by calls made after Run has returned.
var ErrNotRunning = errors.New("sync engine is not running")

type State int

const (
	Idle State = iota
	Subscribing
	Synced
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Subscribing:
		return "subscribing"
	case Synced:
		return "synced"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Listener receives engine notifications. Calls are made from the engine's
// loop goroutine, one at a time; implementations must not call back into
// the engine synchronously.
type Listener interface {
	TreeChanged(view domain.TreeView)
	OperationResult(opID string, err error)
}

type writeOp struct {
	gen   uint64
	opID  string
	key   string
	path  []string
	value *store.Value // nil deletes
}

type Engine struct {
	store    store.RemoteStore
	listener Listener

	namespace    string
	writeTimeout time.Duration
	queueSize    int
	logger       zerolog.Logger

	inbox   chan func()
	writes  chan writeOp
	stopped chan struct{}
	runCtx  context.Context

	// Owned by the loop goroutine.
	tree          *tree.Tree
	state         State
	gen           uint64
	userID        string
	rootKey       string
	sub           *store.Subscription
	cancelSession context.CancelFunc
	startOp       string
	startReported bool
	// Writes not yet acknowledged, replayed over every incoming snapshot so
	// an echo that predates them does not undo local edits.
	pending []writeOp
}

func New(rs store.RemoteStore, l Listener, opts ...Option) *Engine {
	e := &Engine{
		store:        rs,
		listener:     l,
		namespace:    DefaultNamespace,
		writeTimeout: DefaultWriteTimeout,
		queueSize:    DefaultQueueSize,
		logger:       zerolog.Nop(),
		inbox:        make(chan func(), 64),
		stopped:      make(chan struct{}),
		tree:         tree.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.writes = make(chan writeOp, e.queueSize)
	return e
}

// Run processes engine work until ctx is done. It must be called exactly
// once; every other method blocks until Run is going.
func (e *Engine) Run(ctx context.Context) {
	e.runCtx = ctx
	defer close(e.stopped)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		e.writeLoop(ctx)
	}()

	e.logger.Info().Msg("sync engine started")
	for {
		select {
		case fn := <-e.inbox:
			fn()
		case <-ctx.Done():
			e.endSession()
			<-writerDone
			e.logger.Info().Msg("sync engine stopped")
			return
		}
	}
}

// do runs fn on the loop goroutine and waits for it to finish.
func (e *Engine) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case e.inbox <- func() { fn(); close(done) }:
	case <-e.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-e.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post hands fn to the loop without waiting. It gives up once ctx ends.
func (e *Engine) post(ctx context.Context, fn func()) {
	select {
	case e.inbox <- fn:
	case <-ctx.Done():
	case <-e.stopped:
	}
}

// Start opens a session for userID, replacing any session already running.
// The returned operation completes when the first snapshot arrives.
func (e *Engine) Start(ctx context.Context, userID string) (string, error) {
	if err := pathcodec.ValidateSegment(userID); err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}

	var opID string
	var err error
	if doErr := e.do(ctx, func() { opID, err = e.start(userID) }); doErr != nil {
		return "", doErr
	}
	return opID, err
}

func (e *Engine) start(userID string) (string, error) {
	e.endSession()

	rootKey, err := pathcodec.Join(e.namespace, userID)
	if err != nil {
		return "", err
	}

	e.gen++
	gen := e.gen
	sessionCtx, cancel := context.WithCancel(e.runCtx)

	e.userID = userID
	e.rootKey = rootKey
	e.cancelSession = cancel
	e.state = Subscribing
	e.startOp = uuid.New().String()
	e.startReported = false
	e.tree = tree.New()

	sub, err := e.store.Subscribe(sessionCtx, rootKey, store.Handler{
		OnSnapshot: func(snap *store.Snapshot) {
			e.post(sessionCtx, func() { e.applySnapshot(gen, snap) })
		},
		OnError: func(err error) {
			e.post(sessionCtx, func() { e.subscriptionFailed(gen, err) })
		},
	})
	if err != nil {
		cancel()
		e.reset()
		return "", fmt.Errorf("%w: subscribe %s: %v", domain.ErrRemoteUnavailable, rootKey, err)
	}
	e.sub = sub

	e.logger.Info().Str("user_id", userID).Str("root", rootKey).Msg("session started")
	e.listener.TreeChanged(e.tree.View())
	return e.startOp, nil
}

// Stop ends the current session, if any. Writes still in flight complete
// against the store but their results are not reported.
func (e *Engine) Stop(ctx context.Context) error {
	return e.do(ctx, func() {
		if e.state == Idle {
			return
		}
		e.endSession()
		e.listener.TreeChanged(e.tree.View())
	})
}

func (e *Engine) endSession() {
	if e.state == Idle {
		return
	}
	if e.sub != nil {
		e.sub.Cancel()
	}
	if e.cancelSession != nil {
		e.cancelSession()
	}
	e.logger.Info().Str("user_id", e.userID).Msg("session ended")
	e.reset()
}

func (e *Engine) reset() {
	e.gen++
	e.state = Idle
	e.userID = ""
	e.rootKey = ""
	e.sub = nil
	e.cancelSession = nil
	e.startOp = ""
	e.pending = nil
	e.tree = tree.New()
}

func (e *Engine) applySnapshot(gen uint64, snap *store.Snapshot) {
	if gen != e.gen {
		e.logger.Debug().Msg("dropping snapshot from ended session")
		return
	}

	t, skipped := Rebuild(snap)
	if skipped > 0 {
		e.logger.Warn().Int("skipped", skipped).Str("root", e.rootKey).Msg("snapshot held nodes with unusable names")
	}
	for _, w := range e.pending {
		replay(t, w.path, w.value)
	}
	e.tree = t

	if e.state == Subscribing {
		e.state = Synced
		e.logger.Info().Str("user_id", e.userID).Int("nodes", t.Len()).Msg("session synced")
		e.reportStart(nil)
	}
	e.listener.TreeChanged(t.View())
}

func (e *Engine) subscriptionFailed(gen uint64, err error) {
	if gen != e.gen {
		return
	}
	e.logger.Warn().Err(err).Str("root", e.rootKey).Msg("subscription error")
	if e.state == Subscribing {
		if !errors.Is(err, domain.ErrRemoteUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrRemoteUnavailable, err)
		}
		e.reportStart(err)
	}
}

func (e *Engine) reportStart(err error) {
	if e.startReported {
		return
	}
	e.startReported = true
	e.listener.OperationResult(e.startOp, err)
}

// CreateFolder adds an empty folder under the folder at parentPath and
// mirrors it to the store. An empty parentPath means the top level.
func (e *Engine) CreateFolder(ctx context.Context, parentPath []string, name string) (string, error) {
	return e.create(ctx, parentPath, name, domain.KindFolder)
}

// CreateNote adds an empty note under the node at parentPath. A note parent
// places the new note next to it.
func (e *Engine) CreateNote(ctx context.Context, parentPath []string, title string) (string, error) {
	return e.create(ctx, parentPath, title, domain.KindNote)
}

func (e *Engine) create(ctx context.Context, parentPath []string, name string, kind domain.Kind) (string, error) {
	var opID string
	var err error
	doErr := e.do(ctx, func() {
		if err = e.requireSession(); err != nil {
			return
		}
		var parent, n *tree.Node
		if parent, err = e.tree.Find(parentPath); err != nil {
			return
		}
		if kind == domain.KindFolder {
			n, err = e.tree.CreateFolder(parent, name)
		} else {
			n, err = e.tree.CreateNote(parent, name)
		}
		if err != nil {
			return
		}

		v := store.FolderValue()
		if kind == domain.KindNote {
			v = store.NoteValue("")
		}
		opID, err = e.mirror(n, &v)
		e.listener.TreeChanged(e.tree.View())
	})
	if doErr != nil {
		return "", doErr
	}
	return opID, err
}

// SetContent replaces the text of the note at path.
func (e *Engine) SetContent(ctx context.Context, path []string, text string) (string, error) {
	var opID string
	var err error
	doErr := e.do(ctx, func() {
		if err = e.requireSession(); err != nil {
			return
		}
		var n *tree.Node
		if n, err = e.tree.Find(path); err != nil {
			return
		}
		if err = e.tree.SetContent(n, text); err != nil {
			return
		}
		v := store.NoteValue(text)
		opID, err = e.mirror(n, &v)
		e.listener.TreeChanged(e.tree.View())
	})
	if doErr != nil {
		return "", doErr
	}
	return opID, err
}

// Delete removes the node at path and everything below it.
func (e *Engine) Delete(ctx context.Context, path []string) (string, error) {
	var opID string
	var err error
	doErr := e.do(ctx, func() {
		if err = e.requireSession(); err != nil {
			return
		}
		var n *tree.Node
		if n, err = e.tree.Find(path); err != nil {
			return
		}
		p := e.tree.ResolvePath(n)
		var key string
		if key, err = pathcodec.Join(e.rootKey, p...); err != nil {
			return
		}
		if err = e.tree.Delete(n); err != nil {
			return
		}
		opID = e.enqueue(key, p, nil)
		e.listener.TreeChanged(e.tree.View())
	})
	if doErr != nil {
		return "", doErr
	}
	return opID, err
}

func (e *Engine) requireSession() error {
	if e.state == Idle {
		return domain.ErrNoSession
	}
	return nil
}

func (e *Engine) mirror(n *tree.Node, v *store.Value) (string, error) {
	p := e.tree.ResolvePath(n)
	key, err := pathcodec.Join(e.rootKey, p...)
	if err != nil {
		return "", err
	}
	return e.enqueue(key, p, v), nil
}

// enqueue hands a write to the writer. A full queue fails the operation
// right away; the failure is delivered like any other result.
func (e *Engine) enqueue(key string, path []string, v *store.Value) string {
	w := writeOp{gen: e.gen, opID: uuid.New().String(), key: key, path: path, value: v}
	select {
	case e.writes <- w:
		e.pending = append(e.pending, w)
	default:
		err := fmt.Errorf("%w: %s: write queue full", domain.ErrWriteFailed, key)
		e.logger.Error().Str("key", key).Msg("write queue full")
		go e.post(e.runCtx, func() { e.finishWrite(w, err) })
	}
	return w.opID
}

// writeLoop performs queued writes one at a time, in the order the loop
// queued them.
func (e *Engine) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case w := <-e.writes:
			err := e.apply(ctx, w)
			e.post(ctx, func() { e.finishWrite(w, err) })
		}
	}
}

func (e *Engine) apply(ctx context.Context, w writeOp) error {
	ctx, cancel := context.WithTimeout(ctx, e.writeTimeout)
	defer cancel()

	var err error
	if w.value == nil {
		err = e.store.Delete(ctx, w.key)
	} else {
		err = e.store.Write(ctx, w.key, *w.value)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrWriteFailed, w.key, err)
	}
	return nil
}

func (e *Engine) finishWrite(w writeOp, err error) {
	if w.gen != e.gen {
		e.logger.Debug().Str("op_id", w.opID).Msg("discarding result from ended session")
		return
	}
	for i, p := range e.pending {
		if p.opID == w.opID {
			e.pending = append(e.pending[:i:i], e.pending[i+1:]...)
			break
		}
	}
	if err != nil {
		e.logger.Warn().Err(err).Str("op_id", w.opID).Msg("remote write failed")
	}
	e.listener.OperationResult(w.opID, err)
}

// Tree returns a copy of the current tree.
func (e *Engine) Tree(ctx context.Context) (domain.TreeView, error) {
	var view domain.TreeView
	err := e.do(ctx, func() { view = e.tree.View() })
	return view, err
}

// Lookup returns the node at path.
func (e *Engine) Lookup(ctx context.Context, path []string) (domain.NodeView, error) {
	var view domain.NodeView
	var err error
	doErr := e.do(ctx, func() {
		var n *tree.Node
		if n, err = e.tree.Find(path); err != nil {
			return
		}
		if e.tree.IsRoot(n) {
			err = fmt.Errorf("%w: the root is not addressable", domain.ErrNotFound)
			return
		}
		view = e.tree.NodeView(n)
	})
	if doErr != nil {
		return domain.NodeView{}, doErr
	}
	return view, err
}

func (e *Engine) State(ctx context.Context) (State, error) {
	var s State
	err := e.do(ctx, func() { s = e.state })
	return s, err
}

// UserID returns the identifier of the running session, or "".
func (e *Engine) UserID(ctx context.Context) (string, error) {
	var id string
	err := e.do(ctx, func() { id = e.userID })
	return id, err
}

// Fetch reads the stored value at path straight from the store, bypassing
// the local tree.
func (e *Engine) Fetch(ctx context.Context, path []string) (*store.Value, error) {
	var rootKey string
	if err := e.do(ctx, func() { rootKey = e.rootKey }); err != nil {
		return nil, err
	}
	if rootKey == "" {
		return nil, domain.ErrNoSession
	}

	key, err := pathcodec.Join(rootKey, path...)
	if err != nil {
		return nil, err
	}
	v, err := e.store.Read(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrRemoteUnavailable, key, err)
	}
	if v == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}
	return v, nil
}
