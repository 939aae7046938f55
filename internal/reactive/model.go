// Package reactive holds the transaction engine: a ReactiveModel owns one
// committed root, applies transactions to it one at a time in submission
// order, keeps signals (tag sets, watched paths, derived values) in step
// with every commit and dispatches reactions after each commit.
package reactive

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/standardbeagle/rmodel/internal/debug"
	rmerrors "github.com/standardbeagle/rmodel/internal/errors"
	"github.com/standardbeagle/rmodel/internal/lifetime"
	"github.com/standardbeagle/rmodel/internal/model"
)

// DefaultHistorySize is the number of snapshots kept by History
const DefaultHistorySize = 32

// Snapshot is one committed state of the model. Snapshots are immutable.
type Snapshot struct {
	Revision    uint64
	Root        model.Model
	Changes     []model.Change // diff from the previous revision
	CommittedAt time.Time
}

// Transform computes a new root from the current one. Returning an error,
// or panicking, aborts the transaction.
type Transform func(root model.Model) (model.Model, error)

// Option configures a ReactiveModel
type Option func(*options)

type options struct {
	name        string
	historySize int
	parent      *lifetime.Lifetime
	root        model.Model
}

// WithName names the model in logs and errors
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithHistorySize sets how many snapshots History keeps
func WithHistorySize(n int) Option {
	return func(o *options) { o.historySize = n }
}

// WithLifetime ties the model to parent: the model closes when parent terminates
func WithLifetime(parent *lifetime.Lifetime) Option {
	return func(o *options) { o.parent = parent }
}

// WithRoot sets the root of revision 0. The default is an empty map.
func WithRoot(root model.Model) Option {
	return func(o *options) { o.root = root }
}

// ReactiveModel is a reactive, path-addressed immutable model.
//
// Reads are lock-free. Transactions are serialized; each one sees the root
// committed by the one submitted before it. Reactions run synchronously on
// the committing goroutine and therefore must not call Transaction on the
// same model themselves; they may hand the work to another goroutine.
type ReactiveModel struct {
	name    string
	lt      *lifetime.Lifetime
	current atomic.Pointer[Snapshot]
	queue   *ticketLock
	stats   counters

	// graphMu guards the signal and reaction registries and makes
	// publishing a snapshot and refreshing signals one step
	graphMu   sync.Mutex
	nodes     []*nodeEntry
	reactions []*reaction

	historyMu   sync.RWMutex
	history     []*Snapshot
	historySize int
}

// nodeEntry is a registered signal
type nodeEntry struct {
	n          node
	unregister func()
}

// New creates a model whose revision 0 holds an empty map
func New(opts ...Option) *ReactiveModel {
	o := options{
		name:        "model",
		historySize: DefaultHistorySize,
		root:        model.EmptyMap(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.historySize < 1 {
		o.historySize = 1
	}

	m := &ReactiveModel{
		name:        o.name,
		queue:       newTicketLock(),
		historySize: o.historySize,
	}
	if o.parent != nil {
		m.lt = o.parent.Child(o.name)
	} else {
		m.lt = lifetime.New(o.name)
	}

	initial := &Snapshot{Root: o.root, CommittedAt: time.Now()}
	if model.IsAbsent(initial.Root) {
		initial.Root = model.Absent
	}
	m.current.Store(initial)
	m.history = append(m.history, initial)

	m.lt.OnTerminationFunc(m.teardown)
	return m
}

// Name returns the model name
func (m *ReactiveModel) Name() string { return m.name }

// Lifetime returns the model's own lifetime; Close terminates it
func (m *ReactiveModel) Lifetime() *lifetime.Lifetime { return m.lt }

// Snapshot returns the latest committed snapshot
func (m *ReactiveModel) Snapshot() *Snapshot { return m.current.Load() }

// Root returns the latest committed root
func (m *ReactiveModel) Root() model.Model { return m.current.Load().Root }

// Get reads the committed value at path
func (m *ReactiveModel) Get(path model.Path) model.Model {
	return model.GetIn(m.Root(), path)
}

// IsClosed reports whether Close has been called
func (m *ReactiveModel) IsClosed() bool { return m.lt.IsTerminated() }

// Transaction applies fn to the current root and commits the result.
//
// Concurrent calls are applied in the order they were submitted. If fn
// returns an error or panics, nothing is committed and the error is returned
// as a *errors.TransactionError. On success the new root becomes visible,
// every signal is refreshed and the reactions whose signals changed fire
// once each, in registration order, before Transaction returns.
func (m *ReactiveModel) Transaction(fn Transform) (*Snapshot, error) {
	return m.transact("", fn)
}

// NamedTransaction is Transaction with a label for logs and errors
func (m *ReactiveModel) NamedTransaction(label string, fn Transform) (*Snapshot, error) {
	return m.transact(label, fn)
}

// Update commits value at path
func (m *ReactiveModel) Update(path model.Path, value model.Model) (*Snapshot, error) {
	return m.transact("update "+path.String(), func(root model.Model) (model.Model, error) {
		return model.PutIn(root, path, value), nil
	})
}

// Delete commits the removal of the subtree at path
func (m *ReactiveModel) Delete(path model.Path) (*Snapshot, error) {
	return m.transact("delete "+path.String(), func(root model.Model) (model.Model, error) {
		return model.DeleteIn(root, path), nil
	})
}

func (m *ReactiveModel) transact(label string, fn Transform) (*Snapshot, error) {
	if m.lt.IsTerminated() {
		return nil, rmerrors.ErrModelClosed
	}

	m.queue.lock()
	defer m.queue.unlock()

	if m.lt.IsTerminated() {
		return nil, rmerrors.ErrModelClosed
	}

	prev := m.current.Load()
	next, err := m.runTransform(label, prev.Revision, fn)
	if err != nil {
		m.stats.recordAbort(err)
		debug.LogTransaction("%s: aborted at revision %d: %v\n", m.name, prev.Revision, err)
		return nil, err
	}

	changes := model.Diff(prev.Root, next)
	snap := &Snapshot{
		Revision:    prev.Revision + 1,
		Root:        next,
		Changes:     changes,
		CommittedAt: time.Now(),
	}

	batch := m.publish(snap)
	m.stats.recordCommit(snap.CommittedAt)
	m.recordHistory(snap)

	if label != "" {
		debug.LogTransaction("%s: committed %q as revision %d (%d changes, %d reactions)\n",
			m.name, label, snap.Revision, len(changes), len(batch))
	} else {
		debug.LogTransaction("%s: committed revision %d (%d changes, %d reactions)\n",
			m.name, snap.Revision, len(changes), len(batch))
	}

	m.dispatch(snap, batch)
	return snap, nil
}

func (m *ReactiveModel) runTransform(label string, revision uint64, fn Transform) (next model.Model, err error) {
	defer func() {
		if r := recover(); r != nil {
			next = nil
			err = rmerrors.NewTransactionPanic(label, revision, r)
		}
	}()

	next, err = fn(m.current.Load().Root)
	if err != nil {
		return nil, rmerrors.NewTransactionError(label, revision, err)
	}
	if next == nil {
		next = model.Absent
	}
	return next, nil
}

// publish makes snap visible, refreshes every signal against it and
// collects the reactions to fire, all under graphMu so that registrations
// observe either the state before or after this commit
func (m *ReactiveModel) publish(snap *Snapshot) []firing {
	m.graphMu.Lock()
	defer m.graphMu.Unlock()

	m.current.Store(snap)
	if len(snap.Changes) > 0 {
		for _, e := range m.nodes {
			refreshNode(e.n, snap)
		}
	}
	return m.collect()
}

func refreshNode(n node, snap *Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			debug.LogReaction("signal %s panicked refreshing revision %d: %v\n", n.label(), snap.Revision, r)
		}
	}()
	n.refresh(snap)
}

// History returns the retained snapshots, oldest first
func (m *ReactiveModel) History() []*Snapshot {
	m.historyMu.RLock()
	defer m.historyMu.RUnlock()
	out := make([]*Snapshot, len(m.history))
	copy(out, m.history)
	return out
}

func (m *ReactiveModel) recordHistory(snap *Snapshot) {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	m.history = append(m.history, snap)
	if over := len(m.history) - m.historySize; over > 0 {
		copy(m.history, m.history[over:])
		for i := len(m.history) - over; i < len(m.history); i++ {
			m.history[i] = nil
		}
		m.history = m.history[:len(m.history)-over]
	}
}

// Stats returns the model's counters
func (m *ReactiveModel) Stats() Stats {
	s := Stats{
		Name:       m.name,
		Revision:   m.current.Load().Revision,
		QueueDepth: m.queue.queueDepth(),
	}
	m.stats.fill(&s)

	m.graphMu.Lock()
	s.Signals = len(m.nodes)
	s.Reactions = len(m.reactions)
	m.graphMu.Unlock()
	return s
}

// Close terminates the model's lifetime. Every signal and reaction is
// dropped and later transactions fail with errors.ErrModelClosed.
func (m *ReactiveModel) Close() error {
	return m.lt.Terminate()
}

func (m *ReactiveModel) teardown() {
	m.graphMu.Lock()
	unregisters := make([]func(), 0, len(m.nodes)+len(m.reactions))
	for _, r := range m.reactions {
		r.alive.Store(false)
		unregisters = append(unregisters, r.unregister)
	}
	for _, e := range m.nodes {
		unregisters = append(unregisters, e.unregister)
	}
	nodes, reactions := len(m.nodes), len(m.reactions)
	m.nodes = nil
	m.reactions = nil
	m.graphMu.Unlock()

	for _, unregister := range unregisters {
		unregister()
	}
	debug.LogTransaction("%s: closed (%d signals, %d reactions dropped)\n", m.name, nodes, reactions)
}

// attach registers n, built from the current snapshot under graphMu, and
// detaches it when lt terminates. It reports false for a closed model. A
// panic in build reaches the caller with nothing registered.
func (m *ReactiveModel) attach(lt *lifetime.Lifetime, n node, build func(*Snapshot)) bool {
	e := m.register(n, build)
	if e == nil {
		return false
	}

	unregister := lt.OnTerminationFunc(func() { m.detachNode(e) })

	m.graphMu.Lock()
	e.unregister = unregister
	m.graphMu.Unlock()
	return true
}

func (m *ReactiveModel) register(n node, build func(*Snapshot)) *nodeEntry {
	m.graphMu.Lock()
	defer m.graphMu.Unlock()

	build(m.current.Load())
	if m.lt.IsTerminated() {
		return nil
	}
	e := &nodeEntry{n: n, unregister: func() {}}
	m.nodes = append(m.nodes, e)
	return e
}

func (m *ReactiveModel) detachNode(e *nodeEntry) {
	m.graphMu.Lock()
	defer m.graphMu.Unlock()
	for i, x := range m.nodes {
		if x == e {
			m.nodes = append(m.nodes[:i:i], m.nodes[i+1:]...)
			return
		}
	}
}
