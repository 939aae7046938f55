package reactive

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/standardbeagle/rmodel/internal/debug"
	"github.com/standardbeagle/rmodel/internal/lifetime"
)

// reaction is the untyped form of a registered reaction
type reaction struct {
	name string
	lt   *lifetime.Lifetime
	poll func() (interface{}, uint64)
	fn   func(interface{})

	alive      atomic.Bool
	fires      atomic.Int64
	seen       uint64 // signal version last delivered; guarded by graphMu
	unregister func()

	mu sync.Mutex // serializes invocations
}

// firing is one pending invocation collected at commit time
type firing struct {
	r     *reaction
	value interface{}
}

// ReactionHandle reports on a registered reaction
type ReactionHandle struct {
	r *reaction
}

// Name returns the reaction name
func (h *ReactionHandle) Name() string { return h.r.name }

// Fires returns how many times the reaction has run
func (h *ReactionHandle) Fires() int64 { return h.r.fires.Load() }

// Active reports whether the reaction can still fire
func (h *ReactionHandle) Active() bool {
	return h.r.alive.Load() && !h.r.lt.IsTerminated()
}

// Reaction runs fn with the signal's value after every committed transaction
// that changed it, at most once per transaction. With runImmediately, fn also
// runs once with the current value before Reaction returns.
//
// Reactions fire synchronously on the committing goroutine in the order they
// were registered across the whole model. Once lt terminates the reaction
// never fires again, even when termination happens while other reactions of
// the same commit are still running. A panic in fn is recovered and logged.
func Reaction[T any](m *ReactiveModel, lt *lifetime.Lifetime, runImmediately bool, name string, sig Signal[T], fn func(T)) *ReactionHandle {
	src := sig.source()
	r := &reaction{
		name: name,
		lt:   lt,
		poll: func() (interface{}, uint64) {
			v, version := src.load()
			return v, version
		},
		fn: func(v interface{}) {
			typed, _ := v.(T)
			fn(typed)
		},
		unregister: func() {},
	}
	h := &ReactionHandle{r: r}

	if lt.IsTerminated() {
		return h
	}

	// Held until the immediate run finishes so a concurrent commit cannot
	// deliver a newer value first.
	r.mu.Lock()
	m.graphMu.Lock()
	if m.lt.IsTerminated() {
		m.graphMu.Unlock()
		r.mu.Unlock()
		return h
	}
	current, version := r.poll()
	r.seen = version
	r.alive.Store(true)
	m.reactions = append(m.reactions, r)
	m.graphMu.Unlock()

	if runImmediately {
		m.run(r, current)
	}
	r.mu.Unlock()

	unregister := lt.OnTerminationFunc(func() { m.detachReaction(r) })
	m.graphMu.Lock()
	r.unregister = unregister
	m.graphMu.Unlock()

	debug.LogReaction("%s: registered %q on %s (immediate=%v)\n", m.name, name, sig.Name(), runImmediately)
	return h
}

// collect picks the reactions whose signal advanced since they last ran.
// Called with graphMu held, after signals were refreshed.
func (m *ReactiveModel) collect() []firing {
	var batch []firing
	for _, r := range m.reactions {
		v, version := r.poll()
		if version == r.seen {
			continue
		}
		r.seen = version
		batch = append(batch, firing{r: r, value: v})
	}
	return batch
}

func (m *ReactiveModel) dispatch(snap *Snapshot, batch []firing) {
	for _, f := range batch {
		f.r.mu.Lock()
		m.run(f.r, f.value)
		f.r.mu.Unlock()
	}
	if len(batch) > 0 {
		debug.LogReaction("%s: revision %d dispatched %d reactions\n", m.name, snap.Revision, len(batch))
	}
}

// run invokes r with v unless r was terminated. Callers hold r.mu.
func (m *ReactiveModel) run(r *reaction, v interface{}) {
	if !r.alive.Load() || r.lt.IsTerminated() {
		return
	}
	err := invoke(r, v)
	r.fires.Add(1)
	m.stats.recordFire(err != nil)
	if err != nil {
		debug.LogReaction("%s: reaction %q: %v\n", m.name, r.name, err)
	}
}

func invoke(r *reaction, v interface{}) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panicked: %v", rec)
		}
	}()
	r.fn(v)
	return nil
}

func (m *ReactiveModel) detachReaction(r *reaction) {
	r.alive.Store(false)
	m.graphMu.Lock()
	defer m.graphMu.Unlock()
	for i, x := range m.reactions {
		if x == r {
			m.reactions = append(m.reactions[:i:i], m.reactions[i+1:]...)
			return
		}
	}
}
