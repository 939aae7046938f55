// Package lifetime provides hierarchical cleanup scopes. Terminating a
// lifetime terminates its children first, then runs its own termination
// callbacks in reverse registration order. Termination is synchronous,
// immediate and idempotent.
package lifetime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/standardbeagle/rmodel/internal/debug"
	rmerrors "github.com/standardbeagle/rmodel/internal/errors"
)

// Lifetime is a cancellation scope. The zero value is not usable; create
// lifetimes with New or Child.
type Lifetime struct {
	name    string
	eternal bool
	parent  *Lifetime

	terminated atomic.Bool

	mu        sync.Mutex
	nextID    uint64
	callbacks []callback
	children  []*Lifetime

	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

type callback struct {
	id uint64
	fn func() error
}

// Eternal never terminates. Callbacks registered on it never run and
// children created from it are independent roots.
var Eternal = &Lifetime{
	name:    "eternal",
	eternal: true,
	done:    make(chan struct{}),
	ctx:     context.Background(),
	cancel:  func() {},
}

// New creates a root lifetime
func New(name string) *Lifetime {
	ctx, cancel := context.WithCancel(context.Background())
	return &Lifetime{
		name:   name,
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Child creates a lifetime that is terminated no later than l. A child of a
// terminated lifetime is born terminated.
func (l *Lifetime) Child(name string) *Lifetime {
	if l.eternal {
		return New(name)
	}

	child := New(l.name + "/" + name)
	child.parent = l

	l.mu.Lock()
	if l.terminated.Load() {
		l.mu.Unlock()
		_ = child.Terminate()
		return child
	}
	l.children = append(l.children, child)
	l.mu.Unlock()
	return child
}

// Name returns the slash-joined name of the lifetime and its ancestors
func (l *Lifetime) Name() string { return l.name }

// IsEternal reports whether l is the Eternal lifetime
func (l *Lifetime) IsEternal() bool { return l.eternal }

// IsTerminated reports whether termination has started
func (l *Lifetime) IsTerminated() bool { return l.terminated.Load() }

// Done returns a channel closed once termination has finished
func (l *Lifetime) Done() <-chan struct{} { return l.done }

// Context returns a context cancelled when l terminates
func (l *Lifetime) Context() context.Context { return l.ctx }

// OnTermination registers fn to run when l terminates. If l has already
// terminated, fn runs immediately. The returned function unregisters fn.
func (l *Lifetime) OnTermination(fn func() error) (unregister func()) {
	if l.eternal {
		return func() {}
	}

	l.mu.Lock()
	if l.terminated.Load() {
		l.mu.Unlock()
		if err := runCallback(l.name, fn); err != nil {
			debug.LogLifetime("late cleanup on %s failed: %v\n", l.name, err)
		}
		return func() {}
	}
	l.nextID++
	id := l.nextID
	l.callbacks = append(l.callbacks, callback{id: id, fn: fn})
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i := range l.callbacks {
			if l.callbacks[i].id == id {
				l.callbacks[i].fn = nil
				return
			}
		}
	}
}

// OnTerminationFunc registers a cleanup that cannot fail
func (l *Lifetime) OnTerminationFunc(fn func()) (unregister func()) {
	return l.OnTermination(func() error {
		fn()
		return nil
	})
}

// Terminate ends the lifetime. Children are terminated first, newest first,
// then callbacks run in reverse registration order. A failing or panicking
// callback does not stop the others; all failures are returned together as
// a *errors.CleanupError. Calling Terminate again is a no-op returning nil.
func (l *Lifetime) Terminate() error {
	if l.eternal {
		return nil
	}

	l.mu.Lock()
	if l.terminated.Load() {
		l.mu.Unlock()
		return nil
	}
	l.terminated.Store(true)
	children := l.children
	callbacks := l.callbacks
	l.children = nil
	l.callbacks = nil
	l.mu.Unlock()

	debug.LogLifetime("terminating %s (%d children, %d callbacks)\n", l.name, len(children), len(callbacks))

	var failures []error
	for i := len(children) - 1; i >= 0; i-- {
		if err := children[i].Terminate(); err != nil {
			failures = append(failures, err)
		}
	}
	for i := len(callbacks) - 1; i >= 0; i-- {
		if callbacks[i].fn == nil {
			continue
		}
		if err := runCallback(l.name, callbacks[i].fn); err != nil {
			debug.LogLifetime("cleanup on %s failed: %v\n", l.name, err)
			failures = append(failures, err)
		}
	}

	if l.parent != nil {
		l.parent.removeChild(l)
	}
	l.cancel()
	close(l.done)

	if cleanupErr := rmerrors.NewCleanupError(l.name, failures); cleanupErr != nil {
		return cleanupErr
	}
	return nil
}

func (l *Lifetime) removeChild(child *Lifetime) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, c := range l.children {
		if c == child {
			l.children = append(l.children[:i], l.children[i+1:]...)
			return
		}
	}
}

func runCallback(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup callback on %s panicked: %v", name, r)
		}
	}()
	return fn()
}

// String implements fmt.Stringer
func (l *Lifetime) String() string {
	state := "alive"
	switch {
	case l.eternal:
		state = "eternal"
	case l.IsTerminated():
		state = "terminated"
	}
	return fmt.Sprintf("Lifetime(%s, %s)", l.name, state)
}
