package reactive

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time view of a model's bookkeeping
type Stats struct {
	Name           string    `json:"name"`
	Revision       uint64    `json:"revision"`
	Committed      int64     `json:"committed"`
	Aborted        int64     `json:"aborted"`
	ReactionsFired int64     `json:"reactionsFired"`
	ReactionPanics int64     `json:"reactionPanics"`
	Signals        int       `json:"signals"`
	Reactions      int       `json:"reactions"`
	QueueDepth     int       `json:"queueDepth"`
	LastCommit     time.Time `json:"lastCommit"`
	HasError       bool      `json:"hasError"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	LastErrorTime  time.Time `json:"lastErrorTime,omitempty"`
}

// counters holds the atomic counters behind Stats
type counters struct {
	committed      int64
	aborted        int64
	reactionsFired int64
	reactionPanics int64
	lastCommit     int64 // Unix nanoseconds

	errMu         sync.RWMutex
	lastError     error
	lastErrorTime int64 // Unix nanoseconds
}

func (c *counters) recordCommit(at time.Time) {
	atomic.AddInt64(&c.committed, 1)
	atomic.StoreInt64(&c.lastCommit, at.UnixNano())
}

func (c *counters) recordAbort(err error) {
	atomic.AddInt64(&c.aborted, 1)
	c.errMu.Lock()
	c.lastError = err
	c.lastErrorTime = time.Now().UnixNano()
	c.errMu.Unlock()
}

func (c *counters) recordFire(panicked bool) {
	atomic.AddInt64(&c.reactionsFired, 1)
	if panicked {
		atomic.AddInt64(&c.reactionPanics, 1)
	}
}

func (c *counters) fill(s *Stats) {
	s.Committed = atomic.LoadInt64(&c.committed)
	s.Aborted = atomic.LoadInt64(&c.aborted)
	s.ReactionsFired = atomic.LoadInt64(&c.reactionsFired)
	s.ReactionPanics = atomic.LoadInt64(&c.reactionPanics)
	if nanos := atomic.LoadInt64(&c.lastCommit); nanos != 0 {
		s.LastCommit = time.Unix(0, nanos)
	}

	c.errMu.RLock()
	defer c.errMu.RUnlock()
	if c.lastError != nil {
		s.HasError = true
		s.ErrorMessage = c.lastError.Error()
		s.LastErrorTime = time.Unix(0, c.lastErrorTime)
	}
}
