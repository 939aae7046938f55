package reactive

import "sync"

// ticketLock is a FIFO mutex: goroutines acquire it in the order they asked
// for it. sync.Mutex makes no such promise, and transactions must apply in
// submission order.
type ticketLock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	next    uint64
	serving uint64
}

func newTicketLock() *ticketLock {
	l := &ticketLock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *ticketLock) lock() {
	l.mu.Lock()
	ticket := l.next
	l.next++
	for ticket != l.serving {
		l.cond.Wait()
	}
	l.mu.Unlock()
}

func (l *ticketLock) unlock() {
	l.mu.Lock()
	l.serving++
	l.mu.Unlock()
	l.cond.Broadcast()
}

// queueDepth returns how many callers hold or wait for the lock
func (l *ticketLock) queueDepth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int(l.next - l.serving)
}
