package oracle

import "sync"

// Lock serializes request/response cycles against a process that can only
// handle one at a time. Bodies run strictly in the order they were queued.
// Each holder owns a channel that it closes on release; the next holder in
// line waits on it.
type Lock struct {
	mu   sync.Mutex
	tail chan struct{}
}

// ticket queues the caller and returns the channel of its predecessor
// (nil when the lock is free) and the release function for its own turn.
func (l *Lock) ticket() (<-chan struct{}, func()) {
	done := make(chan struct{})
	l.mu.Lock()
	prev := l.tail
	l.tail = done
	l.mu.Unlock()

	var once sync.Once
	return prev, func() { once.Do(func() { close(done) }) }
}

func (l *Lock) acquire() func() {
	prev, release := l.ticket()
	if prev != nil {
		<-prev
	}
	return release
}

// RunExclusive runs fn once every previously queued body has completed
// and hands fn's result back to this caller.
func RunExclusive[T any](l *Lock, fn func() (T, error)) (T, error) {
	release := l.acquire()
	defer release()
	return fn()
}
