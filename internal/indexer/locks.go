package indexer

import (
	"sync"
	"sync/atomic"
)

// runLock rejects a second directory run instead of queueing it
type runLock struct {
	held atomic.Bool
}

func (l *runLock) tryAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

func (l *runLock) release() {
	l.held.Store(false)
}

// pathLocks serializes writers of the same file path. Entries are reference
// counted and removed once no goroutine holds or waits for them.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*pathLock)}
}

// lock blocks until path is free and returns the matching unlock
func (p *pathLocks) lock(path string) func() {
	p.mu.Lock()
	l, ok := p.locks[path]
	if !ok {
		l = &pathLock{}
		p.locks[path] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, path)
		}
		p.mu.Unlock()
	}
}

// size returns the number of paths currently locked or awaited
func (p *pathLocks) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
