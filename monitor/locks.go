package monitor

import "sync"

// pageLocks serialises checks per page so concurrent triggers of the same
// page cannot record duplicate events. Locks are created on first use and
// kept for the process lifetime; the watch set is small.
type pageLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPageLocks() *pageLocks {
	return &pageLocks{locks: make(map[string]*sync.Mutex)}
}

func (p *pageLocks) lock(pageID string) func() {
	p.mu.Lock()
	m, ok := p.locks[pageID]
	if !ok {
		m = &sync.Mutex{}
		p.locks[pageID] = m
	}
	p.mu.Unlock()

	m.Lock()
	return m.Unlock
}
