package env

import "sync"

// Locker hands out one mutex per root. The zero value is ready to use.
type Locker struct {
	mu    sync.Mutex
	roots map[string]*sync.Mutex
}

// Lock acquires the mutex of root and returns its release.
func (l *Locker) Lock(root string) func() {
	l.mu.Lock()
	if l.roots == nil {
		l.roots = make(map[string]*sync.Mutex)
	}
	m, ok := l.roots[root]
	if !ok {
		m = &sync.Mutex{}
		l.roots[root] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
