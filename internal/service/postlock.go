package service

import "sync"

// postLocks serialises mutations per post ID. Entries are reference
// counted and dropped when the last holder unlocks, so operations on
// different posts never share a mutex.
type postLocks struct {
	mu    sync.Mutex
	locks map[string]*postLock
}

type postLock struct {
	mu   sync.Mutex
	refs int
}

func newPostLocks() *postLocks {
	return &postLocks{locks: make(map[string]*postLock)}
}

// lock acquires the mutex for postID and returns its release func.
func (l *postLocks) lock(postID string) func() {
	l.mu.Lock()
	pl, ok := l.locks[postID]
	if !ok {
		pl = &postLock{}
		l.locks[postID] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()

	return func() {
		pl.mu.Unlock()

		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, postID)
		}
		l.mu.Unlock()
	}
}

func (l *postLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
