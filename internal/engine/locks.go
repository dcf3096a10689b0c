package engine

import (
	"sync"

	"github.com/google/uuid"
)

// pollLocks hands out one mutex per poll so every mutating operation on a
// single poll executes as an atomic unit within this process. Entries are
// never evicted; a mutex is a few words and poll counts are bounded by the
// platform's content volume.
type pollLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newPollLocks() *pollLocks {
	return &pollLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// lock acquires the mutex for the given poll and returns its unlock function.
func (pl *pollLocks) lock(id uuid.UUID) func() {
	pl.mu.Lock()
	m, ok := pl.locks[id]
	if !ok {
		m = &sync.Mutex{}
		pl.locks[id] = m
	}
	pl.mu.Unlock()

	m.Lock()
	return m.Unlock
}
