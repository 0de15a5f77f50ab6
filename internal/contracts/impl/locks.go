package impl

import (
	"sync"

	"github.com/google/uuid"
)

// lockTable serializes mutations per contract. Every write path runs its
// load, check, mutate and commit under the contract's lock so history entries
// are strictly ordered against a stable predecessor view.
type lockTable struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*contractLock
}

type contractLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: map[uuid.UUID]*contractLock{}}
}

// acquire blocks until the contract's lock is held and returns the release
// function. Entries are dropped once the last holder releases.
func (t *lockTable) acquire(id uuid.UUID) func() {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &contractLock{}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, id)
		}
		t.mu.Unlock()
	}
}
