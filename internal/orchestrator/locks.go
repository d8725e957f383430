package orchestrator

import (
	"sync"

	"github.com/sells-group/profile-cli/internal/model"
)

// keyLocks serializes work on the same entity key across batches and
// persistence retries. Entries are dropped once no one holds or waits on them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[model.EntityKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[model.EntityKey]*keyLock)}
}

// lock blocks until the key is free and returns its unlock func.
func (k *keyLocks) lock(key model.EntityKey) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
