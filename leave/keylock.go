package leave

import "sync"

// =============================================================================
// PER-KEY LOCK - Serializes ledger operations on one balance row
// =============================================================================

// keyLock hands out one mutex per BalanceKey so operations on the same
// (user, leave type, year) row are mutually exclusive while operations on
// different rows proceed in parallel. Mutexes are created on demand and
// kept for the process lifetime; the key space (users x types x years) is
// small enough that this never matters.
type keyLock struct {
	mu    sync.Mutex
	locks map[BalanceKey]*sync.Mutex
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[BalanceKey]*sync.Mutex)}
}

// lock acquires the mutex for key and returns the unlock function.
func (kl *keyLock) lock(key BalanceKey) func() {
	kl.mu.Lock()
	m, ok := kl.locks[key]
	if !ok {
		m = &sync.Mutex{}
		kl.locks[key] = m
	}
	kl.mu.Unlock()

	m.Lock()
	return m.Unlock
}
