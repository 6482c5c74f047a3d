// Package locks serializes fund account mutations. Every placement,
// modification, bulk exit and square-off for the same (broker, customer)
// pair must run under the account's lock so two concurrent reservations can
// never both read the same used limit and lose an increment.
package locks

import "sync"

// AccountLocks is an arena of mutexes keyed by broker+customer.
type AccountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewAccountLocks() *AccountLocks {
	return &AccountLocks{locks: make(map[string]*sync.Mutex)}
}

func key(brokerID, customerID string) string {
	return brokerID + "|" + customerID
}

// Lock acquires the mutex for the account and returns its unlock function.
// Mutexes are created on first use and kept for the life of the process; the
// active account set is small enough that eviction is not worth the races it
// would invite.
func (l *AccountLocks) Lock(brokerID, customerID string) func() {
	l.mu.Lock()
	m, ok := l.locks[key(brokerID, customerID)]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key(brokerID, customerID)] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
