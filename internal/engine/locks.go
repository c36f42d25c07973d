package engine

import "sync"

// walletLocks hands out one mutex per wallet so mutations for the same
// wallet serialize through the read-evaluate-write scope while different
// wallets proceed in parallel. Entries are never removed; the population
// is bounded by the number of wallets ever mutated in this process.
type walletLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func newWalletLocks() *walletLocks {
	return &walletLocks{m: make(map[string]*sync.Mutex)}
}

func (l *walletLocks) get(walletID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if mu, ok := l.m[walletID]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	l.m[walletID] = mu
	return mu
}
