package fptree

import (
	"sync"
	"sync/atomic"
)

// maxTxRetries is the bounded number of hardware-transactional attempts
// before a thread falls back to the writer-mode speculative lock (§4.5:
// "typical bound: 5 transactional retries").
const maxTxRetries = 5

// txOutcome is what one attempt inside a speculative region reports.
type txOutcome int

const (
	txCommit txOutcome = iota
	txAbort
)

// specLock is the process-wide speculative reader/writer lock of §5. It is
// "speculative" in the sense the Design Notes describe: readers execute a
// short critical section optimistically (withHTM) and only ever fall back
// to holding the lock exclusively (fallback) after repeated conflict.
// Real hardware transactional memory detects conflicting stores
// automatically; this software stand-in makes the same abort points
// explicit (a locked leaf observed mid-transaction) so the retry/escalate
// contract is identical regardless of what CPU it runs on.
type specLock struct {
	mu sync.RWMutex

	// retries and fallbacks are diagnostic counters, read by Tree.LockStats;
	// they do not affect the locking protocol itself.
	retries   atomic.Uint64
	fallbacks atomic.Uint64
}

// withHTM runs attempt up to maxTxRetries times while holding the
// speculative lock in reader mode, returning true the first time attempt
// reports txCommit. attempt must be idempotent-safe to retry: on txAbort
// it should not have left any externally visible mutation behind.
func (s *specLock) withHTM(attempt func() txOutcome) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := 0; i < maxTxRetries; i++ {
		if attempt() == txCommit {
			return true
		}
		s.retries.Add(1)
	}
	return false
}

// fallback runs attempt while holding the speculative lock in writer mode:
// the path taken once transactional retries are exhausted. No other
// thread can be inside withHTM or another fallback concurrently, so the
// only remaining source of a txAbort is a leaf whose per-leaf lock is
// momentarily held by a Phase C payload write (§4.6), which happens
// outside the speculative lock entirely. fallback loops until attempt
// commits rather than giving up, since that contention is always
// transient.
func (s *specLock) fallback(attempt func() txOutcome) {
	s.fallbacks.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	for attempt() == txAbort {
		s.retries.Add(1)
	}
}

// lockStats reports the cumulative transactional-retry and fallback-escalation
// counts, consumed by the tree operation counters.
func (s *specLock) lockStats() (retries, fallbacks uint64) {
	return s.retries.Load(), s.fallbacks.Load()
}

// structural runs attempt while holding the speculative lock in writer
// mode unconditionally — the second critical section §4.6/§4.9 use for
// parent updates after a split or delete commits its leaf-level change.
func (s *specLock) structural(attempt func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt()
}
