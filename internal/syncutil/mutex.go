// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package syncutil provides concurrency primitives shared across the
// pipeline.
package syncutil

import "sync"

// FIFOMutex is an exclusive lock that grants the lock to waiters in
// strict arrival order. The zero value is an unlocked mutex.
//
// sync.Mutex makes no fairness promise and may let a late arrival barge
// ahead of parked waiters; the persistence path needs total FIFO ordering
// of its write transactions, so hand-off here goes through an explicit
// waiter queue.
type FIFOMutex struct {
	mu      sync.Mutex
	locked  bool
	waiters []chan struct{}
}

// Lock acquires the mutex, blocking until it is granted. Waiters are
// granted the lock in the order they called Lock.
func (m *FIFOMutex) Lock() {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	m.waiters = append(m.waiters, ch)
	m.mu.Unlock()
	<-ch
}

// Unlock releases the mutex, handing it directly to the oldest waiter if
// any is queued.
func (m *FIFOMutex) Unlock() {
	m.mu.Lock()
	if len(m.waiters) > 0 {
		ch := m.waiters[0]
		m.waiters = m.waiters[1:]
		m.mu.Unlock()
		// The lock stays held; ownership transfers to the waiter.
		close(ch)
		return
	}
	m.locked = false
	m.mu.Unlock()
}

// RunExclusive runs fn while holding the mutex and returns fn's error.
// Bodies of successive calls never interleave, even when fn itself blocks
// on I/O.
func (m *FIFOMutex) RunExclusive(fn func() error) error {
	m.Lock()
	defer m.Unlock()
	return fn()
}
