/*
 * Copyright 2025 The DriftSync Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 * This file was written with reference to moby/locker.
 *   https://github.com/moby/locker
 */

// Package locker provides named mutexes. The coordinator takes one lock per
// document key so that appends and merges for the same document are
// serialized while different documents proceed in parallel. No caller ever
// holds more than one document lock, which rules out lock-order deadlock.
package locker

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrNoSuchLock is returned when the requested lock does not exist.
var ErrNoSuchLock = errors.New("no such lock")

// Locker provides locking based on a name. A lock is created on first use
// and removed again once nothing waits for it.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*lockCtr
}

type lockCtr struct {
	mu sync.Mutex

	// waiters counts goroutines waiting to acquire the lock. int32 so dec()
	// can add -1 atomically.
	waiters int32
}

func (l *lockCtr) inc() {
	atomic.AddInt32(&l.waiters, 1)
}

func (l *lockCtr) dec() {
	atomic.AddInt32(&l.waiters, -1)
}

func (l *lockCtr) count() int32 {
	return atomic.LoadInt32(&l.waiters)
}

// New creates a new Locker.
func New() *Locker {
	return &Locker{
		locks: make(map[string]*lockCtr),
	}
}

// Lock locks the mutex with the given name, creating it if needed.
func (l *Locker) Lock(name string) {
	l.mu.Lock()
	nameLock, exists := l.locks[name]
	if !exists {
		nameLock = &lockCtr{}
		l.locks[name] = nameLock
	}

	// Count this waiter while still holding the registry mutex so the lock
	// cannot be deleted by a concurrent Unlock.
	nameLock.inc()
	l.mu.Unlock()

	nameLock.mu.Lock()
	nameLock.dec()
}

// TryLock locks the mutex with the given name if it is not already held,
// creating it if needed. It reports whether the lock was acquired.
func (l *Locker) TryLock(name string) bool {
	l.mu.Lock()
	nameLock, exists := l.locks[name]
	if !exists {
		nameLock = &lockCtr{}
		l.locks[name] = nameLock
	}
	nameLock.inc()
	l.mu.Unlock()

	succeeded := nameLock.mu.TryLock()
	nameLock.dec()
	return succeeded
}

// Unlock unlocks the mutex with the given name. If nothing else waits on the
// lock it is removed from the registry.
func (l *Locker) Unlock(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	nameLock, exists := l.locks[name]
	if !exists {
		return ErrNoSuchLock
	}

	if nameLock.count() == 0 {
		delete(l.locks, name)
	}
	nameLock.mu.Unlock()
	return nil
}
