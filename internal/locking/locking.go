// Package locking provides the per-actor critical section the booking
// committer holds across its conflict re-check, assignment, and persist
// steps. Commits for different actors never contend.
package locking

import (
	"context"
	"errors"
	"sync"
)

// ErrLockHeld means the per-actor lock could not be acquired in time. The
// commit is treated as conflict-rejected, never silently retried.
var ErrLockHeld = errors.New("actor lock is held by another commit")

// Locker serializes commit attempts per actor ID.
type Locker interface {
	Acquire(ctx context.Context, actorID string) (release func(), err error)
}

// KeyedMutex is the in-process Locker used by single-instance deployments.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: map[string]*entry{}}
}

// Acquire blocks until the actor's mutex is free or the context is done.
// Entries are reference-counted so the map does not grow with every actor
// ever seen.
func (k *KeyedMutex) Acquire(ctx context.Context, actorID string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[actorID]
	if !ok {
		e = &entry{}
		k.locks[actorID] = e
	}
	e.refs++
	k.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		e.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return func() {
			e.mu.Unlock()
			k.release(actorID, e)
		}, nil
	case <-ctx.Done():
		// The goroutine will still obtain the mutex eventually; hand it
		// straight back and drop our reference.
		go func() {
			<-acquired
			e.mu.Unlock()
			k.release(actorID, e)
		}()
		return nil, ctx.Err()
	}
}

func (k *KeyedMutex) release(actorID string, e *entry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, actorID)
	}
	k.mu.Unlock()
}
