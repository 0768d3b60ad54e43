package locking

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestKeyedMutex_SerializesSameActor(t *testing.T) {
	k := NewKeyedMutex()
	var inSection, maxInSection int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := k.Acquire(context.Background(), "a1")
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			inSection++
			if inSection > maxInSection {
				maxInSection = inSection
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inSection--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxInSection != 1 {
		t.Fatalf("critical section held by %d goroutines at once", maxInSection)
	}
	k.mu.Lock()
	remaining := len(k.locks)
	k.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected lock map to be empty after release, %d entries remain", remaining)
	}
}

func TestKeyedMutex_DifferentActorsIndependent(t *testing.T) {
	k := NewKeyedMutex()
	releaseA, err := k.Acquire(context.Background(), "a1")
	if err != nil {
		t.Fatalf("Acquire a1: %v", err)
	}
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	releaseB, err := k.Acquire(ctx, "a2")
	if err != nil {
		t.Fatalf("a2 should not wait on a1's lock: %v", err)
	}
	releaseB()
}

func TestKeyedMutex_ContextCancelled(t *testing.T) {
	k := NewKeyedMutex()
	release, err := k.Acquire(context.Background(), "a1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := k.Acquire(ctx, "a1"); err == nil {
		t.Fatalf("expected context error while the lock is held")
	}

	release()

	// The lock must still be acquirable afterwards.
	release2, err := k.Acquire(context.Background(), "a1")
	if err != nil {
		t.Fatalf("Acquire after cancelled waiter: %v", err)
	}
	release2()
}
