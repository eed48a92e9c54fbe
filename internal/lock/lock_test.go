package lock

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

func TestMutexMap_LockUnlock(t *testing.T) {
	m := NewMutexMap()

	m.Lock("amm-1")
	m.Unlock("amm-1")
	m.Lock("amm-1")
	m.Unlock("amm-1")
}

func TestMutexMap_KeysAreIndependent(t *testing.T) {
	m := NewMutexMap()

	done := make(chan struct{})
	m.Lock("amm-1")
	go func() {
		m.Lock("amm-2")
		m.Unlock("amm-2")
		close(done)
	}()

	// amm-2 must proceed while amm-1 is held.
	<-done
	m.Unlock("amm-1")
}

func TestMutexMap_SerializesOneKey(t *testing.T) {
	m := NewMutexMap()
	var counter int64

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("shared")
			atomic.AddInt64(&counter, 1)
			m.Unlock("shared")
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Errorf("counter = %d, want 100", counter)
	}
}

func TestFileLock_TryLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "argusd.lock")

	fl := NewFileLock(path)
	if err := fl.TryLock(); err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	defer fl.Unlock()
}

func TestFileLock_SecondHolderRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "argusd.lock")

	fl1 := NewFileLock(path)
	if err := fl1.TryLock(); err != nil {
		t.Fatalf("first TryLock: %v", err)
	}
	defer fl1.Unlock()

	fl2 := NewFileLock(path)
	if err := fl2.TryLock(); err == nil {
		fl2.Unlock()
		t.Fatal("second TryLock must fail while the lock is held")
	}
}

func TestFileLock_UnlockAllowsRelock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "argusd.lock")

	fl1 := NewFileLock(path)
	if err := fl1.TryLock(); err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if err := fl1.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	fl2 := NewFileLock(path)
	if err := fl2.TryLock(); err != nil {
		t.Fatalf("relock after unlock: %v", err)
	}
	fl2.Unlock()
}

func TestFileLock_DoubleUnlockSafe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "argusd.lock")

	fl := NewFileLock(path)
	if err := fl.TryLock(); err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if err := fl.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := fl.Unlock(); err != nil {
		t.Fatalf("second Unlock must be a no-op, got: %v", err)
	}
}
