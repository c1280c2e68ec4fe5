package axisdb

import (
	"sync"
	"testing"
)

func TestUpgradableLockReadersConcurrent(t *testing.T) {
	var l upgradableLock
	s1 := l.read()
	s2 := l.read()
	s1.release()
	s2.release()

	w := l.write()
	w.release()
}

func TestUpgradableLockUpgradeSerializes(t *testing.T) {
	var l upgradableLock
	const n = 8

	var mu sync.Mutex
	inCritical := 0
	maxInCritical := 0

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := l.read()
			s.upgradeToWrite()
			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			mu.Lock()
			inCritical--
			mu.Unlock()
			s.release()
		}()
	}
	wg.Wait()

	if maxInCritical != 1 {
		t.Fatalf("write sections overlapped: max concurrency %d", maxInCritical)
	}
}

func TestUpgradableLockUpgradeIdempotent(t *testing.T) {
	var l upgradableLock
	s := l.write()
	s.upgradeToWrite() // already a writer, must not deadlock
	s.release()

	// The lock is free again.
	w := l.write()
	w.release()
}
