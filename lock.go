package axisdb

import "sync"

// upgradableLock is the store-wide reader/writer lock with an upgrade
// path. Readers proceed concurrently; a reader that discovers it must
// compute (a cache miss) upgrades to the write lock before computing.
//
// Upgrading drops the read lock before taking the write lock, so two
// upgraders can never deadlock waiting for each other's read side. The
// upgrade mutex serializes upgraders, which bounds a cache miss to one
// computation: the second upgrader re-checks the cache after the first one
// has filled it.
type upgradableLock struct {
	rw      sync.RWMutex
	upgrade sync.Mutex
}

// lockSession tracks one acquisition so release matches the mode the
// session ended in.
type lockSession struct {
	l        *upgradableLock
	write    bool
	upgraded bool
}

func (l *upgradableLock) read() *lockSession {
	l.rw.RLock()
	return &lockSession{l: l}
}

func (l *upgradableLock) write() *lockSession {
	l.rw.Lock()
	return &lockSession{l: l, write: true}
}

// upgradeToWrite trades the read lock for the write lock. Other writers
// may run in the gap, so the caller must re-validate anything it read
// before upgrading.
func (s *lockSession) upgradeToWrite() {
	if s.write {
		return
	}
	s.l.rw.RUnlock()
	s.l.upgrade.Lock()
	s.l.rw.Lock()
	s.write = true
	s.upgraded = true
}

func (s *lockSession) release() {
	if s.write {
		s.l.rw.Unlock()
		if s.upgraded {
			s.l.upgrade.Unlock()
		}
		return
	}
	s.l.rw.RUnlock()
}
