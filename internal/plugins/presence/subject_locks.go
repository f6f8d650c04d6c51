package presence

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/samber/lo"
)

// subjectLock is one user's lock plus the number of goroutines holding or
// waiting on it.
type subjectLock struct {
	mu   sync.Mutex
	refs int
}

type lockShard struct {
	mu    sync.Mutex
	locks map[string]*subjectLock
}

// subjectLocks hands out a mutex per user id. Entries exist only while
// someone holds or waits on them, so the table stays as small as the set
// of users currently transitioning.
type subjectLocks struct {
	shards []*lockShard
}

func newSubjectLocks(n int) *subjectLocks {
	if n < 1 {
		n = 1
	}
	shards := make([]*lockShard, n)
	for i := range shards {
		shards[i] = &lockShard{locks: make(map[string]*subjectLock)}
	}
	return &subjectLocks{shards: shards}
}

func (s *subjectLocks) shardFor(id string) *lockShard {
	return s.shards[xxhash.Sum64String(id)%uint64(len(s.shards))]
}

// lock acquires the locks for ids in ascending id order and returns the
// matching unlock. Taking several locks always in the same order keeps
// two callers from deadlocking on each other.
func (s *subjectLocks) lock(ids ...string) func() {
	ids = lo.Uniq(ids)
	sort.Strings(ids)

	held := make([]*subjectLock, len(ids))
	for i, id := range ids {
		held[i] = s.acquire(id)
	}
	return func() {
		for i := len(ids) - 1; i >= 0; i-- {
			s.release(ids[i], held[i])
		}
	}
}

func (s *subjectLocks) acquire(id string) *subjectLock {
	sh := s.shardFor(id)
	sh.mu.Lock()
	l, ok := sh.locks[id]
	if !ok {
		l = &subjectLock{}
		sh.locks[id] = l
	}
	l.refs++
	sh.mu.Unlock()

	l.mu.Lock()
	return l
}

func (s *subjectLocks) release(id string, l *subjectLock) {
	l.mu.Unlock()

	sh := s.shardFor(id)
	sh.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(sh.locks, id)
	}
	sh.mu.Unlock()
}

// size reports how many users currently have a lock entry.
func (s *subjectLocks) size() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.locks)
		sh.mu.Unlock()
	}
	return n
}
