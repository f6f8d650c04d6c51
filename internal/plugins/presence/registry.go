// Package presence tracks which users hold live websocket connections and
// pushes presence, friendship, and message events to their friends.
//
// Registry is the pure bookkeeping half: it maps users to their open
// connection handles and reports the online/offline transition each
// open or close causes. Hub is the broadcasting half.
package presence

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Handle is one live connection as the registry and hub see it.
type Handle interface {
	ID() string
	SessionID() string
	// Send enqueues ev without blocking. It returns false only when the
	// outbound queue is full; events for a closed connection are dropped.
	Send(ev Event) bool
	// Close tears the connection down. Safe to call more than once and
	// from any goroutine.
	Close()
}

// Transition is the effect an Open or Close had on a user's presence.
type Transition int

const (
	// NotRegistered means Close was given a handle the registry does not
	// hold. Nothing changed and nothing should be broadcast.
	NotRegistered Transition = iota
	FirstConnection
	AdditionalConnection
	StillConnected
	LastConnection
)

func (t Transition) String() string {
	switch t {
	case FirstConnection:
		return "first_connection"
	case AdditionalConnection:
		return "additional_connection"
	case StillConnected:
		return "still_connected"
	case LastConnection:
		return "last_connection"
	default:
		return "not_registered"
	}
}

type shard struct {
	mu    sync.RWMutex
	users map[string]map[string]Handle
}

// Registry is a sharded user -> handles map. A user id always hashes to the
// same shard, so every transition for one user is serialized by that
// shard's mutex while unrelated users proceed in parallel.
type Registry struct {
	shards []*shard
}

// NewRegistry creates a registry with n shards (at least one).
func NewRegistry(n int) *Registry {
	if n < 1 {
		n = 1
	}
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{users: make(map[string]map[string]Handle)}
	}
	return &Registry{shards: shards}
}

// ShardCount returns the number of shards.
func (r *Registry) ShardCount() int {
	return len(r.shards)
}

// shardIndex maps a user id onto a shard.
func (r *Registry) shardIndex(userID string) int {
	return int(xxhash.Sum64String(userID) % uint64(len(r.shards)))
}

func (r *Registry) shardFor(userID string) *shard {
	return r.shards[r.shardIndex(userID)]
}

// Open registers h under userID. Re-opening a handle that is already
// registered reports AdditionalConnection and changes nothing.
func (r *Registry) Open(userID string, h Handle) Transition {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	handles, ok := s.users[userID]
	if !ok {
		s.users[userID] = map[string]Handle{h.ID(): h}
		return FirstConnection
	}
	handles[h.ID()] = h
	return AdditionalConnection
}

// Close removes h. Closing a handle that is not registered is a no-op that
// reports NotRegistered; disconnect races make that normal.
func (r *Registry) Close(userID string, h Handle) Transition {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	handles, ok := s.users[userID]
	if !ok {
		return NotRegistered
	}
	if _, ok := handles[h.ID()]; !ok {
		return NotRegistered
	}

	delete(handles, h.ID())
	if len(handles) == 0 {
		delete(s.users, userID)
		return LastConnection
	}
	return StillConnected
}

// IsOnline reports whether userID holds at least one handle.
func (r *Registry) IsOnline(userID string) bool {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.users[userID]
	return ok
}

// OnlineSubsetOf returns the ids in ids that are online, in input order
// and without duplicates. Cost is proportional to len(ids).
func (r *Registry) OnlineSubsetOf(ids []string) []string {
	online := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if r.IsOnline(id) {
			online = append(online, id)
		}
	}
	return online
}

// Handles returns a snapshot of userID's handles.
func (r *Registry) Handles(userID string) []Handle {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	handles := s.users[userID]
	out := make([]Handle, 0, len(handles))
	for _, h := range handles {
		out = append(out, h)
	}
	return out
}

// Stats counts online users and open handles across all shards.
func (r *Registry) Stats() (users, connections int) {
	for _, s := range r.shards {
		s.mu.RLock()
		users += len(s.users)
		for _, handles := range s.users {
			connections += len(handles)
		}
		s.mu.RUnlock()
	}
	return users, connections
}
