package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRegistry_OpenAndCloseTransitions(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(8)
	first := newFakeHandle("alice")
	second := newFakeHandle("alice")

	// Given alice is offline
	req.False(registry.IsOnline("alice"))

	// When she opens two connections
	req.Equal(FirstConnection, registry.Open("alice", first))
	req.Equal(AdditionalConnection, registry.Open("alice", second))
	req.True(registry.IsOnline("alice"))

	// Then closing one keeps her online and closing the other does not
	req.Equal(StillConnected, registry.Close("alice", first))
	req.True(registry.IsOnline("alice"))
	req.Equal(LastConnection, registry.Close("alice", second))
	req.False(registry.IsOnline("alice"))
}

func TestRegistry_CloseUnknownHandleIsNoOp(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(4)
	h := newFakeHandle("alice")

	req.Equal(NotRegistered, registry.Close("alice", h))

	registry.Open("alice", h)
	req.Equal(LastConnection, registry.Close("alice", h))
	req.Equal(NotRegistered, registry.Close("alice", h))
	req.Equal(NotRegistered, registry.Close("bob", newFakeHandle("bob")))
	req.False(registry.IsOnline("alice"))
}

func TestRegistry_OnlineSubsetOf(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(4)
	registry.Open("bob", newFakeHandle("bob"))
	registry.Open("dave", newFakeHandle("dave"))

	req.Equal([]string{"dave", "bob"}, registry.OnlineSubsetOf([]string{"carol", "dave", "bob", "dave"}))
	req.Empty(registry.OnlineSubsetOf(nil))
	req.Empty(registry.OnlineSubsetOf([]string{"nobody"}))
}

func TestRegistry_ConcurrentOpensReportOneFirstConnection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(16)

	const workers = 50
	transitions := make(chan Transition, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			transitions <- registry.Open("alice", newFakeHandle("alice"))
		}()
	}
	wg.Wait()
	close(transitions)

	firsts := 0
	for tr := range transitions {
		if tr == FirstConnection {
			firsts++
		}
	}
	req.Equal(1, firsts)

	users, conns := registry.Stats()
	req.Equal(1, users)
	req.Equal(workers, conns)
}

func TestRegistry_ConcurrentOpenCloseLeavesConsistentState(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(16)

	const users = 20
	var wg sync.WaitGroup
	lasts := make([]int, users)
	for u := 0; u < users; u++ {
		userID := fmt.Sprintf("user-%d", u)
		handles := make([]*fakeHandle, 10)
		for i := range handles {
			handles[i] = newFakeHandle(userID)
			registry.Open(userID, handles[i])
		}

		var mu sync.Mutex
		for _, h := range handles {
			wg.Add(1)
			go func(u int, h *fakeHandle) {
				defer wg.Done()
				// Close twice to exercise the disconnect race.
				for i := 0; i < 2; i++ {
					if registry.Close(userID, h) == LastConnection {
						mu.Lock()
						lasts[u]++
						mu.Unlock()
					}
				}
			}(u, h)
		}
	}
	wg.Wait()

	for u := 0; u < users; u++ {
		req.Equal(1, lasts[u], "user-%d", u)
		req.False(registry.IsOnline(fmt.Sprintf("user-%d", u)))
	}
	n, conns := registry.Stats()
	req.Zero(n)
	req.Zero(conns)
}

func TestRegistry_ShardIsStable(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(32)
	id := uuid.NewString()

	req.Equal(registry.shardIndex(id), registry.shardIndex(id))
	req.Less(registry.shardIndex(id), registry.ShardCount())
	req.Equal(1, NewRegistry(0).ShardCount())
}
