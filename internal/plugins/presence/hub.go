package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/keyxmakerx/parley/internal/apperror"
	"github.com/keyxmakerx/parley/internal/plugins/friends"
	"github.com/keyxmakerx/parley/internal/sanitize"
	"github.com/keyxmakerx/parley/internal/validation"
)

// ErrHubClosed is returned by Connect after Shutdown has begun.
var ErrHubClosed = errors.New("presence hub is shut down")

// ErrAlreadyConnected is returned by Connect for a handle that is already
// registered. A handle is connected once and disconnected once.
var ErrAlreadyConnected = errors.New("connection is already registered")

// graphTimeout bounds friend graph lookups made outside a request.
const graphTimeout = 5 * time.Second

// maxMessageLength caps a relayed message body, in characters.
const maxMessageLength = 4000

// FriendGraph is the slice of the friend service the hub needs.
type FriendGraph interface {
	FriendIDs(ctx context.Context, userID string) ([]string, error)
	AreFriends(ctx context.Context, a, b string) (bool, error)
}

// Hub turns registry transitions into events for friends' connections.
//
// Each user id has its own subject lock. A transition for U and the
// enqueue of everything it causes happen under U's subject lock, and every
// handle drains its queue in order, so any peer sees U's online and offline
// events in the order they happened. Unrelated users never share a lock.
type Hub struct {
	registry *Registry
	graph    FriendGraph
	logger   *slog.Logger
	now      func() time.Time

	subjects *subjectLocks

	mu        sync.Mutex
	bySession map[string]map[string]Handle
	closed    bool
	active    sync.WaitGroup
}

// NewHub creates a hub over registry. The subject lock table is sharded the
// same way as the registry.
func NewHub(registry *Registry, graph FriendGraph, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		registry:  registry,
		graph:     graph,
		logger:    logger,
		now:       time.Now,
		subjects:  newSubjectLocks(registry.ShardCount()),
		bySession: make(map[string]map[string]Handle),
	}
}

// Registry exposes the underlying registry for read-only queries.
func (h *Hub) Registry() *Registry {
	return h.registry
}

func (h *Hub) lockSubjects(ids ...string) func() {
	return h.subjects.lock(ids...)
}

// Connect registers handle for userID. On the user's first connection their
// online friends are told. The new handle is then introduced to each friend
// already online.
func (h *Hub) Connect(ctx context.Context, userID string, handle Handle) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	sessions, ok := h.bySession[handle.SessionID()]
	if !ok {
		sessions = make(map[string]Handle)
		h.bySession[handle.SessionID()] = sessions
	}
	if _, dup := sessions[handle.ID()]; dup {
		h.mu.Unlock()
		return ErrAlreadyConnected
	}
	sessions[handle.ID()] = handle
	h.active.Add(1)
	h.mu.Unlock()

	lookupCtx, cancel := context.WithTimeout(ctx, graphTimeout)
	defer cancel()

	unlock := h.lockSubjects(userID)
	transition := h.registry.Open(userID, handle)
	friendIDs := h.friendIDs(lookupCtx, userID)
	if transition == FirstConnection {
		h.fanOut(h.registry.OnlineSubsetOf(friendIDs), onlineEvent(userID))
	}
	unlock()

	h.logger.Debug("connection opened",
		slog.String("user_id", userID),
		slog.String("conn_id", handle.ID()),
		slog.String("transition", transition.String()),
	)

	// Each friend's current state is read and enqueued under that friend's
	// own subject lock, which orders it against the friend's transitions.
	for _, friendID := range friendIDs {
		unlock := h.lockSubjects(friendID)
		if h.registry.IsOnline(friendID) {
			h.deliver(handle, onlineEvent(friendID))
		}
		unlock()
	}
	return nil
}

// Disconnect removes handle. On the user's last connection their online
// friends are told. Disconnecting an unknown handle does nothing.
func (h *Hub) Disconnect(userID string, handle Handle) {
	unlock := h.lockSubjects(userID)
	transition := h.registry.Close(userID, handle)
	if transition == LastConnection {
		ctx, cancel := context.WithTimeout(context.Background(), graphTimeout)
		friendIDs := h.friendIDs(ctx, userID)
		cancel()
		h.fanOut(h.registry.OnlineSubsetOf(friendIDs), offlineEvent(userID))
	}
	unlock()

	if transition == NotRegistered {
		return
	}

	h.mu.Lock()
	if sessions, ok := h.bySession[handle.SessionID()]; ok {
		delete(sessions, handle.ID())
		if len(sessions) == 0 {
			delete(h.bySession, handle.SessionID())
		}
	}
	h.mu.Unlock()
	h.active.Done()

	h.logger.Debug("connection closed",
		slog.String("user_id", userID),
		slog.String("conn_id", handle.ID()),
		slog.String("transition", transition.String()),
	)
}

// FriendAdded introduces two new friends to each other's live connections.
// Both subject locks are held so the events order correctly against either
// user's connects and disconnects.
func (h *Hub) FriendAdded(ctx context.Context, a, b friends.Friend) {
	unlock := h.lockSubjects(a.ID, b.ID)
	defer unlock()

	aHandles := h.registry.Handles(a.ID)
	bHandles := h.registry.Handles(b.ID)

	h.deliverAll(aHandles, friendAddedEvent(b))
	h.deliverAll(bHandles, friendAddedEvent(a))

	if len(aHandles) > 0 && len(bHandles) > 0 {
		h.deliverAll(aHandles, onlineEvent(b.ID))
		h.deliverAll(bHandles, onlineEvent(a.ID))
	}
}

// Relay forwards a direct message from one user to another if they are
// friends. The sender's other connections get a copy; the sending
// connection gets an error event otherwise.
func (h *Hub) Relay(ctx context.Context, fromUserID string, from Handle, to, body string) {
	body = sanitize.Text(body)
	if err := validation.Var(body, fmt.Sprintf("required,max=%d", maxMessageLength), "body"); err != nil {
		h.deliver(from, errorEvent(codeInvalidMessage, apperror.SafeMessage(err)))
		return
	}

	ok, err := h.graph.AreFriends(ctx, fromUserID, to)
	if err != nil {
		h.logger.Error("checking friendship for relay",
			slog.String("user_id", fromUserID),
			slog.Any("error", err),
		)
		h.deliver(from, errorEvent(codeInternal, "message could not be delivered"))
		return
	}
	if !ok {
		h.deliver(from, errorEvent(codeNotFriends, "you can only message your friends"))
		return
	}

	ev := messageEvent(fromUserID, to, body, h.now().UTC())
	h.deliverAll(h.registry.Handles(to), ev)
	h.deliverAll(lo.Filter(h.registry.Handles(fromUserID), func(x Handle, _ int) bool {
		return x.ID() != from.ID()
	}), ev)
}

// SessionRevoked closes every connection opened with sessionID. Each one
// then disconnects through the normal path.
func (h *Hub) SessionRevoked(sessionID string) {
	h.mu.Lock()
	handles := lo.Values(h.bySession[sessionID])
	h.mu.Unlock()

	for _, handle := range handles {
		handle.Close()
	}
	if len(handles) > 0 {
		h.logger.Info("closed connections for revoked session",
			slog.String("session_id", sessionID),
			slog.Int("connections", len(handles)),
		)
	}
}

// Shutdown refuses new connections, closes all open ones, and waits for
// them to leave the registry or for ctx to end.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	var handles []Handle
	for _, sessions := range h.bySession {
		handles = append(handles, lo.Values(sessions)...)
	}
	h.mu.Unlock()

	for _, handle := range handles {
		handle.Close()
	}

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("presence hub drained", slog.Int("connections", len(handles)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnlineSubsetOf lets the hub stand in wherever an online check is needed.
func (h *Hub) OnlineSubsetOf(ids []string) []string {
	return h.registry.OnlineSubsetOf(ids)
}

// friendIDs logs and swallows lookup failures: presence is best effort and
// must never fail the connect or disconnect that triggered it.
func (h *Hub) friendIDs(ctx context.Context, userID string) []string {
	ids, err := h.graph.FriendIDs(ctx, userID)
	if err != nil {
		h.logger.Error("loading friends for presence",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return nil
	}
	return ids
}

func (h *Hub) fanOut(userIDs []string, ev Event) {
	for _, id := range userIDs {
		h.deliverAll(h.registry.Handles(id), ev)
	}
}

func (h *Hub) deliverAll(handles []Handle, ev Event) {
	for _, handle := range handles {
		h.deliver(handle, ev)
	}
}

// deliver enqueues ev on handle. A handle that cannot keep up is closed
// rather than allowed to block the sender.
func (h *Hub) deliver(handle Handle, ev Event) {
	if handle.Send(ev) {
		return
	}
	h.logger.Warn("dropping slow connection",
		slog.String("conn_id", handle.ID()),
		slog.String("event", ev.Type),
	)
	handle.Close()
}
