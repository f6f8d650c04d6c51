package presence

import (
	"encoding/json"
	"time"

	"github.com/keyxmakerx/parley/internal/plugins/friends"
)

// Server-to-client event types.
const (
	EventPresenceOnline  = "presence.online"
	EventPresenceOffline = "presence.offline"
	EventFriendAdded     = "friend.added"
	EventMessageNew      = "message.new"
	EventError           = "error"
)

// Client-to-server frame types.
const (
	frameMessageSend = "message.send"
)

// Error codes carried by EventError.
const (
	codeNotFriends     = "not_friends"
	codeInvalidMessage = "invalid_message"
	codeUnknownType    = "unknown_type"
	codeBadFrame       = "bad_frame"
	codeInternal       = "internal_error"
)

// Event is one outbound frame. The body is encoded once and shared by every
// connection it fans out to.
type Event struct {
	Type string
	Data []byte
}

type presenceFrame struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type friendAddedFrame struct {
	Type string         `json:"type"`
	User friends.Friend `json:"user"`
}

type messageFrame struct {
	Type   string    `json:"type"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// clientFrame is what clients send over the socket.
type clientFrame struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Body string `json:"body"`
}

func encode(typ string, v any) Event {
	// Every frame type above is a plain struct; Marshal cannot fail on them.
	data, _ := json.Marshal(v)
	return Event{Type: typ, Data: data}
}

func onlineEvent(userID string) Event {
	return encode(EventPresenceOnline, presenceFrame{Type: EventPresenceOnline, UserID: userID})
}

func offlineEvent(userID string) Event {
	return encode(EventPresenceOffline, presenceFrame{Type: EventPresenceOffline, UserID: userID})
}

func friendAddedEvent(f friends.Friend) Event {
	return encode(EventFriendAdded, friendAddedFrame{Type: EventFriendAdded, User: f})
}

func messageEvent(from, to, body string, at time.Time) Event {
	return encode(EventMessageNew, messageFrame{Type: EventMessageNew, From: from, To: to, Body: body, SentAt: at})
}

func errorEvent(code, message string) Event {
	return encode(EventError, errorFrame{Type: EventError, Code: code, Message: message})
}
