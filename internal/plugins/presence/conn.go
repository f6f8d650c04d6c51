package presence

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// maxFrameSize caps an inbound websocket frame.
const maxFrameSize = 16 * 1024

// ConnConfig holds the websocket timing knobs.
type ConnConfig struct {
	// SendBuffer is the outbound queue length.
	SendBuffer int
	// PongWait is how long the peer may stay silent, pongs included.
	PongWait time.Duration
	// WriteWait bounds a single write.
	WriteWait time.Duration
}

// pingPeriod must stay below PongWait so a healthy peer always has a ping
// to answer before its read deadline.
func (c ConnConfig) pingPeriod() time.Duration {
	return c.PongWait * 9 / 10
}

// Conn is a live websocket connection. One goroutine reads, one writes; the
// hub only ever touches it through Send and Close.
type Conn struct {
	id        string
	userID    string
	sessionID string
	expiresAt time.Time

	ws     *websocket.Conn
	cfg    ConnConfig
	hub    *Hub
	logger *slog.Logger

	send      chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewConn wraps an upgraded websocket for userID's session.
func NewConn(ws *websocket.Conn, hub *Hub, userID, sessionID string, expiresAt time.Time, cfg ConnConfig, logger *slog.Logger) *Conn {
	if cfg.SendBuffer < 1 {
		cfg.SendBuffer = 1
	}
	id := uuid.NewString()
	return &Conn{
		id:        id,
		userID:    userID,
		sessionID: sessionID,
		expiresAt: expiresAt,
		ws:        ws,
		cfg:       cfg,
		hub:       hub,
		logger:    logger.With(slog.String("conn_id", id), slog.String("user_id", userID)),
		send:      make(chan Event, cfg.SendBuffer),
		done:      make(chan struct{}),
	}
}

func (c *Conn) ID() string        { return c.id }
func (c *Conn) SessionID() string { return c.sessionID }

// Send enqueues ev without blocking.
func (c *Conn) Send(ev Event) bool {
	select {
	case <-c.done:
		return true
	default:
	}

	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Close stops both pumps and closes the socket. The read pump then removes
// the connection from the hub.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// Run registers the connection and pumps frames until either side hangs
// up. It blocks for the life of the connection.
func (c *Conn) Run(ctx context.Context) error {
	// The writer starts first so introductions queued by Connect drain
	// straight away instead of filling the buffer.
	go c.writePump()

	if err := c.hub.Connect(ctx, c.userID, c); err != nil {
		c.Close()
		return err
	}
	c.readPump()
	return nil
}

// readPump dispatches client frames. Any read error, including a missed
// pong deadline, ends the connection.
func (c *Conn) readPump() {
	defer func() {
		c.Close()
		c.hub.Disconnect(c.userID, c)
	}()

	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !errors.Is(err, websocket.ErrCloseSent) {
				c.logger.Debug("websocket read ended", slog.Any("error", err))
			}
			return
		}
		c.handleFrame(data)
	}
}

func (c *Conn) handleFrame(data []byte) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.hub.deliver(c, errorEvent(codeBadFrame, "frame is not valid JSON"))
		return
	}

	switch frame.Type {
	case frameMessageSend:
		ctx, cancel := context.WithTimeout(context.Background(), graphTimeout)
		c.hub.Relay(ctx, c.userID, c, frame.To, frame.Body)
		cancel()
	default:
		c.hub.deliver(c, errorEvent(codeUnknownType, "unknown frame type"))
	}
}

// writePump drains the outbound queue in order, pings on schedule, and
// closes the connection when its session expires.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.cfg.pingPeriod())
	expiry := time.NewTimer(time.Until(c.expiresAt))
	defer func() {
		ticker.Stop()
		expiry.Stop()
		c.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, ev.Data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-expiry.C:
			c.logger.Info("closing connection for expired session")
			msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session expired")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteWait))
			return

		case <-c.done:
			return
		}
	}
}
