package hub

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatdesk/chatdesk/pkg/types"
	"github.com/chatdesk/chatdesk/pkg/types/protocol"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// Identity is bound to a connection after a successful login event. A
// connection without an identity can only ping.
type Identity struct {
	UserID   string
	Username string
	Role     types.ConnectionRole
}

// Conn wraps one websocket connection. All writes go through the send channel
// so only the write pump touches the underlying socket.
type Conn struct {
	id string
	ws *websocket.Conn

	identity atomic.Pointer[Identity]

	send   chan []byte
	closed chan struct{}

	// teardown guards OnDisconnect side effects so a read error racing a
	// server-initiated close runs them exactly once.
	teardown  atomic.Bool
	closeOnce sync.Once

	teardownMu  sync.Mutex
	teardownFns []func()

	// pushedWaiting remembers which waiting sessions were already announced
	// to this agent connection, so the reconciler never repeats itself.
	pushedMu      sync.Mutex
	pushedWaiting map[string]struct{}

	rooms sync.Map // room name -> struct{}
}

func newConn(id string, ws *websocket.Conn) *Conn {
	return &Conn{
		id:            id,
		ws:            ws,
		send:          make(chan []byte, sendBufferSize),
		closed:        make(chan struct{}),
		pushedWaiting: make(map[string]struct{}),
	}
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) SetIdentity(id Identity) {
	c.identity.Store(&id)
}

func (c *Conn) Identity() (Identity, bool) {
	v := c.identity.Load()
	if v == nil {
		return Identity{}, false
	}
	return *v, true
}

// SendEvent marshals and queues one frame. A full send buffer drops the frame
// and reports the connection as too slow.
func (c *Conn) SendEvent(event string, data any) error {
	raw, err := protocol.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	return c.SendRaw(raw)
}

func (c *Conn) SendRaw(raw []byte) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- raw:
		return nil
	default:
		slog.Warn("connection send buffer full, dropping frame", slog.String("conn_id", c.id))
		return ErrSendBufferFull
	}
}

// BeginTeardown reports whether the caller won the right to run disconnect
// side effects.
func (c *Conn) BeginTeardown() bool {
	return c.teardown.CompareAndSwap(false, true)
}

// AddTeardown registers a function to run when the connection goes away.
func (c *Conn) AddTeardown(fn func()) {
	c.teardownMu.Lock()
	c.teardownFns = append(c.teardownFns, fn)
	c.teardownMu.Unlock()
}

func (c *Conn) runTeardowns() {
	c.teardownMu.Lock()
	fns := c.teardownFns
	c.teardownFns = nil
	c.teardownMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Close shuts the write pump and the underlying socket. Safe to call from any
// goroutine, any number of times.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

// MarkWaitingPushed records that sessionID was announced to this connection.
// Returns false if it was already announced.
func (c *Conn) MarkWaitingPushed(sessionID string) bool {
	c.pushedMu.Lock()
	defer c.pushedMu.Unlock()
	if _, ok := c.pushedWaiting[sessionID]; ok {
		return false
	}
	c.pushedWaiting[sessionID] = struct{}{}
	return true
}

// ClearWaitingPushed forgets a session so a requeue can be announced again.
func (c *Conn) ClearWaitingPushed(sessionID string) {
	c.pushedMu.Lock()
	delete(c.pushedWaiting, sessionID)
	c.pushedMu.Unlock()
}

// WritePump drains the send channel onto the socket. Runs in its own
// goroutine per connection, exits when the connection closes.
func (c *Conn) WritePump() {
	for {
		select {
		case raw := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				slog.Debug("websocket write failed", slog.String("conn_id", c.id), slog.String("error", err.Error()))
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}
