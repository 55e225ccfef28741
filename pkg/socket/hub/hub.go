package hub

import (
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/samber/lo"
)

var (
	ErrConnClosed     = errors.New("connection closed")
	ErrSendBufferFull = errors.New("connection send buffer full")
)

// Room name helpers. A connection can sit in several rooms at once: its own
// per-identity room plus one room per chat session it participates in.
func SessionRoom(sessionID string) string { return "session:" + sessionID }
func UserRoom(userID string) string      { return "user:" + userID }
func AgentRoom(agentID string) string    { return "agent:" + agentID }

const (
	RoomUsers  = "users"
	RoomAgents = "agents"
)

// Hub is the in-memory connection registry. Rooms are plain fan-out groups,
// membership is driven entirely by the server side.
type Hub struct {
	conns cmap.ConcurrentMap[string, *Conn]
	rooms cmap.ConcurrentMap[string, cmap.ConcurrentMap[string, *Conn]]
}

func NewHub() *Hub {
	return &Hub{
		conns: cmap.New[*Conn](),
		rooms: cmap.New[cmap.ConcurrentMap[string, *Conn]](),
	}
}

// Register wraps a raw websocket into a managed connection and starts its
// write pump.
func (h *Hub) Register(id string, ws *websocket.Conn) *Conn {
	conn := newConn(id, ws)
	h.conns.Set(id, conn)
	go conn.WritePump()
	return conn
}

// Unregister removes the connection from every room and the registry, runs
// its registered teardowns, then closes it.
func (h *Hub) Unregister(conn *Conn) {
	h.LeaveAllRooms(conn)
	h.conns.Remove(conn.id)
	conn.runTeardowns()
	conn.Close()
}

func (h *Hub) GetConn(id string) (*Conn, bool) {
	return h.conns.Get(id)
}

func (h *Hub) ConnCount() int {
	return h.conns.Count()
}

func (h *Hub) JoinRoom(room string, conn *Conn) {
	members, ok := h.rooms.Get(room)
	if !ok {
		members = cmap.New[*Conn]()
		if !h.rooms.SetIfAbsent(room, members) {
			members, _ = h.rooms.Get(room)
		}
	}
	members.Set(conn.id, conn)
	conn.rooms.Store(room, struct{}{})
}

func (h *Hub) LeaveRoom(room string, conn *Conn) {
	if members, ok := h.rooms.Get(room); ok {
		members.Remove(conn.id)
		if members.IsEmpty() {
			h.rooms.RemoveCb(room, func(key string, v cmap.ConcurrentMap[string, *Conn], exists bool) bool {
				return exists && v.IsEmpty()
			})
		}
	}
	conn.rooms.Delete(room)
}

// RoomsOf snapshots the room names the connection currently sits in.
func (h *Hub) RoomsOf(conn *Conn) []string {
	var names []string
	conn.rooms.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	return names
}

func (h *Hub) LeaveAllRooms(conn *Conn) {
	conn.rooms.Range(func(key, _ any) bool {
		h.LeaveRoom(key.(string), conn)
		return true
	})
}

// MembersOf snapshots the connections currently in a room.
func (h *Hub) MembersOf(room string) []*Conn {
	members, ok := h.rooms.Get(room)
	if !ok {
		return nil
	}
	return lo.Values(members.Items())
}

func (h *Hub) RoomSize(room string) int {
	members, ok := h.rooms.Get(room)
	if !ok {
		return 0
	}
	return members.Count()
}

// Broadcast fans an event out to every connection in the room. Returns how
// many connections the frame was queued to.
func (h *Hub) Broadcast(room string, event string, data any) int {
	members := h.MembersOf(room)
	if len(members) == 0 {
		return 0
	}

	sent := 0
	for _, conn := range members {
		if err := conn.SendEvent(event, data); err == nil {
			sent++
		}
	}
	return sent
}

// BroadcastExcept is Broadcast minus one connection, for echoes the sender
// should not receive.
func (h *Hub) BroadcastExcept(room string, exceptConnID string, event string, data any) int {
	sent := 0
	for _, conn := range h.MembersOf(room) {
		if conn.id == exceptConnID {
			continue
		}
		if err := conn.SendEvent(event, data); err == nil {
			sent++
		}
	}
	return sent
}

// SendToUser delivers an event to every live connection of one user identity.
// Returns true when at least one connection took the frame, which is what
// decides between live delivery and the pending-notification outbox.
func (h *Hub) SendToUser(userID string, event string, data any) bool {
	return h.Broadcast(UserRoom(userID), event, data) > 0
}

func (h *Hub) SendToAgent(agentID string, event string, data any) bool {
	return h.Broadcast(AgentRoom(agentID), event, data) > 0
}

// AgentOnline reports whether the agent has at least one live connection.
func (h *Hub) AgentOnline(agentID string) bool {
	return h.RoomSize(AgentRoom(agentID)) > 0
}

func (h *Hub) UserOnline(userID string) bool {
	return h.RoomSize(UserRoom(userID)) > 0
}

// OnlineAgentConns snapshots every live agent connection, for the waiting
// queue reconciler.
func (h *Hub) OnlineAgentConns() []*Conn {
	return h.MembersOf(RoomAgents)
}

func (h *Hub) String() string {
	return fmt.Sprintf("hub{conns:%d rooms:%d}", h.conns.Count(), h.rooms.Count())
}
