package ws

import (
	"sync"

	"github.com/kiliankoe/kelime/internal/game"
	"github.com/rs/zerolog"
)

// Conn is one live client connection, whatever the transport.
type Conn interface {
	ID() string
	// Send queues msg without blocking and reports false when the
	// connection is closed or its queue is full.
	Send(msg Message) bool
	Close() error
}

type binding struct {
	code     string
	playerID string
}

// Hub routes room snapshots to the connections of the players in the room.
// It only knows which connection speaks for which player; room state lives in
// the RoomManager.
type Hub struct {
	mu       sync.Mutex
	routes   map[string]Conn    // playerID -> active connection
	bindings map[string]binding // connection id -> player/room
	log      zerolog.Logger
}

var (
	_ game.Publisher = (*Hub)(nil)
	_ game.Liveness  = (*Hub)(nil)
)

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		routes:   make(map[string]Conn),
		bindings: make(map[string]binding),
		log:      log,
	}
}

// Bind makes c the active connection of playerID in room code. An older
// connection of the same player stays open but stops receiving updates.
func (h *Hub) Bind(c Conn, code, playerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.bindings[c.ID()]; ok && old.playerID != playerID && h.routes[old.playerID] == c {
		delete(h.routes, old.playerID)
	}
	h.bindings[c.ID()] = binding{code: code, playerID: playerID}
	h.routes[playerID] = c
}

// Unbind forgets c. It returns the room and player c spoke for, and active
// reports whether c was still that player's route. A connection replaced by a
// reconnect is not active, so closing it must not mark the player offline.
func (h *Hub) Unbind(c Conn) (code, playerID string, active bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.bindings[c.ID()]
	if !ok {
		return "", "", false
	}
	delete(h.bindings, c.ID())
	if h.routes[b.playerID] != c {
		return b.code, b.playerID, false
	}
	delete(h.routes, b.playerID)
	return b.code, b.playerID, true
}

// Publish sends room_update to every connected player of room.
func (h *Hub) Publish(room *game.Room) {
	msg := Message{Type: EventRoomUpdate, RoomCode: room.Code, Room: room}
	h.mu.Lock()
	targets := make([]Conn, 0, len(room.Players))
	for _, p := range room.Players {
		c, ok := h.routes[p.ID]
		if !ok || h.bindings[c.ID()].code != room.Code {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		h.Send(c, msg)
	}
}

// Send delivers msg to c. A connection that cannot keep up is closed; its
// read loop then runs the normal disconnect handling.
func (h *Hub) Send(c Conn, msg Message) {
	if c.Send(msg) {
		return
	}
	h.log.Warn().Str("conn", c.ID()).Str("type", msg.Type).Msg("dropping slow connection")
	go func() {
		_ = c.Close()
	}()
}

// Connected reports whether playerID has a live route bound to room code.
func (h *Hub) Connected(code, playerID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.routes[playerID]
	return ok && h.bindings[c.ID()].code == code
}

// Connections returns how many players currently have a live route.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.routes)
}
