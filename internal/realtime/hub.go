// Package realtime maintains live connections, their room memberships, and
// delivers events to exactly the connections currently subscribed.
package realtime

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/models"
)

// Canonical room-naming scheme.
func UserRoom(userID string) string           { return "user:" + userID }
func RoleRoom(role models.UserRole) string    { return "role:" + string(role) }
func DepartmentRoom(department string) string { return "dept:" + department }
func IssueRoom(issueID string) string         { return "issue:" + issueID }

// InboundEvent pairs a decoded client event with the connection it arrived
// on.
type InboundEvent struct {
	Client *Client
	Event  ClientEvent
}

// Hub is the room-membership registry shared by all connection goroutines.
// All mutation goes through its synchronized accessors; it never blocks on
// I/O while holding the lock.
type Hub struct {
	logger zerolog.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}

	inbound chan InboundEvent
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:  logger.With().Str("component", "realtime_hub").Logger(),
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		inbound: make(chan InboundEvent, 256),
	}
}

// Inbound exposes the stream of decoded client events for the Router.
func (h *Hub) Inbound() <-chan InboundEvent {
	return h.inbound
}

func (h *Hub) publish(evt InboundEvent) {
	h.inbound <- evt
}

// Register admits an authenticated connection and joins it to its
// identity-room, role-room, and department-room (if any).
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	h.joinLocked(c, UserRoom(c.identity.UserID))
	h.joinLocked(c, RoleRoom(models.HighestRole(c.identity.Roles)))
	if c.identity.Department != "" {
		h.joinLocked(c, DepartmentRoom(c.identity.Department))
	}

	h.logger.Info().
		Str("connection_id", c.id).
		Str("user_id", c.identity.UserID).
		Msg("connection registered")
}

// Unregister removes the connection from every room and closes its send
// queue. Membership in all rooms is implicitly revoked; no replay, no
// retained state. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	close(c.send)

	stillConnected := false
	for other := range h.clients {
		if other.identity.UserID == c.identity.UserID {
			stillConnected = true
			break
		}
	}
	h.mu.Unlock()

	h.logger.Info().
		Str("connection_id", c.id).
		Str("user_id", c.identity.UserID).
		Msg("connection closed")

	// Announce the user going offline only when their last connection drops.
	if !stillConnected && c.identity.Department != "" {
		h.EmitToDepartment(c.identity.Department, "user_offline", map[string]interface{}{
			"userId": c.identity.UserID,
		})
	}
}

// JoinIssueRoom subscribes the connection to an issue thread. Idempotent.
func (h *Hub) JoinIssueRoom(c *Client, issueID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.joinLocked(c, IssueRoom(issueID))
}

// LeaveIssueRoom unsubscribes the connection from an issue thread. Idempotent.
func (h *Hub) LeaveIssueRoom(c *Client, issueID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := IssueRoom(issueID)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) joinLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

// EmitToRoom delivers the payload to every connection currently in the room,
// in emission order. Connections that join afterwards never receive it.
func (h *Hub) EmitToRoom(room, event string, payload interface{}) {
	frame := OutboundEvent{Event: event, Data: payload}

	h.mu.Lock()
	var stalled []*Client
	for c := range h.rooms[room] {
		select {
		case c.send <- frame:
		default:
			// The client's queue is full; it gets dropped instead of
			// stalling delivery to the rest of the room.
			stalled = append(stalled, c)
		}
	}
	h.mu.Unlock()

	for _, c := range stalled {
		h.logger.Warn().
			Str("connection_id", c.id).
			Str("room", room).
			Msg("dropping slow connection")
		h.Unregister(c)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// EmitToClient delivers a frame to one specific connection. Membership is
// checked under the lock, so emitting to a connection that has already been
// unregistered (and whose send queue is closed) is a safe no-op.
func (h *Hub) EmitToClient(c *Client, event string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- OutboundEvent{Event: event, Data: payload}:
	default:
	}
}

func (h *Hub) EmitToUser(userID, event string, payload interface{}) {
	h.EmitToRoom(UserRoom(userID), event, payload)
}

func (h *Hub) EmitToRole(role models.UserRole, event string, payload interface{}) {
	h.EmitToRoom(RoleRoom(role), event, payload)
}

func (h *Hub) EmitToDepartment(department, event string, payload interface{}) {
	h.EmitToRoom(DepartmentRoom(department), event, payload)
}

func (h *Hub) EmitToIssue(issueID, event string, payload interface{}) {
	h.EmitToRoom(IssueRoom(issueID), event, payload)
}

// EmitToAll delivers to every live connection.
func (h *Hub) EmitToAll(event string, payload interface{}) {
	frame := OutboundEvent{Event: event, Data: payload}

	h.mu.Lock()
	var stalled []*Client
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			stalled = append(stalled, c)
		}
	}
	h.mu.Unlock()

	for _, c := range stalled {
		h.Unregister(c)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// ConnectedUsers enumerates the distinct user IDs with at least one live
// connection.
func (h *Hub) ConnectedUsers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	seen := make(map[string]struct{}, len(h.clients))
	var users []string
	for c := range h.clients {
		if _, ok := seen[c.identity.UserID]; ok {
			continue
		}
		seen[c.identity.UserID] = struct{}{}
		users = append(users, c.identity.UserID)
	}
	return users
}

// RoomSize reports the current membership of a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

func (h *Hub) String() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fmt.Sprintf("hub(%d connections, %d rooms)", len(h.clients), len(h.rooms))
}
