package realtime

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/models"
)

const (
	// writeWait is the deadline for a single outbound write.
	writeWait = 10 * time.Second

	// pongWait bounds the liveness probe: a connection that does not answer
	// a ping within this window is treated as disconnected.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096

	// sendBufferSize is the per-connection outbound queue. A client that
	// cannot drain it is dropped rather than allowed to stall a room.
	sendBufferSize = 64
)

// OutboundEvent is one server→client frame.
type OutboundEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Client is one live transport session: a bound identity, the set of rooms
// currently joined, and a connection timestamp. It is destroyed on
// disconnect; nothing outside the hub holds a reference afterwards.
type Client struct {
	id          string
	identity    Identity
	connectedAt time.Time

	hub    *Hub
	conn   *websocket.Conn
	send   chan OutboundEvent
	logger zerolog.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, identity Identity, logger zerolog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:          id,
		identity:    identity,
		connectedAt: time.Now().UTC(),
		hub:         hub,
		conn:        conn,
		send:        make(chan OutboundEvent, sendBufferSize),
		logger:      logger.With().Str("connection_id", id).Str("user_id", identity.UserID).Logger(),
	}
}

func (c *Client) UserID() string { return c.identity.UserID }

func (c *Client) Identity() Identity { return c.identity }

func (c *Client) ConnectedAt() time.Time { return c.connectedAt }

// HasRole reports whether the bound identity holds the exact role.
func (c *Client) HasRole(role models.UserRole) bool {
	return models.HasRole(c.identity.Roles, role)
}

// readPump reads inbound frames, decodes them at the boundary, and publishes
// typed events to the hub's inbound channel. It owns the read side of the
// connection and unregisters the client when the connection dies.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("connection closed unexpectedly")
			}
			return
		}

		evt, err := DecodeClientEvent(raw)
		if err != nil {
			c.logger.Warn().Err(err).Msg("rejected inbound frame")
			continue
		}
		c.hub.publish(InboundEvent{Client: c, Event: evt})
	}
}

// writePump drains the send queue and keeps the liveness probe going. It
// owns the write side of the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
