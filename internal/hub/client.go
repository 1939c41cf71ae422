package hub

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kioskwatch/backend/internal/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 10240 // 10KB
)

// Client is one authenticated signaling connection. Identity comes from the
// handshake token; presence registration is a separate explicit message.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	clientID    string
	role        models.Role
	connID      string
	connectedAt time.Time
	registered  bool
}

// NewClient creates a client for an upgraded connection
func NewClient(hub *Hub, conn *websocket.Conn, clientID string, role models.Role) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		clientID:    clientID,
		role:        role,
		connID:      uuid.New().String(),
		connectedAt: time.Now(),
	}
}

// ReadPump pumps messages from the connection into the dispatcher.
// Inbound messages are handled in arrival order on this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		if c.registered {
			c.hub.unregister <- c
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error from %s: %v", c.clientID, err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// WritePump pumps events from the send channel to the connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// enqueue marshals and queues an event; drops it if the buffer is full
func (c *Client) enqueue(ev models.ServerEvent) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// reply sends an event back to this client unless it is the zero event
func (c *Client) reply(ev models.ServerEvent) {
	if ev.Type == "" {
		return
	}
	c.enqueue(ev)
}

func (c *Client) handleMessage(data []byte) {
	var msg models.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(models.ErrorEvent(models.ErrCodeInvalidMessage, "Invalid message format"))
		return
	}

	switch msg.Type {
	case models.EventRegisterKiosk:
		c.handleRegister(models.RoleKiosk)

	case models.EventRegisterMonitor:
		c.handleRegister(models.RoleMonitor)

	case models.EventGetOnlineKiosks:
		c.touchOwnSessions()
		c.handleGetOnlineKiosks()

	case models.EventStartMonitoring:
		c.handleStartMonitoring(msg)

	case models.EventStopMonitoring:
		if !c.requireKioskID(msg) {
			return
		}
		if c.role != models.RoleMonitor {
			c.reply(models.ErrorEvent(models.ErrCodeBadRole, "only monitors stop monitoring"))
			return
		}
		c.reply(c.hub.sessions.StopMonitoring(c.clientID, c.connID, msg.KioskID))

	case models.EventCallRequest:
		if !c.requireKioskID(msg) {
			return
		}
		c.reply(c.hub.sessions.CallRequest(c.role, c.clientID, c.connID, msg.KioskID))

	case models.EventCallAccept:
		if !c.requireKioskID(msg) {
			return
		}
		c.reply(c.hub.sessions.CallAccept(c.role, c.clientID, c.connID, msg.KioskID))

	case models.EventCallReject:
		if !c.requireKioskID(msg) {
			return
		}
		c.reply(c.hub.sessions.CallReject(c.role, c.clientID, c.connID, msg.KioskID))

	case models.EventCallEnd:
		if !c.requireKioskID(msg) {
			return
		}
		c.reply(c.hub.sessions.CallEnd(c.role, c.clientID, c.connID, msg.KioskID))

	case models.EventToggleVideo:
		c.handleToggle(msg, true)

	case models.EventToggleAudio:
		c.handleToggle(msg, false)

	case models.EventPing:
		// Pings count as session activity for the sender's own sessions
		c.touchOwnSessions()
		c.reply(models.ServerEvent{Type: models.EventPong})

	default:
		c.reply(models.ErrorEvent(models.ErrCodeInvalidMessage, "Unknown event type"))
	}
}

func (c *Client) handleRegister(expected models.Role) {
	if c.role != expected {
		c.reply(models.ErrorEvent(models.ErrCodeBadRole, "token role does not permit this registration"))
		return
	}

	c.registered = true
	c.hub.register <- c

	if expected == models.RoleKiosk {
		c.reply(models.ServerEvent{Type: models.EventKioskRegistered, KioskID: c.clientID})
		return
	}
	c.reply(models.ServerEvent{
		Type:         models.EventMonitorRegistered,
		OnlineKiosks: c.hub.OnlineKiosks(),
	})
}

func (c *Client) handleGetOnlineKiosks() {
	kiosks := c.hub.OnlineKiosks()
	count := len(kiosks)
	now := time.Now()
	c.reply(models.ServerEvent{
		Type:      models.EventOnlineKiosksList,
		Kiosks:    kiosks,
		Count:     &count,
		Timestamp: &now,
	})
}

func (c *Client) handleStartMonitoring(msg models.ClientMessage) {
	if !c.requireKioskID(msg) {
		return
	}
	if c.role != models.RoleMonitor {
		c.reply(models.ErrorEvent(models.ErrCodeBadRole, "only monitors start monitoring"))
		return
	}
	if !c.hub.KioskOnline(msg.KioskID) {
		c.reply(models.ErrorEvent(models.ErrCodeKioskNotFound, "kiosk is not online"))
		return
	}
	c.reply(c.hub.sessions.StartMonitoring(c.clientID, c.connID, msg.KioskID))
}

func (c *Client) handleToggle(msg models.ClientMessage, video bool) {
	if !c.requireKioskID(msg) {
		return
	}
	if msg.Enabled == nil {
		c.reply(models.ErrorEvent(models.ErrCodeInvalidMessage, "enabled is required"))
		return
	}
	c.reply(c.hub.sessions.ToggleMedia(c.role, c.clientID, c.connID, msg.KioskID, video, *msg.Enabled))
}

func (c *Client) requireKioskID(msg models.ClientMessage) bool {
	if msg.KioskID == "" {
		c.reply(models.ErrorEvent(models.ErrCodeInvalidMessage, "kioskId is required"))
		return false
	}
	return true
}

func (c *Client) touchOwnSessions() {
	if c.role == models.RoleKiosk {
		c.hub.sessions.Touch(c.clientID)
		return
	}
	c.hub.sessions.TouchByMonitorConn(c.connID)
}
