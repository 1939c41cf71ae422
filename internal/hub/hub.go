package hub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kioskwatch/backend/internal/cache"
	"github.com/kioskwatch/backend/internal/models"
)

// Hub maintains kiosk and monitor presence and routes events to connections.
// It is the single authority over who is online; the session store handles
// everything session-shaped.
type Hub struct {
	// Presence, keyed by client ID. One connection per ID; newer wins.
	kiosks   map[string]*Client
	monitors map[string]*Client

	// Registration requests from clients
	register   chan *Client
	unregister chan *Client

	sessions *SessionStore

	// Optional Redis presence mirror
	redis *cache.RedisClient

	// Identifies this hub instance on the presence channel
	instanceID string

	mu sync.RWMutex
}

// NewHub creates a new hub bound to a session store. redis may be nil.
func NewHub(sessions *SessionStore, redis *cache.RedisClient) *Hub {
	h := &Hub{
		kiosks:     make(map[string]*Client),
		monitors:   make(map[string]*Client),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		sessions:   sessions,
		instanceID: uuid.New().String(),
	}
	h.redis = redis
	sessions.BindSender(h)
	return h
}

// Run processes registration and disconnection until the process exits
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	presence := h.presenceMap(client.role)

	h.mu.Lock()
	old, displaced := presence[client.clientID]
	if displaced && old != client {
		close(old.send)
	}
	presence[client.clientID] = client
	h.mu.Unlock()

	if displaced {
		log.Printf("%s %s re-registered, displacing previous connection", client.role, client.clientID)
	} else {
		log.Printf("%s %s registered", client.role, client.clientID)
	}

	if client.role == models.RoleKiosk {
		now := time.Now()
		h.BroadcastToMonitors(models.ServerEvent{
			Type:      models.EventKioskOnline,
			KioskID:   client.clientID,
			Timestamp: &now,
		})
		if h.redis != nil {
			if err := h.redis.SetKioskOnline(client.clientID); err != nil {
				log.Printf("Failed to mirror kiosk presence: %v", err)
			}
			_ = h.redis.PublishKioskPresence(models.KioskPresence{
				KioskID: client.clientID, Status: "online", LastSeen: now, Origin: h.instanceID,
			})
		}
	}
}

func (h *Hub) unregisterClient(client *Client) {
	presence := h.presenceMap(client.role)

	h.mu.Lock()
	current, ok := presence[client.clientID]
	if ok && current == client {
		delete(presence, client.clientID)
	} else {
		// A newer connection displaced this one; presence stays, but any
		// sessions still bound to this monitor's handle must end. Kiosk
		// sessions are keyed by kiosk ID and survive the reconnect.
		h.mu.Unlock()
		if client.role == models.RoleMonitor {
			h.sessions.HandleMonitorDisconnect(client.connID)
		}
		return
	}
	h.mu.Unlock()

	close(client.send)
	log.Printf("%s %s unregistered", client.role, client.clientID)

	if client.role == models.RoleKiosk {
		h.sessions.HandleKioskDisconnect(client.clientID)

		now := time.Now()
		h.BroadcastToMonitors(models.ServerEvent{
			Type:      models.EventKioskOffline,
			KioskID:   client.clientID,
			Timestamp: &now,
			Reason:    "disconnected",
		})
		if h.redis != nil {
			if err := h.redis.SetKioskOffline(client.clientID); err != nil {
				log.Printf("Failed to mirror kiosk presence: %v", err)
			}
			_ = h.redis.PublishKioskPresence(models.KioskPresence{
				KioskID: client.clientID, Status: "offline", LastSeen: now, Origin: h.instanceID,
			})
		}
	} else {
		h.sessions.HandleMonitorDisconnect(client.connID)
	}
}

func (h *Hub) presenceMap(role models.Role) map[string]*Client {
	if role == models.RoleKiosk {
		return h.kiosks
	}
	return h.monitors
}

// SendToKiosk sends an event to a kiosk if online. Never blocks; a full
// send buffer drops the event.
func (h *Hub) SendToKiosk(kioskID string, ev models.ServerEvent) bool {
	h.mu.RLock()
	client, ok := h.kiosks[kioskID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return client.enqueue(ev)
}

// SendToMonitor sends an event to a monitor if online
func (h *Hub) SendToMonitor(monitorID string, ev models.ServerEvent) bool {
	h.mu.RLock()
	client, ok := h.monitors[monitorID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return client.enqueue(ev)
}

// BroadcastToMonitors sends an event to every online monitor
func (h *Hub) BroadcastToMonitors(ev models.ServerEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.monitors {
		select {
		case client.send <- data:
		default:
			// Slow monitor; presence events are best-effort
		}
	}
}

// OnlineKiosks returns a snapshot of online kiosks
func (h *Hub) OnlineKiosks() []models.KioskInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	kiosks := make([]models.KioskInfo, 0, len(h.kiosks))
	for id, client := range h.kiosks {
		kiosks = append(kiosks, models.KioskInfo{KioskID: id, ConnectedAt: client.connectedAt})
	}
	return kiosks
}

// KioskOnline reports whether a kiosk is registered
func (h *Hub) KioskOnline(kioskID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.kiosks[kioskID]
	return ok
}

// KioskPresence resolves a kiosk's presence: the local table first, then the
// Redis mirror for kiosks connected to another hub instance
func (h *Hub) KioskPresence(kioskID string) models.KioskPresence {
	h.mu.RLock()
	client, ok := h.kiosks[kioskID]
	h.mu.RUnlock()
	if ok {
		return models.KioskPresence{KioskID: kioskID, Status: "online", LastSeen: client.connectedAt}
	}

	if h.redis != nil {
		if p, err := h.redis.GetKioskPresence(kioskID); err == nil {
			return *p
		}
	}
	return models.KioskPresence{KioskID: kioskID, Status: "offline", LastSeen: time.Time{}}
}

// RunPresenceMirror rebroadcasts presence published by other hub instances so
// monitors here see kiosks connected elsewhere. Returns immediately without
// Redis. Blocks otherwise; run on its own goroutine.
func (h *Hub) RunPresenceMirror() {
	if h.redis == nil {
		return
	}

	sub := h.redis.SubscribeToKioskPresence()
	defer sub.Close()

	for msg := range sub.Channel() {
		var p models.KioskPresence
		if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
			log.Printf("Bad presence payload: %v", err)
			continue
		}
		if p.Origin == h.instanceID {
			continue
		}

		ev := models.ServerEvent{Type: models.EventKioskOnline, KioskID: p.KioskID, Timestamp: &p.LastSeen}
		if p.Status == "offline" {
			ev.Type = models.EventKioskOffline
			ev.Reason = "disconnected"
		}
		h.BroadcastToMonitors(ev)
	}
}
