package hub

import (
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/kioskwatch/backend/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Overridden when allowed origins are configured
		return true
	},
}

// Handler admits signaling connections
type Handler struct {
	hub            *Hub
	jwtService     *auth.JWTService
	allowedOrigins []string
}

// NewHandler creates a new signaling connection handler
func NewHandler(hub *Hub, jwtService *auth.JWTService, allowedOrigins []string) *Handler {
	return &Handler{
		hub:            hub,
		jwtService:     jwtService,
		allowedOrigins: allowedOrigins,
	}
}

// HandleWebSocket authenticates the handshake and upgrades the connection.
// Unauthenticated connections are refused before the upgrade.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
		return
	}

	claims, err := h.jwtService.ValidateClientToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	if len(h.allowedOrigins) > 0 {
		upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return false
			}
			for _, pattern := range h.allowedOrigins {
				if matchOrigin(pattern, origin) {
					return true
				}
			}
			return false
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	client := NewClient(h.hub, conn, claims.ClientID, claims.Role)

	go client.WritePump()
	go client.ReadPump()
}

// GetOnlineKiosks returns online kiosks over HTTP (for monitors and admin)
func (h *Handler) GetOnlineKiosks(c *gin.Context) {
	kiosks := h.hub.OnlineKiosks()
	c.JSON(http.StatusOK, gin.H{
		"kiosks": kiosks,
		"count":  len(kiosks),
	})
}

// GetKioskPresence returns one kiosk's presence, consulting the Redis mirror
// for kiosks held by other hub instances
func (h *Handler) GetKioskPresence(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.KioskPresence(c.Param("id")))
}

// matchOrigin supports exact matches or wildcard patterns like *.example.com
func matchOrigin(pattern, origin string) bool {
	if pattern == origin {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		originHost := origin
		if u, err := url.Parse(origin); err == nil {
			originHost = u.Hostname()
		}
		patHost := strings.TrimPrefix(pattern, "*.")
		if strings.HasSuffix(originHost, patHost) {
			return true
		}
	}
	return false
}
