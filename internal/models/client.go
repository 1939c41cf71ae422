package models

import "time"

// Role identifies which side of the platform a client connection belongs to.
type Role string

const (
	RoleKiosk   Role = "KIOSK"
	RoleMonitor Role = "MONITOR"
)

// Valid reports whether the role is one of the known roles
func (r Role) Valid() bool {
	return r == RoleKiosk || r == RoleMonitor
}

// KioskInfo is the outward projection of an online kiosk
type KioskInfo struct {
	KioskID     string    `json:"kioskId"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// KioskPresence is published on the presence channel when a kiosk
// comes online or goes offline. Origin identifies the publishing hub
// instance so subscribers can skip their own updates.
type KioskPresence struct {
	KioskID  string    `json:"kioskId"`
	Status   string    `json:"status"` // online, offline
	LastSeen time.Time `json:"lastSeen"`
	Origin   string    `json:"origin,omitempty"`
}
