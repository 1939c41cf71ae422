package models

import "time"

// Signaling event types, client to server. The set is closed; anything else
// is rejected with INVALID_MESSAGE.
const (
	EventRegisterKiosk   = "register-kiosk"
	EventRegisterMonitor = "register-monitor"
	EventGetOnlineKiosks = "get-online-kiosks"
	EventStartMonitoring = "start-monitoring"
	EventStopMonitoring  = "stop-monitoring"
	EventCallRequest     = "call-request"
	EventCallAccept      = "call-accept"
	EventCallReject      = "call-reject"
	EventCallEnd         = "call-end"
	EventToggleVideo     = "toggle-video"
	EventToggleAudio     = "toggle-audio"
	EventPing            = "ping"
)

// Signaling event types, server to client
const (
	EventKioskRegistered       = "kiosk-registered"
	EventMonitorRegistered     = "monitor-registered"
	EventOnlineKiosksList      = "online-kiosks-list"
	EventKioskOnline           = "kiosk-online"
	EventKioskOffline          = "kiosk-offline"
	EventMonitoringStarted     = "monitoring-started"
	EventMonitoringStopped     = "monitoring-stopped"
	EventCallRequestSent       = "call-request-sent"
	EventCallAccepted          = "call-accepted"
	EventCallAcceptConfirmed   = "call-accept-confirmed"
	EventCallRejected          = "call-rejected"
	EventCallEnded             = "call-ended"
	EventCallEndConfirmed      = "call-end-confirmed"
	EventVideoToggled          = "video-toggled"
	EventVideoToggleConfirmed  = "video-toggle-confirmed"
	EventAudioToggled          = "audio-toggled"
	EventAudioToggleConfirmed  = "audio-toggle-confirmed"
	EventError                 = "error"
	EventPong                  = "pong"
)

// Stable error codes carried on error events
const (
	ErrCodeNoSession        = "SIGNALING_NO_SESSION"
	ErrCodeInvalidTarget    = "SIGNALING_INVALID_TARGET"
	ErrCodeNotOwner         = "SIGNALING_NOT_OWNER"
	ErrCodeBadRole          = "SIGNALING_BAD_ROLE"
	ErrCodeInvalidCallState = "INVALID_CALL_STATE"
	ErrCodeNoActiveCall     = "NO_ACTIVE_CALL"
	ErrCodeKioskNotFound    = "KIOSK_NOT_FOUND"
	ErrCodeSessionConflict  = "SESSION_CONFLICT"
	ErrCodeInvalidMessage   = "INVALID_MESSAGE"
)

// ClientMessage is an inbound signaling frame. Unknown fields are ignored;
// each handler checks the fields it requires.
type ClientMessage struct {
	Type    string `json:"type"`
	KioskID string `json:"kioskId,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// ServerEvent is an outbound signaling frame. Fields not set for the event
// type are omitted from the wire.
type ServerEvent struct {
	Type         string      `json:"type"`
	KioskID      string      `json:"kioskId,omitempty"`
	FromID       string      `json:"fromId,omitempty"`
	Enabled      *bool       `json:"enabled,omitempty"`
	Reason       string      `json:"reason,omitempty"`
	Code         string      `json:"code,omitempty"`
	Message      string      `json:"message,omitempty"`
	Timestamp    *time.Time  `json:"timestamp,omitempty"`
	Kiosks       []KioskInfo `json:"kiosks,omitempty"`
	OnlineKiosks []KioskInfo `json:"onlineKiosks,omitempty"`
	Count        *int        `json:"count,omitempty"`
}

// ErrorEvent builds an error frame with a stable code
func ErrorEvent(code, message string) ServerEvent {
	return ServerEvent{Type: EventError, Code: code, Message: message}
}
