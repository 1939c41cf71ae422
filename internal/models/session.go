package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionActive SessionStatus = "ACTIVE"
	SessionEnded  SessionStatus = "ENDED"
)

// CallState is the per-session call sub-state. Transitions are owned by the
// session store; nothing else mutates it.
type CallState string

const (
	CallIdle       CallState = "IDLE"
	CallConnecting CallState = "CONNECTING"
	CallConnected  CallState = "CONNECTED"
	CallEnded      CallState = "ENDED"
)

// MediaFlags holds one side's media toggles during a call
type MediaFlags struct {
	VideoEnabled bool `json:"videoEnabled"`
	AudioEnabled bool `json:"audioEnabled"`
}

// MediaState holds both sides' media toggles
type MediaState struct {
	Monitor MediaFlags `json:"monitor"`
	Kiosk   MediaFlags `json:"kiosk"`
}

// Session is a monitoring relationship between one monitor and one kiosk.
// A kiosk has at most one session; a monitor may hold one per kiosk.
type Session struct {
	ID              uuid.UUID     `json:"id"`
	KioskID         string        `json:"kioskId"`
	MonitorID       string        `json:"monitorId"`
	MonitorConnID   string        `json:"-"`
	StartedAt       time.Time     `json:"startedAt"`
	LastActivityAt  time.Time     `json:"lastActivityAt"`
	Status          SessionStatus `json:"status"`
	CallState       CallState     `json:"callState"`
	CallInitiatedBy Role          `json:"callInitiatedBy,omitempty"`
	CallStartedAt   *time.Time    `json:"callStartedAt,omitempty"`
	Media           MediaState    `json:"mediaState"`
}
