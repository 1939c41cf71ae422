package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type CameraStatus string

const (
	CameraOnline  CameraStatus = "ONLINE"
	CameraOffline CameraStatus = "OFFLINE"
	CameraError   CameraStatus = "ERROR"
)

// Valid reports whether the status is one of the known camera statuses
func (s CameraStatus) Valid() bool {
	return s == CameraOnline || s == CameraOffline || s == CameraError
}

var (
	ErrCameraExists   = errors.New("camera already registered")
	ErrCameraNotFound = errors.New("camera not found")
)

// Camera is a registered CCTV source. RTSPURL carries credentials and is
// never serialized; outward projections go through View.
type Camera struct {
	CameraID         string       `json:"cameraId" db:"camera_id"`
	RTSPURL          string       `json:"-" db:"rtsp_url"`
	Location         string       `json:"location" db:"location"`
	Enabled          bool         `json:"enabled" db:"enabled"`
	RegisteredAt     time.Time    `json:"registeredAt" db:"registered_at"`
	Status           CameraStatus `json:"status" db:"status"`
	LastStatusUpdate time.Time    `json:"lastStatusUpdate" db:"last_status_update"`
}

// Validate checks basic camera fields
func (c *Camera) Validate() error {
	if c.CameraID == "" {
		return fmt.Errorf("cameraId is required")
	}
	if len(c.CameraID) > 64 {
		return fmt.Errorf("cameraId too long")
	}
	if !strings.HasPrefix(c.RTSPURL, "rtsp://") {
		return fmt.Errorf("rtspUrl must start with rtsp://")
	}
	return nil
}

// View is the camera without its stream source
type CameraView struct {
	CameraID         string       `json:"cameraId"`
	Location         string       `json:"location"`
	Enabled          bool         `json:"enabled"`
	RegisteredAt     time.Time    `json:"registeredAt"`
	Status           CameraStatus `json:"status"`
	LastStatusUpdate time.Time    `json:"lastStatusUpdate"`
}

// View strips the RTSP URL for responses
func (c *Camera) View() CameraView {
	return CameraView{
		CameraID:         c.CameraID,
		Location:         c.Location,
		Enabled:          c.Enabled,
		RegisteredAt:     c.RegisteredAt,
		Status:           c.Status,
		LastStatusUpdate: c.LastStatusUpdate,
	}
}

type CreateCameraRequest struct {
	CameraID string `json:"cameraId" binding:"required"`
	RTSPURL  string `json:"rtspUrl" binding:"required"`
	Location string `json:"location"`
	Enabled  *bool  `json:"enabled,omitempty"`
}

type StreamTokenRequest struct {
	CameraID string `json:"cameraId" binding:"required"`
}

type StreamTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	CameraID  string    `json:"cameraId"`
}
