package models

import "time"

// WorkerStatus is the lifecycle state of a per-camera transcoding worker
type WorkerStatus string

const (
	WorkerStarting WorkerStatus = "STARTING"
	WorkerRunning  WorkerStatus = "RUNNING"
	WorkerStopping WorkerStatus = "STOPPING"
	WorkerStopped  WorkerStatus = "STOPPED"
	WorkerError    WorkerStatus = "ERROR"
)

// StreamHealth is one entry of the periodic gateway health report
type StreamHealth struct {
	CameraID string       `json:"cameraId"`
	Status   CameraStatus `json:"status"`
	Message  string       `json:"message,omitempty"`
	LastSeen time.Time    `json:"lastSeen"`
}

// HealthCallbackRequest is the batch the gateway posts to the control plane
type HealthCallbackRequest struct {
	Streams []StreamHealth `json:"streams" binding:"required"`
}

// WorkerInfo is the per-worker snapshot exposed on the gateway health endpoint
type WorkerInfo struct {
	CameraID     string       `json:"cameraId"`
	Status       WorkerStatus `json:"status"`
	ViewerCount  int          `json:"viewerCount"`
	RestartCount int          `json:"restartCount"`
	StartedAt    time.Time    `json:"startedAt"`
}
