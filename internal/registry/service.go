package registry

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kioskwatch/backend/internal/auth"
	"github.com/kioskwatch/backend/internal/models"
)

var (
	ErrCameraDisabled = errors.New("camera is disabled")
	ErrBadRole        = errors.New("role not permitted")
)

// Auditor records token issuance and status changes. Optional; nil disables
// auditing (no database configured).
type Auditor interface {
	RecordTokenIssuance(jti, cameraID, monitorID string, issuedAt, expiresAt time.Time) error
	RecordStatusChange(h models.StreamHealth) error
}

// Service owns the camera table and mints stream tokens
type Service struct {
	store   Store
	audit   Auditor
	jwt     *auth.JWTService
	gateway *GatewayClient
}

// NewService creates a camera registry service. audit may be nil.
func NewService(store Store, audit Auditor, jwt *auth.JWTService) *Service {
	return &Service{store: store, audit: audit, jwt: jwt}
}

// BindGateway attaches the stream gateway; registered cameras are pushed to
// it so it can spawn transcoders
func (s *Service) BindGateway(gateway *GatewayClient) {
	s.gateway = gateway
}

// RegisterCamera validates and stores a new camera. New cameras default to
// enabled and start OFFLINE until the gateway reports otherwise.
func (s *Service) RegisterCamera(req models.CreateCameraRequest) (*models.Camera, error) {
	now := time.Now()
	camera := &models.Camera{
		CameraID:         req.CameraID,
		RTSPURL:          req.RTSPURL,
		Location:         req.Location,
		Enabled:          true,
		RegisteredAt:     now,
		Status:           models.CameraOffline,
		LastStatusUpdate: now,
	}
	if req.Enabled != nil {
		camera.Enabled = *req.Enabled
	}

	if err := camera.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateCamera(camera); err != nil {
		return nil, err
	}

	if s.gateway != nil {
		// Best effort; the gateway may also learn cameras directly
		if err := s.gateway.PushCamera(camera); err != nil {
			log.Printf("Failed to push camera %s to gateway: %v", camera.CameraID, err)
		}
	}

	log.Printf("Camera %s registered (location: %q)", camera.CameraID, camera.Location)
	return camera, nil
}

// GetCamera returns one camera
func (s *Service) GetCamera(cameraID string) (*models.Camera, error) {
	return s.store.GetCamera(cameraID)
}

// ListCameras returns cameras, optionally only enabled ones
func (s *Service) ListCameras(enabledOnly bool) ([]*models.Camera, error) {
	return s.store.ListCameras(enabledOnly)
}

// DeleteCamera removes a camera from the registry and the gateway
func (s *Service) DeleteCamera(cameraID string) error {
	if err := s.store.DeleteCamera(cameraID); err != nil {
		return err
	}
	if s.gateway != nil {
		if err := s.gateway.RemoveCamera(cameraID); err != nil {
			log.Printf("Failed to remove camera %s from gateway: %v", cameraID, err)
		}
	}
	return nil
}

// GenerateStreamToken mints a single-use stream token for a monitor.
// The camera must exist and be enabled; kiosks may not mint.
func (s *Service) GenerateStreamToken(cameraID, clientID string, role models.Role) (*models.StreamTokenResponse, error) {
	if role != models.RoleMonitor {
		return nil, ErrBadRole
	}

	camera, err := s.store.GetCamera(cameraID)
	if err != nil {
		return nil, err
	}
	if !camera.Enabled {
		return nil, ErrCameraDisabled
	}

	token, expiresAt, err := s.jwt.GenerateStreamToken(cameraID, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to sign stream token: %w", err)
	}

	if s.audit != nil {
		claims, err := s.jwt.ValidateStreamToken(token)
		if err == nil {
			if err := s.audit.RecordTokenIssuance(claims.ID, cameraID, clientID, time.Now(), expiresAt); err != nil {
				log.Printf("Failed to audit token issuance: %v", err)
			}
		}
	}
	log.Printf("Stream token issued for camera %s to monitor %s", cameraID, clientID)

	return &models.StreamTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		CameraID:  cameraID,
	}, nil
}

// ApplyHealthBatch ingests a gateway health report. Unknown cameras and
// invalid statuses are skipped, not fatal.
func (s *Service) ApplyHealthBatch(streams []models.StreamHealth) int {
	applied := 0
	for _, h := range streams {
		if !h.Status.Valid() {
			log.Printf("Health report for %s carries unknown status %q, skipped", h.CameraID, h.Status)
			continue
		}
		at := h.LastSeen
		if at.IsZero() {
			at = time.Now()
		}
		if err := s.store.UpdateCameraStatus(h.CameraID, h.Status, at); err != nil {
			log.Printf("Health report for unknown camera %s skipped: %v", h.CameraID, err)
			continue
		}
		if s.audit != nil {
			if err := s.audit.RecordStatusChange(h); err != nil {
				log.Printf("Failed to log status change for %s: %v", h.CameraID, err)
			}
		}
		applied++
	}
	return applied
}
