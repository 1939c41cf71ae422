package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/kioskwatch/backend/internal/models"
)

// Store is the camera table. Backed by Postgres in production
// (repository.CameraRepository) and by MemoryStore in tests and when the
// control plane runs without a database.
type Store interface {
	CreateCamera(c *models.Camera) error
	GetCamera(cameraID string) (*models.Camera, error)
	ListCameras(enabledOnly bool) ([]*models.Camera, error)
	UpdateCameraStatus(cameraID string, status models.CameraStatus, at time.Time) error
	DeleteCamera(cameraID string) error
}

// MemoryStore is an in-memory Store
type MemoryStore struct {
	mu      sync.RWMutex
	cameras map[string]*models.Camera
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cameras: make(map[string]*models.Camera)}
}

func (s *MemoryStore) CreateCamera(c *models.Camera) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cameras[c.CameraID]; ok {
		return models.ErrCameraExists
	}
	clone := *c
	s.cameras[c.CameraID] = &clone
	return nil
}

func (s *MemoryStore) GetCamera(cameraID string) (*models.Camera, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cameras[cameraID]
	if !ok {
		return nil, models.ErrCameraNotFound
	}
	clone := *c
	return &clone, nil
}

func (s *MemoryStore) ListCameras(enabledOnly bool) ([]*models.Camera, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cameras := make([]*models.Camera, 0, len(s.cameras))
	for _, c := range s.cameras {
		if enabledOnly && !c.Enabled {
			continue
		}
		clone := *c
		cameras = append(cameras, &clone)
	}
	sort.Slice(cameras, func(i, j int) bool { return cameras[i].CameraID < cameras[j].CameraID })
	return cameras, nil
}

func (s *MemoryStore) UpdateCameraStatus(cameraID string, status models.CameraStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cameras[cameraID]
	if !ok {
		return models.ErrCameraNotFound
	}
	c.Status = status
	c.LastStatusUpdate = at
	return nil
}

func (s *MemoryStore) DeleteCamera(cameraID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cameras[cameraID]; !ok {
		return models.ErrCameraNotFound
	}
	delete(s.cameras, cameraID)
	return nil
}
