package gateway

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kioskwatch/backend/internal/models"
	"github.com/kioskwatch/backend/internal/registry"
)

// Supervisor owns the worker table: one primary worker per camera, plus an
// optional HLS variant. It starts workers on first admission, reaps idle
// ones, and answers health snapshots.
type Supervisor struct {
	store registry.Store
	cfg   WorkerConfig

	idleTimeout time.Duration

	mu         sync.Mutex
	workers    map[string]*Worker
	hlsWorkers map[string]*Worker
}

// NewSupervisor creates a worker supervisor over the gateway's camera table
func NewSupervisor(store registry.Store, cfg WorkerConfig, idleTimeout time.Duration) *Supervisor {
	return &Supervisor{
		store:       store,
		cfg:         cfg,
		idleTimeout: idleTimeout,
		workers:     make(map[string]*Worker),
		hlsWorkers:  make(map[string]*Worker),
	}
}

// EnsureWorker returns the camera's worker, starting one if none is usable
func (s *Supervisor) EnsureWorker(cameraID string, hls bool) (*Worker, error) {
	camera, err := s.store.GetCamera(cameraID)
	if err != nil {
		return nil, err
	}
	if !camera.Enabled {
		return nil, fmt.Errorf("camera %s is disabled", cameraID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	table := s.workers
	if hls {
		table = s.hlsWorkers
	}

	if w, ok := table[cameraID]; ok {
		if w.Reusable() {
			return w, nil
		}
		if w.PermanentlyFailed() {
			return nil, ErrWorkerFailed
		}
		// STOPPED or STOPPING: replace below
	}

	w := NewWorker(cameraID, camera.RTSPURL, hls, s.cfg)
	table[cameraID] = w
	w.Start()
	return w, nil
}

// AttachViewer admits a viewer to the camera's primary worker, starting it
// on first admission
func (s *Supervisor) AttachViewer(v *Viewer) (*Worker, error) {
	w, err := s.EnsureWorker(v.CameraID, false)
	if err != nil {
		return nil, err
	}
	if err := w.Attach(v); err != nil {
		return nil, err
	}
	return w, nil
}

// StopWorker stops a camera's worker if present
func (s *Supervisor) StopWorker(cameraID string, hls bool) {
	s.mu.Lock()
	table := s.workers
	if hls {
		table = s.hlsWorkers
	}
	w, ok := table[cameraID]
	if ok {
		delete(table, cameraID)
	}
	s.mu.Unlock()

	if ok {
		w.Stop()
	}
}

// ReapIdle stops workers that have had no viewers for the idle timeout.
// Returns how many workers were stopped.
func (s *Supervisor) ReapIdle(now time.Time) int {
	type victim struct {
		w   *Worker
		hls bool
	}
	var victims []victim

	s.mu.Lock()
	for id, w := range s.workers {
		if w.IdleSince(now) > s.idleTimeout {
			delete(s.workers, id)
			victims = append(victims, victim{w, false})
		}
	}
	for id, w := range s.hlsWorkers {
		if w.IdleSince(now) > s.idleTimeout {
			delete(s.hlsWorkers, id)
			victims = append(victims, victim{w, true})
		}
	}
	s.mu.Unlock()

	for _, v := range victims {
		log.Printf("Stopping idle worker for camera %s (hls=%v)", v.w.CameraID, v.hls)
		v.w.Stop()
	}
	return len(victims)
}

// Run reaps idle workers periodically until stop closes
func (s *Supervisor) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.ReapIdle(time.Now())
		case <-stop:
			return
		}
	}
}

// StopAll stops every worker (shutdown path)
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	all := make([]*Worker, 0, len(s.workers)+len(s.hlsWorkers))
	for id, w := range s.workers {
		all = append(all, w)
		delete(s.workers, id)
	}
	for id, w := range s.hlsWorkers {
		all = append(all, w)
		delete(s.hlsWorkers, id)
	}
	s.mu.Unlock()

	for _, w := range all {
		w.Stop()
	}
}

// Snapshot returns per-worker info for the health endpoint
func (s *Supervisor) Snapshot() []models.WorkerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]models.WorkerInfo, 0, len(s.workers)+len(s.hlsWorkers))
	for _, w := range s.workers {
		infos = append(infos, w.Info())
	}
	for _, w := range s.hlsWorkers {
		infos = append(infos, w.Info())
	}
	return infos
}

// HealthBatch builds the report posted to the control plane: every known
// camera, with worker state mapped onto camera status
func (s *Supervisor) HealthBatch(now time.Time) []models.StreamHealth {
	cameras, err := s.store.ListCameras(false)
	if err != nil {
		log.Printf("Failed to list cameras for health report: %v", err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make([]models.StreamHealth, 0, len(cameras))
	for _, camera := range cameras {
		h := models.StreamHealth{
			CameraID: camera.CameraID,
			Status:   models.CameraOffline,
			LastSeen: now,
		}
		if w, ok := s.workers[camera.CameraID]; ok {
			switch {
			case w.PermanentlyFailed():
				h.Status = models.CameraError
				h.Message = "Max restart attempts reached"
			case w.Status() == models.WorkerRunning:
				h.Status = models.CameraOnline
			case w.Status() == models.WorkerError:
				h.Status = models.CameraError
				h.Message = "Transcoder restarting"
			}
		}
		batch = append(batch, h)
	}
	return batch
}
