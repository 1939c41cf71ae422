package gateway

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kioskwatch/backend/internal/models"
	"github.com/kioskwatch/backend/internal/registry"
)

func newTestSupervisor(t *testing.T) (*Supervisor, *registry.MemoryStore) {
	t.Helper()
	store := registry.NewMemoryStore()
	if err := store.CreateCamera(&models.Camera{
		CameraID: "cam-1",
		RTSPURL:  "rtsp://cam.local/stream",
		Enabled:  true,
		Status:   models.CameraOffline,
	}); err != nil {
		t.Fatal(err)
	}
	return NewSupervisor(store, testWorkerConfig(), time.Minute), store
}

func TestEnsureWorkerUnknownCamera(t *testing.T) {
	s, _ := newTestSupervisor(t)

	_, err := s.EnsureWorker("no-such-camera", false)
	if !errors.Is(err, models.ErrCameraNotFound) {
		t.Errorf("Expected ErrCameraNotFound, got %v", err)
	}
}

func TestEnsureWorkerDisabledCamera(t *testing.T) {
	s, store := newTestSupervisor(t)

	if err := store.CreateCamera(&models.Camera{
		CameraID: "cam-off",
		RTSPURL:  "rtsp://cam.local/off",
		Enabled:  false,
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.EnsureWorker("cam-off", false); err == nil {
		t.Error("Expected an error for a disabled camera")
	}
}

func TestEnsureWorkerRejectsPermanentFailure(t *testing.T) {
	s, _ := newTestSupervisor(t)

	// A worker past its restart budget sits in the table until replaced
	w := NewWorker("cam-1", "rtsp://cam.local/stream", false, s.cfg)
	w.permanent = true
	s.workers["cam-1"] = w

	if _, err := s.EnsureWorker("cam-1", false); !errors.Is(err, ErrWorkerFailed) {
		t.Errorf("Expected ErrWorkerFailed, got %v", err)
	}
}

func TestEnsureWorkerReusesLiveWorker(t *testing.T) {
	s, _ := newTestSupervisor(t)

	w := NewWorker("cam-1", "rtsp://cam.local/stream", false, s.cfg)
	w.status = models.WorkerRunning
	s.workers["cam-1"] = w

	got, err := s.EnsureWorker("cam-1", false)
	if err != nil {
		t.Fatal(err)
	}
	if got != w {
		t.Error("Expected the live worker to be reused")
	}
}

func TestAttachViewerCap(t *testing.T) {
	s, _ := newTestSupervisor(t)

	cfg := s.cfg
	cfg.MaxViewers = 1
	w := NewWorker("cam-1", "rtsp://cam.local/stream", false, cfg)
	w.status = models.WorkerRunning
	s.workers["cam-1"] = w

	if _, err := s.AttachViewer(NewViewer("cam-1", "monitor-1", nil)); err != nil {
		t.Fatalf("First viewer should attach: %v", err)
	}
	if _, err := s.AttachViewer(NewViewer("cam-1", "monitor-2", nil)); !errors.Is(err, ErrViewerLimit) {
		t.Errorf("Expected ErrViewerLimit, got %v", err)
	}
}

func TestReapIdle(t *testing.T) {
	s, _ := newTestSupervisor(t)

	// A finished worker with no viewers and an old activity mark
	w := NewWorker("cam-1", "rtsp://cam.local/stream", false, s.cfg)
	w.status = models.WorkerStopped
	w.lastViewerActivity = time.Now().Add(-10 * time.Minute)
	close(w.doneCh)
	s.workers["cam-1"] = w

	if reaped := s.ReapIdle(time.Now()); reaped != 1 {
		t.Fatalf("Expected 1 reaped worker, got %d", reaped)
	}
	if len(s.Snapshot()) != 0 {
		t.Error("Reaped worker should leave the table")
	}
}

func TestReapIdleKeepsBusyWorkers(t *testing.T) {
	s, _ := newTestSupervisor(t)

	w := NewWorker("cam-1", "rtsp://cam.local/stream", false, s.cfg)
	w.status = models.WorkerRunning
	s.workers["cam-1"] = w
	if err := w.Attach(NewViewer("cam-1", "monitor-1", nil)); err != nil {
		t.Fatal(err)
	}

	if reaped := s.ReapIdle(time.Now().Add(time.Hour)); reaped != 0 {
		t.Errorf("Workers with viewers must not be reaped, got %d", reaped)
	}
}

func TestHealthBatchAfterRestartBudgetExhausted(t *testing.T) {
	s, _ := newTestSupervisor(t)
	s.cfg.FFmpegPath = filepath.Join(t.TempDir(), "no-such-transcoder")
	s.cfg.AutoRestartDelay = 2 * time.Millisecond
	s.cfg.MaxRestarts = 3

	w, err := s.EnsureWorker("cam-1", false)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-w.doneCh:
	case <-time.After(5 * time.Second):
		t.Fatal("Worker should give up after exhausting its restart budget")
	}

	batch := s.HealthBatch(time.Now())
	if len(batch) != 1 {
		t.Fatalf("Expected 1 health entry, got %d", len(batch))
	}
	if h := batch[0]; h.Status != models.CameraError || h.Message != "Max restart attempts reached" {
		t.Errorf("Exhausted worker should report ERROR with the restart message, got %+v", h)
	}

	// The dead worker blocks new admissions until it is replaced
	if _, err := s.EnsureWorker("cam-1", false); !errors.Is(err, ErrWorkerFailed) {
		t.Errorf("Expected ErrWorkerFailed, got %v", err)
	}
}

func TestHealthBatch(t *testing.T) {
	s, store := newTestSupervisor(t)

	for _, id := range []string{"cam-run", "cam-err", "cam-dead"} {
		if err := store.CreateCamera(&models.Camera{
			CameraID: id, RTSPURL: "rtsp://cam.local/" + id, Enabled: true,
		}); err != nil {
			t.Fatal(err)
		}
	}

	running := NewWorker("cam-run", "rtsp://x/1", false, s.cfg)
	running.status = models.WorkerRunning
	s.workers["cam-run"] = running

	erroring := NewWorker("cam-err", "rtsp://x/2", false, s.cfg)
	erroring.status = models.WorkerError
	s.workers["cam-err"] = erroring

	dead := NewWorker("cam-dead", "rtsp://x/3", false, s.cfg)
	dead.permanent = true
	s.workers["cam-dead"] = dead

	batch := s.HealthBatch(time.Now())
	statuses := make(map[string]models.StreamHealth, len(batch))
	for _, h := range batch {
		statuses[h.CameraID] = h
	}

	if got := statuses["cam-run"].Status; got != models.CameraOnline {
		t.Errorf("Running worker should report ONLINE, got %s", got)
	}
	if got := statuses["cam-err"].Status; got != models.CameraError {
		t.Errorf("Restarting worker should report ERROR, got %s", got)
	}
	if h := statuses["cam-dead"]; h.Status != models.CameraError || h.Message != "Max restart attempts reached" {
		t.Errorf("Permanently failed worker should report ERROR with the restart message, got %+v", h)
	}
	// cam-1 has no worker at all
	if got := statuses["cam-1"].Status; got != models.CameraOffline {
		t.Errorf("Camera without a worker should report OFFLINE, got %s", got)
	}
}
