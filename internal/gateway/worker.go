package gateway

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/kioskwatch/backend/internal/models"
)

const (
	// Grace period between SIGTERM and a hard kill
	stopGrace = 5 * time.Second

	// Read chunk size from the transcoder's stdout
	frameChunkSize = 32 * 1024
)

var (
	ErrViewerLimit   = errors.New("viewer limit reached")
	ErrWorkerFailed  = errors.New("worker permanently failed")
	ErrWorkerStopped = errors.New("worker is stopping")
)

// WorkerConfig is the restart and resource policy for a worker
type WorkerConfig struct {
	FFmpegPath       string
	MaxViewers       int
	AutoRestartDelay time.Duration
	MaxRestarts      int
	HLSDir           string
}

// Worker supervises one transcoding child for one camera and fans its output
// out to the camera's viewers. The child reads RTSP and writes MPEG-TS (or an
// HLS playlist for the fallback variant).
type Worker struct {
	CameraID string

	rtspURL string
	hls     bool
	cfg     WorkerConfig

	mu                 sync.Mutex
	status             models.WorkerStatus
	cmd                *exec.Cmd
	viewers            map[uuid.UUID]*Viewer
	startedAt          time.Time
	lastViewerActivity time.Time
	restartCount       int
	lastRestart        time.Time
	permanent          bool
	stopping           bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWorker creates a worker; Start launches it
func NewWorker(cameraID, rtspURL string, hls bool, cfg WorkerConfig) *Worker {
	return &Worker{
		CameraID:           cameraID,
		rtspURL:            rtspURL,
		hls:                hls,
		cfg:                cfg,
		status:             models.WorkerStarting,
		viewers:            make(map[uuid.UUID]*Viewer),
		startedAt:          time.Now(),
		lastViewerActivity: time.Now(),
		stopCh:             make(chan struct{}),
		doneCh:             make(chan struct{}),
	}
}

// Start launches the supervision loop
func (w *Worker) Start() {
	go w.run()
}

func (w *Worker) run() {
	defer close(w.doneCh)

	for {
		// Stop may land while we are waiting out a restart delay; never
		// launch another child once it has
		w.mu.Lock()
		if w.stopping {
			w.status = models.WorkerStopped
			w.mu.Unlock()
			log.Printf("Worker for camera %s stopped", w.CameraID)
			return
		}
		w.mu.Unlock()

		err := w.runOnce()

		w.mu.Lock()
		if w.stopping {
			w.status = models.WorkerStopped
			w.mu.Unlock()
			log.Printf("Worker for camera %s stopped", w.CameraID)
			return
		}

		w.status = models.WorkerError
		w.restartCount++
		w.lastRestart = time.Now()
		if w.restartCount >= w.cfg.MaxRestarts {
			w.permanent = true
			viewers := w.drainViewersLocked()
			w.mu.Unlock()

			log.Printf("Worker for camera %s failed permanently after %d restarts: %v",
				w.CameraID, w.cfg.MaxRestarts, err)
			for _, v := range viewers {
				v.Close()
			}
			return
		}
		attempt := w.restartCount
		w.mu.Unlock()

		log.Printf("Worker for camera %s exited (%v); restart %d/%d in %s",
			w.CameraID, err, attempt, w.cfg.MaxRestarts, w.cfg.AutoRestartDelay)

		select {
		case <-time.After(w.cfg.AutoRestartDelay):
		case <-w.stopCh:
		}
	}
}

// runOnce starts one child and pumps its output until it exits
func (w *Worker) runOnce() error {
	args := buildFFmpegArgs(w.rtspURL)
	if w.hls {
		// ffmpeg will not create the segment directory itself
		outDir := filepath.Join(w.cfg.HLSDir, w.CameraID)
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("create hls output dir: %w", err)
		}
		args = buildHLSArgs(w.rtspURL, outDir)
	}

	cmd := exec.Command(w.cfg.FFmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start transcoder: %w", err)
	}

	w.mu.Lock()
	w.cmd = cmd
	w.status = models.WorkerStarting
	stopRaced := w.stopping
	w.mu.Unlock()

	// Stop may have fired between the launch decision and the launch; this
	// child missed its signal, so deliver it now
	if stopRaced {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}

	log.Printf("Transcoder started for camera %s (%s)", w.CameraID, maskRTSPURL(w.rtspURL))

	// The HLS variant writes segments to disk; there is nothing to pump
	if w.hls {
		w.setRunning()
		waitErr := cmd.Wait()
		return w.exitError(waitErr)
	}

	buf := make([]byte, frameChunkSize)
	first := true
	for {
		n, readErr := stdout.Read(buf)
		if n > 0 {
			if first {
				w.setRunning()
				first = false
			}
			frame := make([]byte, n)
			copy(frame, buf[:n])
			w.broadcast(frame)
		}
		if readErr != nil {
			if readErr != io.EOF {
				cmd.Wait()
				return fmt.Errorf("read transcoder output: %w", readErr)
			}
			waitErr := cmd.Wait()
			return w.exitError(waitErr)
		}
	}
}

func (w *Worker) exitError(waitErr error) error {
	if waitErr != nil {
		return fmt.Errorf("transcoder exited: %w", waitErr)
	}
	return errors.New("transcoder exited")
}

func (w *Worker) setRunning() {
	w.mu.Lock()
	if !w.stopping {
		w.status = models.WorkerRunning
	}
	w.mu.Unlock()
}

// broadcast fans a chunk out to every viewer; a viewer with a full queue is
// dropped so the worker never blocks
func (w *Worker) broadcast(frame []byte) {
	w.mu.Lock()
	if len(w.viewers) > 0 {
		w.lastViewerActivity = time.Now()
	}
	var dropped []*Viewer
	for id, v := range w.viewers {
		if !v.enqueue(frame) {
			delete(w.viewers, id)
			dropped = append(dropped, v)
		}
	}
	w.mu.Unlock()

	for _, v := range dropped {
		log.Printf("Viewer %s on camera %s dropped (queue overflow)", v.ID, w.CameraID)
		v.Close()
	}
}

// Attach admits a viewer, enforcing the per-camera cap
func (w *Worker) Attach(v *Viewer) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.permanent {
		return ErrWorkerFailed
	}
	if w.stopping || w.status == models.WorkerStopping || w.status == models.WorkerStopped {
		return ErrWorkerStopped
	}
	if len(w.viewers) >= w.cfg.MaxViewers {
		return ErrViewerLimit
	}
	w.viewers[v.ID] = v
	w.lastViewerActivity = time.Now()
	return nil
}

// Detach removes a viewer
func (w *Worker) Detach(v *Viewer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.viewers, v.ID)
	w.lastViewerActivity = time.Now()
}

// ViewerCount returns the number of attached viewers
func (w *Worker) ViewerCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.viewers)
}

// IdleSince reports how long the worker has been without viewers. Zero when
// viewers are attached.
func (w *Worker) IdleSince(now time.Time) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.viewers) > 0 {
		return 0
	}
	return now.Sub(w.lastViewerActivity)
}

// Reusable reports whether new viewers may attach to this worker
func (w *Worker) Reusable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.permanent || w.stopping {
		return false
	}
	return w.status == models.WorkerStarting || w.status == models.WorkerRunning ||
		w.status == models.WorkerError
}

// Stop terminates the child gracefully: SIGTERM, then a hard kill after the
// grace period. Blocks until the supervision loop exits.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopping {
		w.mu.Unlock()
		<-w.doneCh
		return
	}
	w.stopping = true
	w.status = models.WorkerStopping
	close(w.stopCh)
	w.mu.Unlock()

	if cmd := w.child(); cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-w.doneCh:
		return
	case <-time.After(stopGrace):
	}

	// Re-read the child: a restart may have raced the signal above, and the
	// kill must land on whichever process is current
	if cmd := w.child(); cmd != nil && cmd.Process != nil {
		log.Printf("Transcoder for camera %s ignored SIGTERM, killing", w.CameraID)
		_ = cmd.Process.Kill()
	}
	<-w.doneCh
}

func (w *Worker) child() *exec.Cmd {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cmd
}

// Info returns a snapshot for the health endpoint
func (w *Worker) Info() models.WorkerInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return models.WorkerInfo{
		CameraID:     w.CameraID,
		Status:       w.status,
		ViewerCount:  len(w.viewers),
		RestartCount: w.restartCount,
		StartedAt:    w.startedAt,
	}
}

// Status returns the current lifecycle state
func (w *Worker) Status() models.WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// PermanentlyFailed reports whether the restart budget is exhausted
func (w *Worker) PermanentlyFailed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.permanent
}

func (w *Worker) drainViewersLocked() []*Viewer {
	viewers := make([]*Viewer, 0, len(w.viewers))
	for id, v := range w.viewers {
		viewers = append(viewers, v)
		delete(w.viewers, id)
	}
	return viewers
}

// buildFFmpegArgs builds the low-latency MPEG-TS pipeline: TCP transport,
// 720p at 25 fps, ~1 Mbps, no B-frames, no audio.
func buildFFmpegArgs(rtspURL string) []string {
	return []string{
		"-rtsp_transport", "tcp",
		"-i", rtspURL,
		"-an",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-profile:v", "baseline",
		"-s", "1280x720",
		"-r", "25",
		"-b:v", "1M",
		"-bf", "0",
		"-f", "mpegts",
		"pipe:1",
	}
}

// buildHLSArgs builds the fallback rolling-playlist pipeline: 2 s segments,
// window of 5, old segments deleted.
func buildHLSArgs(rtspURL, outDir string) []string {
	return []string{
		"-rtsp_transport", "tcp",
		"-i", rtspURL,
		"-an",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-s", "1280x720",
		"-r", "25",
		"-b:v", "1M",
		"-f", "hls",
		"-hls_time", "2",
		"-hls_list_size", "5",
		"-hls_flags", "delete_segments",
		filepath.Join(outDir, "stream.m3u8"),
	}
}

// maskRTSPURL hides credentials for logging
func maskRTSPURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "rtsp://[invalid]"
	}
	if u.User != nil {
		u.User = url.UserPassword("***", "***")
	}
	return u.String()
}
