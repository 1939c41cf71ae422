package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	viewerWriteWait = 10 * time.Second
	viewerPingEvery = 30 * time.Second

	// Per-viewer frame queue. A viewer that falls this far behind is
	// dropped rather than allowed to block the worker.
	viewerQueueSize = 256
)

// Viewer is one admitted stream consumer, bound to a single camera for the
// lifetime of its connection.
type Viewer struct {
	ID        uuid.UUID
	CameraID  string
	MonitorID string

	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

// NewViewer wraps an admitted connection
func NewViewer(cameraID, monitorID string, conn *websocket.Conn) *Viewer {
	return &Viewer{
		ID:        uuid.New(),
		CameraID:  cameraID,
		MonitorID: monitorID,
		conn:      conn,
		send:      make(chan []byte, viewerQueueSize),
		done:      make(chan struct{}),
	}
}

// enqueue queues a frame without blocking. Returns false when the queue is
// full; the caller drops the viewer.
func (v *Viewer) enqueue(frame []byte) bool {
	select {
	case v.send <- frame:
		return true
	case <-v.done:
		return false
	default:
		return false
	}
}

// Close tears the viewer down. Safe to call from any goroutine, repeatedly.
func (v *Viewer) Close() {
	v.closeOnce.Do(func() {
		close(v.done)
		v.conn.Close()
	})
}

// WritePump delivers queued frames as binary messages, in order, until the
// viewer closes. Also reads (and discards) inbound messages so pings and
// close frames are processed.
func (v *Viewer) WritePump() {
	ticker := time.NewTicker(viewerPingEvery)
	defer func() {
		ticker.Stop()
		v.Close()
	}()

	for {
		select {
		case frame := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(viewerWriteWait))
			if err := v.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			v.conn.SetWriteDeadline(time.Now().Add(viewerWriteWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-v.done:
			return
		}
	}
}

// ReadPump discards inbound messages and unblocks on disconnect
func (v *Viewer) ReadPump() {
	defer v.Close()
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			return
		}
	}
}
