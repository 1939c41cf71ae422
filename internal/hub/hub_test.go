package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kioskwatch/backend/internal/models"
)

func newTestHub() *Hub {
	sessions := NewSessionStore(5 * time.Minute)
	return NewHub(sessions, nil)
}

// drain decodes every queued event on a client's send channel
func drain(t *testing.T, c *Client) []models.ServerEvent {
	t.Helper()
	var events []models.ServerEvent
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return events
			}
			var ev models.ServerEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				t.Fatalf("Failed to decode event: %v", err)
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestRegisterKiosk(t *testing.T) {
	h := newTestHub()

	kiosk := NewClient(h, nil, "kiosk-1", models.RoleKiosk)
	h.registerClient(kiosk)

	if !h.KioskOnline("kiosk-1") {
		t.Error("Expected kiosk-1 to be online")
	}
	if got := len(h.OnlineKiosks()); got != 1 {
		t.Errorf("Expected 1 online kiosk, got %d", got)
	}
}

func TestKioskOnlineBroadcast(t *testing.T) {
	h := newTestHub()

	monitor := NewClient(h, nil, "monitor-1", models.RoleMonitor)
	h.registerClient(monitor)

	kiosk := NewClient(h, nil, "kiosk-1", models.RoleKiosk)
	h.registerClient(kiosk)

	events := drain(t, monitor)
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].Type != models.EventKioskOnline || events[0].KioskID != "kiosk-1" {
		t.Errorf("Expected kiosk-online for kiosk-1, got %+v", events[0])
	}
}

func TestUnregisterKiosk(t *testing.T) {
	h := newTestHub()

	monitor := NewClient(h, nil, "monitor-1", models.RoleMonitor)
	h.registerClient(monitor)

	kiosk := NewClient(h, nil, "kiosk-1", models.RoleKiosk)
	h.registerClient(kiosk)
	drain(t, monitor)

	h.unregisterClient(kiosk)

	if h.KioskOnline("kiosk-1") {
		t.Error("Expected kiosk-1 to be offline")
	}

	events := drain(t, monitor)
	if len(events) != 1 || events[0].Type != models.EventKioskOffline {
		t.Fatalf("Expected kiosk-offline broadcast, got %+v", events)
	}
	if events[0].Reason != "disconnected" {
		t.Errorf("Expected reason disconnected, got %s", events[0].Reason)
	}
}

func TestReconnectDisplacesOldConnection(t *testing.T) {
	h := newTestHub()

	first := NewClient(h, nil, "kiosk-1", models.RoleKiosk)
	h.registerClient(first)

	second := NewClient(h, nil, "kiosk-1", models.RoleKiosk)
	h.registerClient(second)

	// The displaced connection's channel is closed
	select {
	case _, ok := <-first.send:
		if ok {
			t.Error("Expected old send channel to be closed")
		}
	default:
		t.Error("Expected old send channel to be closed")
	}

	// A late unregister from the displaced connection must not evict the new one
	h.unregisterClient(first)
	if !h.KioskOnline("kiosk-1") {
		t.Error("New connection should survive the old connection's unregister")
	}
}

func TestUnregisterKioskEndsItsSession(t *testing.T) {
	h := newTestHub()

	monitor := NewClient(h, nil, "monitor-1", models.RoleMonitor)
	h.registerClient(monitor)

	kiosk := NewClient(h, nil, "kiosk-1", models.RoleKiosk)
	h.registerClient(kiosk)
	drain(t, monitor)

	h.sessions.StartMonitoring("monitor-1", monitor.connID, "kiosk-1")

	h.unregisterClient(kiosk)

	if h.sessions.Count() != 0 {
		t.Errorf("Expected kiosk disconnect to end its session, %d left", h.sessions.Count())
	}

	var sawStopped bool
	for _, ev := range drain(t, monitor) {
		if ev.Type == models.EventMonitoringStopped && ev.Reason == "kiosk-disconnected" {
			sawStopped = true
		}
	}
	if !sawStopped {
		t.Error("Monitor should be told monitoring stopped")
	}
}

func TestUnregisterMonitorEndsOwnedSessions(t *testing.T) {
	h := newTestHub()

	monitor := NewClient(h, nil, "monitor-1", models.RoleMonitor)
	h.registerClient(monitor)
	kiosk := NewClient(h, nil, "kiosk-1", models.RoleKiosk)
	h.registerClient(kiosk)
	drain(t, kiosk)

	h.sessions.StartMonitoring("monitor-1", monitor.connID, "kiosk-1")

	h.unregisterClient(monitor)

	if h.sessions.Count() != 0 {
		t.Errorf("Expected monitor disconnect to end owned sessions, %d left", h.sessions.Count())
	}

	var sawStopped bool
	for _, ev := range drain(t, kiosk) {
		if ev.Type == models.EventMonitoringStopped && ev.Reason == "monitor-disconnected" {
			sawStopped = true
		}
	}
	if !sawStopped {
		t.Error("Kiosk should be told monitoring stopped")
	}
}

func TestDisplacedMonitorUnregisterEndsItsSessions(t *testing.T) {
	h := newTestHub()

	kiosk := NewClient(h, nil, "kiosk-1", models.RoleKiosk)
	h.registerClient(kiosk)

	old := NewClient(h, nil, "monitor-1", models.RoleMonitor)
	h.registerClient(old)
	h.sessions.StartMonitoring("monitor-1", old.connID, "kiosk-1")
	drain(t, kiosk)

	// Reconnect displaces the old connection; its session stays bound to
	// the old handle until that connection's read loop unwinds
	fresh := NewClient(h, nil, "monitor-1", models.RoleMonitor)
	h.registerClient(fresh)

	h.unregisterClient(old)

	if h.sessions.Count() != 0 {
		t.Errorf("Expected sessions bound to the displaced handle to end, %d left", h.sessions.Count())
	}

	var sawStopped bool
	for _, ev := range drain(t, kiosk) {
		if ev.Type == models.EventMonitoringStopped && ev.Reason == "monitor-disconnected" {
			sawStopped = true
		}
	}
	if !sawStopped {
		t.Error("Kiosk should be told monitoring stopped")
	}

	// The fresh connection must survive the old connection's unregister
	if h.monitors["monitor-1"] != fresh {
		t.Error("Fresh connection should stay registered")
	}
}

func TestSendToOfflineKiosk(t *testing.T) {
	h := newTestHub()

	if h.SendToKiosk("kiosk-1", models.ServerEvent{Type: models.EventPong}) {
		t.Error("Send to an offline kiosk should report false")
	}
}

func TestSendToKiosk(t *testing.T) {
	h := newTestHub()

	kiosk := NewClient(h, nil, "kiosk-1", models.RoleKiosk)
	h.registerClient(kiosk)

	if !h.SendToKiosk("kiosk-1", models.ServerEvent{Type: models.EventPong}) {
		t.Fatal("Send to an online kiosk should report true")
	}

	events := drain(t, kiosk)
	if len(events) != 1 || events[0].Type != models.EventPong {
		t.Errorf("Expected a pong frame, got %+v", events)
	}
}
