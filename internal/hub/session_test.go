package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/kioskwatch/backend/internal/models"
)

// fakeSender records every event delivered per client
type fakeSender struct {
	mu      sync.Mutex
	kiosk   map[string][]models.ServerEvent
	monitor map[string][]models.ServerEvent
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		kiosk:   make(map[string][]models.ServerEvent),
		monitor: make(map[string][]models.ServerEvent),
	}
}

func (f *fakeSender) SendToKiosk(kioskID string, ev models.ServerEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kiosk[kioskID] = append(f.kiosk[kioskID], ev)
	return true
}

func (f *fakeSender) SendToMonitor(monitorID string, ev models.ServerEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monitor[monitorID] = append(f.monitor[monitorID], ev)
	return true
}

func (f *fakeSender) kioskEvents(kioskID string) []models.ServerEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ServerEvent(nil), f.kiosk[kioskID]...)
}

func (f *fakeSender) monitorEvents(monitorID string) []models.ServerEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ServerEvent(nil), f.monitor[monitorID]...)
}

func lastEvent(t *testing.T, events []models.ServerEvent) models.ServerEvent {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("Expected at least one event, got none")
	}
	return events[len(events)-1]
}

func newTestStore() (*SessionStore, *fakeSender) {
	store := NewSessionStore(5 * time.Minute)
	sender := newFakeSender()
	store.BindSender(sender)
	return store, sender
}

func TestStartMonitoring(t *testing.T) {
	store, _ := newTestStore()

	reply := store.StartMonitoring("monitor-1", "conn-1", "kiosk-1")
	if reply.Type != models.EventMonitoringStarted {
		t.Errorf("Expected %s, got %s", models.EventMonitoringStarted, reply.Type)
	}

	sess, ok := store.Get("kiosk-1")
	if !ok {
		t.Fatal("Expected session to exist")
	}
	if sess.MonitorID != "monitor-1" {
		t.Errorf("Expected monitor-1, got %s", sess.MonitorID)
	}
	if sess.CallState != models.CallIdle {
		t.Errorf("Expected call state %s, got %s", models.CallIdle, sess.CallState)
	}
}

func TestStartMonitoringConflict(t *testing.T) {
	store, _ := newTestStore()

	store.StartMonitoring("monitor-1", "conn-1", "kiosk-1")
	reply := store.StartMonitoring("monitor-2", "conn-2", "kiosk-1")

	if reply.Type != models.EventError {
		t.Fatalf("Expected error event, got %s", reply.Type)
	}
	if reply.Code != models.ErrCodeSessionConflict {
		t.Errorf("Expected code %s, got %s", models.ErrCodeSessionConflict, reply.Code)
	}
}

func TestStartMonitoringSameMonitorRebinds(t *testing.T) {
	store, _ := newTestStore()

	store.StartMonitoring("monitor-1", "conn-1", "kiosk-1")
	reply := store.StartMonitoring("monitor-1", "conn-2", "kiosk-1")

	if reply.Type != models.EventMonitoringStarted {
		t.Fatalf("Expected %s, got %s", models.EventMonitoringStarted, reply.Type)
	}
	if store.Count() != 1 {
		t.Errorf("Expected 1 session, got %d", store.Count())
	}

	// The old connection handle no longer owns the session
	old := store.StopMonitoring("monitor-1", "conn-1", "kiosk-1")
	if old.Code != models.ErrCodeNotOwner {
		t.Errorf("Expected code %s, got %s", models.ErrCodeNotOwner, old.Code)
	}
}

func TestStopMonitoringByOtherMonitor(t *testing.T) {
	store, _ := newTestStore()

	store.StartMonitoring("monitor-1", "conn-1", "kiosk-1")
	reply := store.StopMonitoring("monitor-2", "conn-2", "kiosk-1")

	if reply.Code != models.ErrCodeNotOwner {
		t.Errorf("Expected code %s, got %s", models.ErrCodeNotOwner, reply.Code)
	}
	if store.Count() != 1 {
		t.Errorf("Session should survive a stop from a non-owner")
	}
}

func TestStopMonitoringNoSession(t *testing.T) {
	store, _ := newTestStore()

	reply := store.StopMonitoring("monitor-1", "conn-1", "kiosk-1")
	if reply.Code != models.ErrCodeNoSession {
		t.Errorf("Expected code %s, got %s", models.ErrCodeNoSession, reply.Code)
	}
}

func TestCallHappyPath(t *testing.T) {
	store, sender := newTestStore()

	store.StartMonitoring("monitor-1", "conn-1", "kiosk-1")

	reply := store.CallRequest(models.RoleMonitor, "monitor-1", "conn-1", "kiosk-1")
	if reply.Type != models.EventCallRequestSent {
		t.Fatalf("Expected %s, got %s (%s)", models.EventCallRequestSent, reply.Type, reply.Message)
	}

	ev := lastEvent(t, sender.kioskEvents("kiosk-1"))
	if ev.Type != models.EventCallRequest || ev.FromID != "monitor-1" {
		t.Errorf("Kiosk should see call-request from monitor-1, got %s from %s", ev.Type, ev.FromID)
	}

	sess, _ := store.Get("kiosk-1")
	if sess.CallState != models.CallConnecting {
		t.Fatalf("Expected call state %s, got %s", models.CallConnecting, sess.CallState)
	}

	reply = store.CallAccept(models.RoleKiosk, "kiosk-1", "kconn-1", "kiosk-1")
	if reply.Type != models.EventCallAcceptConfirmed {
		t.Fatalf("Expected %s, got %s (%s)", models.EventCallAcceptConfirmed, reply.Type, reply.Message)
	}

	// Both sides see call-accepted
	if ev := lastEvent(t, sender.monitorEvents("monitor-1")); ev.Type != models.EventCallAccepted {
		t.Errorf("Monitor should see call-accepted, got %s", ev.Type)
	}
	if ev := lastEvent(t, sender.kioskEvents("kiosk-1")); ev.Type != models.EventCallAccepted {
		t.Errorf("Kiosk should see call-accepted, got %s", ev.Type)
	}

	sess, _ = store.Get("kiosk-1")
	if sess.CallState != models.CallConnected {
		t.Fatalf("Expected call state %s, got %s", models.CallConnected, sess.CallState)
	}
	if sess.CallStartedAt == nil {
		t.Error("Expected CallStartedAt to be set")
	}

	reply = store.CallEnd(models.RoleMonitor, "monitor-1", "conn-1", "kiosk-1")
	if reply.Type != models.EventCallEndConfirmed {
		t.Fatalf("Expected %s, got %s", models.EventCallEndConfirmed, reply.Type)
	}

	sess, _ = store.Get("kiosk-1")
	if sess.CallState != models.CallIdle {
		t.Errorf("Expected call state %s after end, got %s", models.CallIdle, sess.CallState)
	}
	if sess.Status != models.SessionActive {
		t.Errorf("Session should stay active after the call ends")
	}
}

func TestCallReject(t *testing.T) {
	store, sender := newTestStore()

	store.StartMonitoring("monitor-1", "conn-1", "kiosk-1")
	store.CallRequest(models.RoleMonitor, "monitor-1", "conn-1", "kiosk-1")

	reply := store.CallReject(models.RoleKiosk, "kiosk-1", "kconn-1", "kiosk-1")
	if reply.Type != "" {
		t.Errorf("Reject should produce no reply to the rejecting side, got %s", reply.Type)
	}

	ev := lastEvent(t, sender.monitorEvents("monitor-1"))
	if ev.Type != models.EventCallRejected {
		t.Errorf("Initiator should see call-rejected, got %s", ev.Type)
	}

	sess, _ := store.Get("kiosk-1")
	if sess.CallState != models.CallIdle {
		t.Errorf("Expected call state %s after reject, got %s", models.CallIdle, sess.CallState)
	}
}

func TestInitiatorCannotAcceptOwnCall(t *testing.T) {
	store, _ := newTestStore()

	store.StartMonitoring("monitor-1", "conn-1", "kiosk-1")
	store.CallRequest(models.RoleMonitor, "monitor-1", "conn-1", "kiosk-1")

	reply := store.CallAccept(models.RoleMonitor, "monitor-1", "conn-1", "kiosk-1")
	if reply.Code != models.ErrCodeInvalidCallState {
		t.Errorf("Expected code %s, got %s", models.ErrCodeInvalidCallState, reply.Code)
	}
}

func TestCallRequestWhileConnected(t *testing.T) {
	store, _ := newTestStore()

	store.StartMonitoring("monitor-1", "conn-1", "kiosk-1")
	store.CallRequest(models.RoleMonitor, "monitor-1", "conn-1", "kiosk-1")
	store.CallAccept(models.RoleKiosk, "kiosk-1", "kconn-1", "kiosk-1")

	reply := store.CallRequest(models.RoleMonitor, "monitor-1", "conn-1", "kiosk-1")
	if reply.Code != models.ErrCodeInvalidCallState {
		t.Errorf("Expected code %s, got %s", models.ErrCodeInvalidCallState, reply.Code)
	}
}

func TestCallEndWithoutCall(t *testing.T) {
	store, _ := newTestStore()

	store.StartMonitoring("monitor-1", "conn-1", "kiosk-1")

	reply := store.CallEnd(models.RoleMonitor, "monitor-1", "conn-1", "kiosk-1")
	if reply.Code != models.ErrCodeNoActiveCall {
		t.Errorf("Expected code %s, got %s", models.ErrCodeNoActiveCall, reply.Code)
	}
}

func TestKioskCannotAddressOtherSession(t *testing.T) {
	store, _ := newTestStore()

	store.StartMonitoring("monitor-1", "conn-1", "kiosk-1")

	reply := store.CallRequest(models.RoleKiosk, "kiosk-2", "kconn-2", "kiosk-1")
	if reply.Code != models.ErrCodeInvalidTarget {
		t.Errorf("Expected code %s, got %s", models.ErrCodeInvalidTarget, reply.Code)
	}
}

func TestToggleMedia(t *testing.T) {
	store, sender := newTestStore()

	store.StartMonitoring("monitor-1", "conn-1", "kiosk-1")
	store.CallRequest(models.RoleMonitor, "monitor-1", "conn-1", "kiosk-1")
	store.CallAccept(models.RoleKiosk, "kiosk-1", "kconn-1", "kiosk-1")

	reply := store.ToggleMedia(models.RoleMonitor, "monitor-1", "conn-1", "kiosk-1", true, false)
	if reply.Type != models.EventVideoToggleConfirmed {
		t.Fatalf("Expected %s, got %s (%s)", models.EventVideoToggleConfirmed, reply.Type, reply.Message)
	}
	if reply.Enabled == nil || *reply.Enabled {
		t.Error("Confirmation should echo enabled=false")
	}

	ev := lastEvent(t, sender.kioskEvents("kiosk-1"))
	if ev.Type != models.EventVideoToggled || ev.Enabled == nil || *ev.Enabled {
		t.Errorf("Kiosk should see video-toggled enabled=false, got %+v", ev)
	}

	sess, _ := store.Get("kiosk-1")
	if sess.Media.Monitor.VideoEnabled {
		t.Error("Monitor video flag should be off")
	}
	if !sess.Media.Kiosk.VideoEnabled {
		t.Error("Kiosk video flag should be untouched")
	}

	// Repeating the same value is admitted and re-notifies the peer
	before := len(sender.kioskEvents("kiosk-1"))
	reply = store.ToggleMedia(models.RoleMonitor, "monitor-1", "conn-1", "kiosk-1", true, false)
	if reply.Type != models.EventVideoToggleConfirmed {
		t.Errorf("Repeated toggle should confirm, got %s", reply.Type)
	}
	if got := len(sender.kioskEvents("kiosk-1")); got != before+1 {
		t.Errorf("Repeated toggle should re-notify the peer (%d events, want %d)", got, before+1)
	}
}

func TestToggleMediaOutsideCall(t *testing.T) {
	store, _ := newTestStore()

	store.StartMonitoring("monitor-1", "conn-1", "kiosk-1")

	reply := store.ToggleMedia(models.RoleMonitor, "monitor-1", "conn-1", "kiosk-1", false, false)
	if reply.Code != models.ErrCodeNoActiveCall {
		t.Errorf("Expected code %s, got %s", models.ErrCodeNoActiveCall, reply.Code)
	}
}

func TestKioskDisconnectEndsCallAndSession(t *testing.T) {
	store, sender := newTestStore()

	store.StartMonitoring("monitor-1", "conn-1", "kiosk-1")
	store.CallRequest(models.RoleMonitor, "monitor-1", "conn-1", "kiosk-1")
	store.CallAccept(models.RoleKiosk, "kiosk-1", "kconn-1", "kiosk-1")

	store.HandleKioskDisconnect("kiosk-1")

	if store.Count() != 0 {
		t.Fatalf("Expected 0 sessions, got %d", store.Count())
	}

	events := sender.monitorEvents("monitor-1")
	var sawEnded, sawStopped bool
	for _, ev := range events {
		if ev.Type == models.EventCallEnded {
			sawEnded = true
		}
		if ev.Type == models.EventMonitoringStopped && ev.Reason == "kiosk-disconnected" {
			sawStopped = true
		}
	}
	if !sawEnded {
		t.Error("Monitor should see call-ended when the kiosk drops mid-call")
	}
	if !sawStopped {
		t.Error("Monitor should see monitoring-stopped with reason kiosk-disconnected")
	}
}

func TestMonitorDisconnectEndsAllOwnedSessions(t *testing.T) {
	store, sender := newTestStore()

	store.StartMonitoring("monitor-1", "conn-1", "kiosk-1")
	store.StartMonitoring("monitor-1", "conn-1", "kiosk-2")
	store.StartMonitoring("monitor-2", "conn-2", "kiosk-3")

	store.HandleMonitorDisconnect("conn-1")

	if store.Count() != 1 {
		t.Fatalf("Expected 1 surviving session, got %d", store.Count())
	}
	if _, ok := store.Get("kiosk-3"); !ok {
		t.Error("monitor-2's session should survive")
	}

	ev := lastEvent(t, sender.kioskEvents("kiosk-1"))
	if ev.Type != models.EventMonitoringStopped || ev.Reason != "monitor-disconnected" {
		t.Errorf("Kiosk should see monitoring-stopped monitor-disconnected, got %+v", ev)
	}
}

func TestReapExpired(t *testing.T) {
	store, sender := newTestStore()

	store.StartMonitoring("monitor-1", "conn-1", "kiosk-1")
	store.StartMonitoring("monitor-1", "conn-1", "kiosk-2")

	// Only kiosk-2 stays active
	future := time.Now().Add(6 * time.Minute)
	store.Touch("kiosk-2")
	store.mu.Lock()
	store.sessions["kiosk-2"].LastActivityAt = future
	store.mu.Unlock()

	reaped := store.ReapExpired(future)
	if reaped != 1 {
		t.Fatalf("Expected 1 reaped session, got %d", reaped)
	}
	if _, ok := store.Get("kiosk-1"); ok {
		t.Error("kiosk-1's session should be reaped")
	}
	if _, ok := store.Get("kiosk-2"); !ok {
		t.Error("kiosk-2's session should survive")
	}

	ev := lastEvent(t, sender.kioskEvents("kiosk-1"))
	if ev.Type != models.EventMonitoringStopped || ev.Reason != "session-timeout" {
		t.Errorf("Expected monitoring-stopped session-timeout, got %+v", ev)
	}
}

func TestCommandRefreshesActivity(t *testing.T) {
	store, _ := newTestStore()

	store.StartMonitoring("monitor-1", "conn-1", "kiosk-1")

	stale := time.Now().Add(-10 * time.Minute)
	store.mu.Lock()
	store.sessions["kiosk-1"].LastActivityAt = stale
	store.mu.Unlock()

	store.CallRequest(models.RoleMonitor, "monitor-1", "conn-1", "kiosk-1")

	sess, _ := store.Get("kiosk-1")
	if !sess.LastActivityAt.After(stale) {
		t.Error("A valid command should refresh session activity")
	}

	if reaped := store.ReapExpired(time.Now()); reaped != 0 {
		t.Errorf("Refreshed session should not be reaped, got %d", reaped)
	}
}
