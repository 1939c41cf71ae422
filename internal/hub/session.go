package hub

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kioskwatch/backend/internal/models"
)

// Sender delivers events to registered clients. Implemented by Hub; tests
// substitute a capture fake. Sends must never block.
type Sender interface {
	SendToKiosk(kioskID string, ev models.ServerEvent) bool
	SendToMonitor(monitorID string, ev models.ServerEvent) bool
}

// SessionStore owns every monitoring session and its call state machine.
// Sessions are keyed by kiosk ID: a kiosk is watched by at most one monitor.
// All transitions happen under the store lock, so per-session updates are
// serialized.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	sender   Sender
	timeout  time.Duration
}

// NewSessionStore creates a session store with the given idle timeout
func NewSessionStore(timeout time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*models.Session),
		timeout:  timeout,
	}
}

// BindSender attaches the event sender. Must be called before any command.
func (s *SessionStore) BindSender(sender Sender) {
	s.sender = sender
}

// Get returns a copy of the session for a kiosk
func (s *SessionStore) Get(kioskID string) (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[kioskID]
	if !ok {
		return models.Session{}, false
	}
	return *sess, true
}

// Count returns the number of active sessions
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// StartMonitoring creates a session owned by the monitor. The caller has
// already verified the kiosk is online.
func (s *SessionStore) StartMonitoring(monitorID, monitorConnID, kioskID string) models.ServerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[kioskID]; ok {
		if existing.MonitorID != monitorID {
			return models.ErrorEvent(models.ErrCodeSessionConflict,
				fmt.Sprintf("kiosk %s is already monitored", kioskID))
		}
		// Same monitor re-starting (e.g. after reconnect): rebind the handle
		existing.MonitorConnID = monitorConnID
		existing.LastActivityAt = time.Now()
		return models.ServerEvent{Type: models.EventMonitoringStarted, KioskID: kioskID}
	}

	now := time.Now()
	s.sessions[kioskID] = &models.Session{
		ID:             uuid.New(),
		KioskID:        kioskID,
		MonitorID:      monitorID,
		MonitorConnID:  monitorConnID,
		StartedAt:      now,
		LastActivityAt: now,
		Status:         models.SessionActive,
		CallState:      models.CallIdle,
		Media:          defaultMedia(),
	}
	return models.ServerEvent{Type: models.EventMonitoringStarted, KioskID: kioskID}
}

// StopMonitoring deletes the monitor's session with a kiosk
func (s *SessionStore) StopMonitoring(monitorID, monitorConnID, kioskID string) models.ServerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, errEv := s.validate(models.RoleMonitor, monitorID, monitorConnID, kioskID)
	if errEv != nil {
		return *errEv
	}

	s.endLocked(sess, "monitoring-stopped", false)
	return models.ServerEvent{Type: models.EventMonitoringStopped, KioskID: kioskID, Reason: "stopped-by-monitor"}
}

// CallRequest starts a call from either side of a session
func (s *SessionStore) CallRequest(role models.Role, senderID, senderConnID, kioskID string) models.ServerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, errEv := s.validate(role, senderID, senderConnID, kioskID)
	if errEv != nil {
		return *errEv
	}

	if sess.CallState != models.CallIdle {
		return models.ErrorEvent(models.ErrCodeInvalidCallState,
			fmt.Sprintf("call-request not allowed in %s", sess.CallState))
	}

	sess.CallState = models.CallConnecting
	sess.CallInitiatedBy = role
	s.notifyPeer(sess, role, models.ServerEvent{Type: models.EventCallRequest, FromID: senderID})
	return models.ServerEvent{Type: models.EventCallRequestSent, KioskID: kioskID}
}

// CallAccept accepts a pending call. Only the side that did not initiate
// may accept.
func (s *SessionStore) CallAccept(role models.Role, senderID, senderConnID, kioskID string) models.ServerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, errEv := s.validate(role, senderID, senderConnID, kioskID)
	if errEv != nil {
		return *errEv
	}

	if sess.CallState != models.CallConnecting {
		return callStateError(sess.CallState, "call-accept")
	}
	if sess.CallInitiatedBy == role {
		return models.ErrorEvent(models.ErrCodeInvalidCallState, "initiator cannot accept its own call")
	}

	now := time.Now()
	sess.CallState = models.CallConnected
	sess.CallStartedAt = &now
	s.notifyPeer(sess, role, models.ServerEvent{Type: models.EventCallAccepted, FromID: senderID})
	s.notifySelf(sess, role, models.ServerEvent{Type: models.EventCallAccepted, FromID: senderID})
	return models.ServerEvent{Type: models.EventCallAcceptConfirmed, KioskID: kioskID}
}

// CallReject declines a pending call and returns the session to idle
func (s *SessionStore) CallReject(role models.Role, senderID, senderConnID, kioskID string) models.ServerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, errEv := s.validate(role, senderID, senderConnID, kioskID)
	if errEv != nil {
		return *errEv
	}

	if sess.CallState != models.CallConnecting {
		return callStateError(sess.CallState, "call-reject")
	}
	if sess.CallInitiatedBy == role {
		return models.ErrorEvent(models.ErrCodeInvalidCallState, "initiator cannot reject its own call")
	}

	resetCallLocked(sess)
	s.notifyPeer(sess, role, models.ServerEvent{Type: models.EventCallRejected, FromID: senderID})
	return models.ServerEvent{}
}

// CallEnd ends a pending or connected call from either side
func (s *SessionStore) CallEnd(role models.Role, senderID, senderConnID, kioskID string) models.ServerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, errEv := s.validate(role, senderID, senderConnID, kioskID)
	if errEv != nil {
		return *errEv
	}

	if sess.CallState != models.CallConnecting && sess.CallState != models.CallConnected {
		return callStateError(sess.CallState, "call-end")
	}

	resetCallLocked(sess)
	s.notifyPeer(sess, role, models.ServerEvent{Type: models.EventCallEnded, FromID: senderID})
	s.notifySelf(sess, role, models.ServerEvent{Type: models.EventCallEnded, FromID: senderID})
	return models.ServerEvent{Type: models.EventCallEndConfirmed, KioskID: kioskID}
}

// ToggleMedia flips one side's video or audio flag. Admitted only while the
// call is connected; repeating the same value re-notifies the peer.
func (s *SessionStore) ToggleMedia(role models.Role, senderID, senderConnID, kioskID string, video, enabled bool) models.ServerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, errEv := s.validate(role, senderID, senderConnID, kioskID)
	if errEv != nil {
		return *errEv
	}

	if sess.CallState != models.CallConnected {
		return callStateError(sess.CallState, "media toggle")
	}

	flags := &sess.Media.Kiosk
	if role == models.RoleMonitor {
		flags = &sess.Media.Monitor
	}

	toggled, confirmed := models.EventAudioToggled, models.EventAudioToggleConfirmed
	if video {
		flags.VideoEnabled = enabled
		toggled, confirmed = models.EventVideoToggled, models.EventVideoToggleConfirmed
	} else {
		flags.AudioEnabled = enabled
	}

	v := enabled
	s.notifyPeer(sess, role, models.ServerEvent{Type: toggled, FromID: senderID, Enabled: &v})
	return models.ServerEvent{Type: confirmed, Enabled: &v}
}

// Touch refreshes activity for the kiosk's session if one exists. Any parsed
// command counts as activity, including pings.
func (s *SessionStore) Touch(kioskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[kioskID]; ok {
		sess.LastActivityAt = time.Now()
	}
}

// TouchByMonitorConn refreshes activity for all sessions owned by a
// monitor connection
func (s *SessionStore) TouchByMonitorConn(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, sess := range s.sessions {
		if sess.MonitorConnID == connID {
			sess.LastActivityAt = now
		}
	}
}

// HandleKioskDisconnect ends the kiosk's session, behaving as call-end if a
// call was in flight, and tells the monitor
func (s *SessionStore) HandleKioskDisconnect(kioskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[kioskID]
	if !ok {
		return
	}
	s.endLocked(sess, "kiosk-disconnected", true)
}

// HandleMonitorDisconnect ends every session owned by the monitor connection
// and tells the kiosks
func (s *SessionStore) HandleMonitorDisconnect(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.MonitorConnID == connID {
			s.endLocked(sess, "monitor-disconnected", true)
		}
	}
}

// ReapExpired ends sessions idle past the timeout. Returns how many ended.
func (s *SessionStore) ReapExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	reaped := 0
	for _, sess := range s.sessions {
		if now.Sub(sess.LastActivityAt) > s.timeout {
			log.Printf("Session for kiosk %s timed out (idle %s)", sess.KioskID, now.Sub(sess.LastActivityAt))
			s.endLocked(sess, "session-timeout", true)
			reaped++
		}
	}
	return reaped
}

// Run periodically reaps idle sessions until stop closes
func (s *SessionStore) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.ReapExpired(time.Now())
		case <-stop:
			return
		}
	}
}

// endLocked ends a session: any in-flight call behaves as call-end, then
// both sides learn the monitoring stopped and the session is removed.
// When notifyBoth is false the monitor gets no monitoring-stopped (it asked).
func (s *SessionStore) endLocked(sess *models.Session, reason string, notifyBoth bool) {
	if sess.CallState == models.CallConnecting || sess.CallState == models.CallConnected {
		ended := models.ServerEvent{Type: models.EventCallEnded, FromID: sess.KioskID}
		s.sender.SendToMonitor(sess.MonitorID, ended)
		s.sender.SendToKiosk(sess.KioskID, models.ServerEvent{Type: models.EventCallEnded, FromID: sess.MonitorID})
	}

	stopped := models.ServerEvent{Type: models.EventMonitoringStopped, KioskID: sess.KioskID, Reason: reason}
	s.sender.SendToKiosk(sess.KioskID, stopped)
	if notifyBoth {
		s.sender.SendToMonitor(sess.MonitorID, stopped)
	}

	sess.Status = models.SessionEnded
	delete(s.sessions, sess.KioskID)
}

// validate runs the shared command checks in order: session exists, session
// active, sender is the participant it claims to be. Returns the session
// with activity refreshed, or the error event to reply with.
func (s *SessionStore) validate(role models.Role, senderID, senderConnID, kioskID string) (*models.Session, *models.ServerEvent) {
	sess, ok := s.sessions[kioskID]
	if !ok || sess.Status != models.SessionActive {
		ev := models.ErrorEvent(models.ErrCodeNoSession, fmt.Sprintf("no active session for kiosk %s", kioskID))
		return nil, &ev
	}

	switch role {
	case models.RoleMonitor:
		if sess.MonitorConnID != senderConnID {
			ev := models.ErrorEvent(models.ErrCodeNotOwner, "session is owned by another monitor")
			return nil, &ev
		}
	case models.RoleKiosk:
		if senderID != kioskID {
			ev := models.ErrorEvent(models.ErrCodeInvalidTarget, "kiosk may only address its own session")
			return nil, &ev
		}
	default:
		ev := models.ErrorEvent(models.ErrCodeBadRole, "unknown role")
		return nil, &ev
	}

	sess.LastActivityAt = time.Now()
	return sess, nil
}

// notifyPeer sends to the other side of the session
func (s *SessionStore) notifyPeer(sess *models.Session, senderRole models.Role, ev models.ServerEvent) {
	if senderRole == models.RoleMonitor {
		s.sender.SendToKiosk(sess.KioskID, ev)
	} else {
		s.sender.SendToMonitor(sess.MonitorID, ev)
	}
}

// notifySelf sends to the sender's own side (used when both sides must see
// an event, e.g. call-accepted)
func (s *SessionStore) notifySelf(sess *models.Session, senderRole models.Role, ev models.ServerEvent) {
	if senderRole == models.RoleMonitor {
		s.sender.SendToMonitor(sess.MonitorID, ev)
	} else {
		s.sender.SendToKiosk(sess.KioskID, ev)
	}
}

func callStateError(state models.CallState, action string) models.ServerEvent {
	if state == models.CallIdle || state == models.CallEnded {
		return models.ErrorEvent(models.ErrCodeNoActiveCall, fmt.Sprintf("%s without an active call", action))
	}
	return models.ErrorEvent(models.ErrCodeInvalidCallState, fmt.Sprintf("%s not allowed in %s", action, state))
}

func resetCallLocked(sess *models.Session) {
	sess.CallState = models.CallIdle
	sess.CallInitiatedBy = ""
	sess.CallStartedAt = nil
	sess.Media = defaultMedia()
}

func defaultMedia() models.MediaState {
	return models.MediaState{
		Monitor: models.MediaFlags{VideoEnabled: true, AudioEnabled: true},
		Kiosk:   models.MediaFlags{VideoEnabled: true, AudioEnabled: true},
	}
}
