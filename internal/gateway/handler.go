package gateway

import (
	"crypto/subtle"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/kioskwatch/backend/internal/auth"
	"github.com/kioskwatch/backend/internal/handlers"
	"github.com/kioskwatch/backend/internal/models"
	"github.com/kioskwatch/backend/internal/registry"
)

var viewerUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Admission is by capability token, not origin
		return true
	},
}

// Handler exposes the gateway's HTTP surface and the viewer endpoint
type Handler struct {
	jwtService *auth.JWTService
	supervisor *Supervisor
	store      registry.Store
	replay     *ReplaySet
	secret     string
}

// NewHandler creates gateway handlers. secret gates camera registration
// when non-empty.
func NewHandler(jwtService *auth.JWTService, supervisor *Supervisor, store registry.Store, replay *ReplaySet, secret string) *Handler {
	return &Handler{
		jwtService: jwtService,
		supervisor: supervisor,
		store:      store,
		replay:     replay,
		secret:     secret,
	}
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"workers": h.supervisor.Snapshot(),
	})
}

// ValidateToken handles POST /validate-token: a stateless check that does
// not consume the token
func (h *Handler) ValidateToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	claims, err := h.jwtService.ValidateStreamToken(req.Token)
	if err != nil {
		reason := "Invalid token signature"
		if auth.IsExpired(err) {
			reason = "Token expired"
		}
		c.JSON(http.StatusOK, gin.H{"valid": false, "reason": reason})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":     true,
		"cameraId":  claims.CameraID,
		"monitorId": claims.MonitorID,
		"expiresAt": claims.ExpiresAt.Time,
	})
}

// RegisterCamera handles POST /register-camera: the control plane pushes
// camera configs (with RTSP URLs) into the gateway's table
func (h *Handler) RegisterCamera(c *gin.Context) {
	if h.secret != "" {
		got := c.GetHeader("X-Gateway-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			handlers.ErrorResponse(c, http.StatusUnauthorized, "Invalid gateway secret")
			return
		}
	}

	var req models.CreateCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	camera := &models.Camera{
		CameraID: req.CameraID,
		RTSPURL:  req.RTSPURL,
		Location: req.Location,
		Enabled:  true,
		Status:   models.CameraOffline,
	}
	if req.Enabled != nil {
		camera.Enabled = *req.Enabled
	}
	if err := camera.Validate(); err != nil {
		handlers.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.CreateCamera(camera); err != nil {
		if errors.Is(err, models.ErrCameraExists) {
			handlers.ErrorResponse(c, http.StatusBadRequest, "Camera already registered")
			return
		}
		handlers.ErrorResponse(c, http.StatusInternalServerError, "Failed to register camera")
		return
	}

	log.Printf("Camera %s registered on gateway (%s)", camera.CameraID, maskRTSPURL(camera.RTSPURL))
	c.JSON(http.StatusCreated, camera.View())
}

// DeleteCamera handles DELETE /cameras/:id: removes a camera from the
// gateway's table and stops any workers it still has
func (h *Handler) DeleteCamera(c *gin.Context) {
	if h.secret != "" {
		got := c.GetHeader("X-Gateway-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			handlers.ErrorResponse(c, http.StatusUnauthorized, "Invalid gateway secret")
			return
		}
	}

	cameraID := c.Param("id")
	if err := h.store.DeleteCamera(cameraID); err != nil {
		handlers.ErrorResponse(c, http.StatusNotFound, "Camera not found")
		return
	}
	h.supervisor.StopWorker(cameraID, false)
	h.supervisor.StopWorker(cameraID, true)

	c.JSON(http.StatusOK, gin.H{"deleted": cameraID})
}

// ListCameras handles GET /cameras
func (h *Handler) ListCameras(c *gin.Context) {
	cameras, err := h.store.ListCameras(false)
	if err != nil {
		handlers.ErrorResponse(c, http.StatusInternalServerError, "Failed to list cameras")
		return
	}

	views := make([]models.CameraView, 0, len(cameras))
	for _, camera := range cameras {
		views = append(views, camera.View())
	}
	c.JSON(http.StatusOK, gin.H{"cameras": views, "count": len(views)})
}

// StartHLS handles POST /cameras/:id/hls: starts the fallback HLS variant.
// Guarded by a valid stream token for the camera; the token is not consumed
// so the same token may then fetch the playlist.
func (h *Handler) StartHLS(c *gin.Context) {
	cameraID := c.Param("id")

	if _, ok := h.checkStreamToken(c, cameraID); !ok {
		return
	}

	w, err := h.supervisor.EnsureWorker(cameraID, true)
	if err != nil {
		if errors.Is(err, models.ErrCameraNotFound) {
			handlers.ErrorResponse(c, http.StatusNotFound, "Camera not found")
			return
		}
		handlers.ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cameraId": cameraID,
		"playlist": "/hls/" + cameraID + "/stream.m3u8",
		"status":   w.Status(),
	})
}

// HandleViewer handles GET /webrtc?token=…: the single-use token admission
// protocol, then the upgrade to a binary frame stream
func (h *Handler) HandleViewer(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
		return
	}

	claims, err := h.jwtService.ValidateStreamToken(token)
	if err != nil {
		if auth.IsExpired(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token signature"})
		return
	}

	if !h.replay.Use(claims.ReplayKey(token), claims.ExpiresAt.Time) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token already used"})
		return
	}

	if !claims.HasPermission(auth.PermissionView) {
		c.JSON(http.StatusForbidden, gin.H{"error": "No VIEW permission"})
		return
	}

	conn, err := viewerUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade viewer connection: %v", err)
		return
	}

	// The viewer is bound to the token's camera for the connection lifetime
	viewer := NewViewer(claims.CameraID, claims.MonitorID, conn)
	worker, err := h.supervisor.AttachViewer(viewer)
	if err != nil {
		reason := "Stream unavailable"
		switch {
		case errors.Is(err, ErrViewerLimit):
			reason = "Viewer limit reached"
		case errors.Is(err, ErrWorkerFailed):
			reason = "Stream permanently failed"
		case errors.Is(err, models.ErrCameraNotFound):
			reason = "Camera not found"
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
		conn.Close()
		return
	}

	log.Printf("Viewer %s admitted to camera %s (monitor %s, %d viewers)",
		viewer.ID, claims.CameraID, claims.MonitorID, worker.ViewerCount())

	go viewer.WritePump()
	go func() {
		viewer.ReadPump()
		worker.Detach(viewer)
		log.Printf("Viewer %s left camera %s (%d viewers)", viewer.ID, claims.CameraID, worker.ViewerCount())
	}()
}

func (h *Handler) checkStreamToken(c *gin.Context, cameraID string) (*auth.StreamClaims, bool) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
		return nil, false
	}

	claims, err := h.jwtService.ValidateStreamToken(token)
	if err != nil {
		if auth.IsExpired(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
			return nil, false
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token signature"})
		return nil, false
	}
	if !claims.HasPermission(auth.PermissionView) {
		c.JSON(http.StatusForbidden, gin.H{"error": "No VIEW permission"})
		return nil, false
	}
	if claims.CameraID != cameraID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Token is for a different camera"})
		return nil, false
	}
	return claims, true
}
