package registry

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kioskwatch/backend/internal/handlers"
	"github.com/kioskwatch/backend/internal/models"
)

// Handler exposes the camera registry over the control-plane API
type Handler struct {
	service       *Service
	gatewaySecret string
}

// NewHandler creates registry HTTP handlers. gatewaySecret gates the
// health callback when non-empty.
func NewHandler(service *Service, gatewaySecret string) *Handler {
	return &Handler{service: service, gatewaySecret: gatewaySecret}
}

// RegisterCamera handles POST /api/cctv/cameras
func (h *Handler) RegisterCamera(c *gin.Context) {
	var req models.CreateCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	camera, err := h.service.RegisterCamera(req)
	if err != nil {
		if errors.Is(err, models.ErrCameraExists) {
			handlers.ErrorResponse(c, http.StatusBadRequest, "Camera already registered")
			return
		}
		handlers.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusCreated, camera.View())
}

// ListCameras handles GET /api/cctv/cameras[?enabled=true]
func (h *Handler) ListCameras(c *gin.Context) {
	enabledOnly := c.Query("enabled") == "true"

	cameras, err := h.service.ListCameras(enabledOnly)
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

// GetCamera handles GET /api/cctv/cameras/:id
func (h *Handler) GetCamera(c *gin.Context) {
	camera, err := h.service.GetCamera(c.Param("id"))
	if err != nil {
		handlers.ErrorResponse(c, http.StatusNotFound, "Camera not found")
		return
	}
	c.JSON(http.StatusOK, camera.View())
}

// DeleteCamera handles DELETE /api/cctv/cameras/:id
func (h *Handler) DeleteCamera(c *gin.Context) {
	if err := h.service.DeleteCamera(c.Param("id")); err != nil {
		handlers.ErrorResponse(c, http.StatusNotFound, "Camera not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

// GenerateStreamToken handles POST /api/cctv/stream-token
func (h *Handler) GenerateStreamToken(c *gin.Context) {
	var req models.StreamTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	clientID := c.GetString("client_id")
	role := models.Role(c.GetString("role"))

	resp, err := h.service.GenerateStreamToken(req.CameraID, clientID, role)
	if err != nil {
		switch {
		case errors.Is(err, ErrBadRole):
			handlers.ErrorResponse(c, http.StatusForbidden, "Only monitors may request stream tokens")
		case errors.Is(err, models.ErrCameraNotFound):
			handlers.ErrorResponse(c, http.StatusNotFound, "Camera not found")
		case errors.Is(err, ErrCameraDisabled):
			handlers.ErrorResponse(c, http.StatusForbidden, "Camera is disabled")
		default:
			handlers.ErrorResponse(c, http.StatusInternalServerError, "Failed to generate token")
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HealthCallback handles POST /api/cctv/health-callback from the gateway
func (h *Handler) HealthCallback(c *gin.Context) {
	if h.gatewaySecret != "" {
		got := c.GetHeader("X-Gateway-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.gatewaySecret)) != 1 {
			handlers.ErrorResponse(c, http.StatusUnauthorized, "Invalid gateway secret")
			return
		}
	}

	var req models.HealthCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	applied := h.service.ApplyHealthBatch(req.Streams)
	c.JSON(http.StatusOK, gin.H{"received": len(req.Streams), "applied": applied})
}
