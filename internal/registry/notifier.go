package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kioskwatch/backend/internal/models"
)

// GatewayClient pushes camera configuration to the stream gateway so it can
// spawn transcoders without database access
type GatewayClient struct {
	baseURL string
	secret  string
	client  *http.Client
}

// NewGatewayClient creates a gateway client. secret may be empty.
func NewGatewayClient(baseURL, secret string) *GatewayClient {
	return &GatewayClient{
		baseURL: baseURL,
		secret:  secret,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// PushCamera registers a camera on the gateway
func (g *GatewayClient) PushCamera(camera *models.Camera) error {
	enabled := camera.Enabled
	body, err := json.Marshal(models.CreateCameraRequest{
		CameraID: camera.CameraID,
		RTSPURL:  camera.RTSPURL,
		Location: camera.Location,
		Enabled:  &enabled,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, g.baseURL+"/register-camera", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.secret != "" {
		req.Header.Set("X-Gateway-Secret", g.secret)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	return nil
}

// RemoveCamera deletes a camera from the gateway, stopping its workers
func (g *GatewayClient) RemoveCamera(cameraID string) error {
	req, err := http.NewRequest(http.MethodDelete, g.baseURL+"/cameras/"+cameraID, nil)
	if err != nil {
		return err
	}
	if g.secret != "" {
		req.Header.Set("X-Gateway-Secret", g.secret)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	return nil
}
