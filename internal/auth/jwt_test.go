package auth

import (
	"testing"
	"time"

	"github.com/kioskwatch/backend/internal/models"
)

func newTestService(streamTTL time.Duration) *JWTService {
	return NewJWTService("test-secret-key", 24, streamTTL)
}

func TestJWTService_GenerateClientToken(t *testing.T) {
	service := newTestService(time.Minute)

	token, err := service.GenerateClientToken("kiosk-001", models.RoleKiosk)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if token == "" {
		t.Fatal("Expected token to be generated")
	}
}

func TestJWTService_ValidateClientToken(t *testing.T) {
	service := newTestService(time.Minute)

	token, err := service.GenerateClientToken("monitor-7", models.RoleMonitor)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	claims, err := service.ValidateClientToken(token)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if claims.ClientID != "monitor-7" {
		t.Errorf("Expected clientId monitor-7, got %s", claims.ClientID)
	}
	if claims.Role != models.RoleMonitor {
		t.Errorf("Expected role MONITOR, got %s", claims.Role)
	}
}

func TestJWTService_ValidateClientToken_Invalid(t *testing.T) {
	service := newTestService(time.Minute)

	_, err := service.ValidateClientToken("invalid.token.here")
	if err == nil {
		t.Fatal("Expected error for invalid token")
	}
}

func TestJWTService_ValidateClientToken_WrongKey(t *testing.T) {
	service := newTestService(time.Minute)
	other := NewJWTService("another-secret-key", 24, time.Minute)

	token, err := other.GenerateClientToken("kiosk-001", models.RoleKiosk)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	if _, err := service.ValidateClientToken(token); err == nil {
		t.Fatal("Expected error for token signed with a different key")
	}
}

func TestJWTService_StreamToken_RoundTrip(t *testing.T) {
	service := newTestService(time.Minute)

	token, expiresAt, err := service.GenerateStreamToken("CCTV_01", "monitor-7")
	if err != nil {
		t.Fatalf("Failed to generate stream token: %v", err)
	}
	if time.Until(expiresAt) > time.Minute {
		t.Errorf("Expiry beyond configured TTL: %v", expiresAt)
	}

	claims, err := service.ValidateStreamToken(token)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if claims.CameraID != "CCTV_01" {
		t.Errorf("Expected cameraId CCTV_01, got %s", claims.CameraID)
	}
	if claims.MonitorID != "monitor-7" {
		t.Errorf("Expected monitorId monitor-7, got %s", claims.MonitorID)
	}
	if !claims.HasPermission(PermissionView) {
		t.Error("Expected VIEW permission")
	}
	if claims.ID == "" {
		t.Error("Expected a jti to be minted")
	}
}

func TestJWTService_StreamToken_Expired(t *testing.T) {
	service := newTestService(-time.Second)

	token, _, err := service.GenerateStreamToken("CCTV_01", "monitor-7")
	if err != nil {
		t.Fatalf("Failed to generate stream token: %v", err)
	}

	_, err = service.ValidateStreamToken(token)
	if err == nil {
		t.Fatal("Expected error for expired token")
	}
	if !IsExpired(err) {
		t.Errorf("Expected expiry error, got %v", err)
	}
}

func TestJWTService_StreamToken_DistinctJTI(t *testing.T) {
	service := newTestService(time.Minute)

	t1, _, err := service.GenerateStreamToken("CCTV_01", "monitor-7")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	t2, _, err := service.GenerateStreamToken("CCTV_01", "monitor-7")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	c1, _ := service.ValidateStreamToken(t1)
	c2, _ := service.ValidateStreamToken(t2)
	if c1.ID == c2.ID {
		t.Error("Expected distinct jti per minted token")
	}
}
