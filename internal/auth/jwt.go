package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kioskwatch/backend/internal/models"
)

// PermissionView is the only stream permission currently minted
const PermissionView = "VIEW"

// ClientClaims identifies a signaling client (kiosk or monitor)
type ClientClaims struct {
	ClientID string      `json:"clientId"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

// StreamClaims is a single-use capability admitting one viewer to one camera.
// The jti (RegisteredClaims.ID) keys the replay set.
type StreamClaims struct {
	CameraID    string   `json:"cameraId"`
	MonitorID   string   `json:"monitorId"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// HasPermission reports whether the claims carry the given permission
func (c *StreamClaims) HasPermission(p string) bool {
	for _, have := range c.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// ReplayKey is the value tracked by the replay set. Falls back to the raw
// token for tokens minted without a jti.
func (c *StreamClaims) ReplayKey(rawToken string) string {
	if c.ID != "" {
		return c.ID
	}
	return rawToken
}

// JWTService signs and validates both token kinds with the shared key
type JWTService struct {
	secret         []byte
	clientExpiry   time.Duration
	streamTokenTTL time.Duration
}

// NewJWTService creates a new JWT service
func NewJWTService(secret string, clientExpiryHours int, streamTokenTTL time.Duration) *JWTService {
	return &JWTService{
		secret:         []byte(secret),
		clientExpiry:   time.Duration(clientExpiryHours) * time.Hour,
		streamTokenTTL: streamTokenTTL,
	}
}

// GenerateClientToken mints a client identity token
func (s *JWTService) GenerateClientToken(clientID string, role models.Role) (string, error) {
	now := time.Now()
	claims := ClientClaims{
		ClientID: clientID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.clientExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateClientToken validates a client identity token and returns its claims
func (s *JWTService) ValidateClientToken(tokenString string) (*ClientClaims, error) {
	claims := &ClientClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.ClientID == "" || !claims.Role.Valid() {
		return nil, fmt.Errorf("token missing client identity")
	}
	return claims, nil
}

// GenerateStreamToken mints a short-lived single-use stream token
func (s *JWTService) GenerateStreamToken(cameraID, monitorID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.streamTokenTTL)
	claims := StreamClaims{
		CameraID:    cameraID,
		MonitorID:   monitorID,
		Permissions: []string{PermissionView},
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateStreamToken validates a stream token signature and expiry.
// Replay checking is the gateway's job; this is stateless.
func (s *JWTService) ValidateStreamToken(tokenString string) (*StreamClaims, error) {
	claims := &StreamClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.CameraID == "" {
		return nil, fmt.Errorf("token missing cameraId")
	}
	return claims, nil
}

func (s *JWTService) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}

// IsExpired reports whether a validation error was an expiry (as opposed to
// a bad signature or malformed token)
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}
