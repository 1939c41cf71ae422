package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Operator is a provisioned identity that may sign on as a kiosk or monitor.
// Login mints the client identity token carried on signaling connections.
type Operator struct {
	ID           uuid.UUID `json:"id" db:"id"`
	ClientID     string    `json:"clientId" db:"client_id"`
	Role         Role      `json:"role" db:"role"`
	DisplayName  string    `json:"displayName" db:"display_name"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// Validate checks basic operator fields
func (o *Operator) Validate() error {
	if o.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if len(o.ClientID) < 2 || len(o.ClientID) > 64 {
		return fmt.Errorf("clientId length invalid")
	}
	if !o.Role.Valid() {
		return fmt.Errorf("role must be KIOSK or MONITOR")
	}
	return nil
}

type CreateOperatorRequest struct {
	ClientID    string `json:"clientId" binding:"required"`
	Role        Role   `json:"role" binding:"required"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	ClientID string `json:"clientId" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token    string `json:"token"`
	ClientID string `json:"clientId"`
	Role     Role   `json:"role"`
}
