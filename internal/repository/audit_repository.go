package repository

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kioskwatch/backend/internal/database"
	"github.com/kioskwatch/backend/internal/models"
)

type AuditRepository struct {
	db *database.DB
}

func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// RecordTokenIssuance records a minted stream token for audit
func (r *AuditRepository) RecordTokenIssuance(jti, cameraID, monitorID string, issuedAt, expiresAt time.Time) error {
	query := `
        INSERT INTO stream_token_audit (id, jti, camera_id, monitor_id, issued_at, expires_at)
        VALUES ($1,$2,$3,$4,$5,$6)
    `
	_, err := r.db.Exec(query, uuid.New(), jti, cameraID, monitorID, issuedAt, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to record token issuance: %w", err)
	}
	return nil
}

// RecordStatusChange appends a camera status report to the status log
func (r *AuditRepository) RecordStatusChange(h models.StreamHealth) error {
	query := `
        INSERT INTO camera_status_log (id, camera_id, status, message, reported_at)
        VALUES ($1,$2,$3,$4,$5)
    `
	_, err := r.db.Exec(query, uuid.New(), h.CameraID, h.Status, h.Message, h.LastSeen)
	if err != nil {
		return fmt.Errorf("failed to record status change: %w", err)
	}
	return nil
}
