package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kioskwatch/backend/internal/database"
	"github.com/kioskwatch/backend/internal/models"
)

type CameraRepository struct {
	db *database.DB
}

func NewCameraRepository(db *database.DB) *CameraRepository {
	return &CameraRepository{db: db}
}

func (r *CameraRepository) CreateCamera(c *models.Camera) error {
	query := `
        INSERT INTO cameras (camera_id, rtsp_url, location, enabled, status, registered_at, last_status_update)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
    `
	_, err := r.db.Exec(query,
		c.CameraID,
		c.RTSPURL,
		c.Location,
		c.Enabled,
		c.Status,
		c.RegisteredAt,
		c.LastStatusUpdate,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return models.ErrCameraExists
		}
		return fmt.Errorf("failed to create camera: %w", err)
	}
	return nil
}

func (r *CameraRepository) GetCamera(cameraID string) (*models.Camera, error) {
	query := `
        SELECT camera_id, rtsp_url, location, enabled, status, registered_at, last_status_update
        FROM cameras WHERE camera_id = $1
    `
	c := &models.Camera{}
	err := r.db.QueryRow(query, cameraID).Scan(
		&c.CameraID,
		&c.RTSPURL,
		&c.Location,
		&c.Enabled,
		&c.Status,
		&c.RegisteredAt,
		&c.LastStatusUpdate,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrCameraNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get camera: %w", err)
	}
	return c, nil
}

func (r *CameraRepository) ListCameras(enabledOnly bool) ([]*models.Camera, error) {
	query := `
        SELECT camera_id, rtsp_url, location, enabled, status, registered_at, last_status_update
        FROM cameras
    `
	if enabledOnly {
		query += ` WHERE enabled = TRUE`
	}
	query += ` ORDER BY camera_id`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list cameras: %w", err)
	}
	defer rows.Close()

	cameras := []*models.Camera{}
	for rows.Next() {
		c := &models.Camera{}
		if err := rows.Scan(
			&c.CameraID,
			&c.RTSPURL,
			&c.Location,
			&c.Enabled,
			&c.Status,
			&c.RegisteredAt,
			&c.LastStatusUpdate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan camera: %w", err)
		}
		cameras = append(cameras, c)
	}
	return cameras, rows.Err()
}

func (r *CameraRepository) UpdateCameraStatus(cameraID string, status models.CameraStatus, at time.Time) error {
	query := `UPDATE cameras SET status = $1, last_status_update = $2 WHERE camera_id = $3`
	res, err := r.db.Exec(query, status, at, cameraID)
	if err != nil {
		return fmt.Errorf("failed to update camera status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrCameraNotFound
	}
	return nil
}

func (r *CameraRepository) DeleteCamera(cameraID string) error {
	res, err := r.db.Exec(`DELETE FROM cameras WHERE camera_id = $1`, cameraID)
	if err != nil {
		return fmt.Errorf("failed to delete camera: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrCameraNotFound
	}
	return nil
}
