package repository

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/kioskwatch/backend/internal/database"
	"github.com/kioskwatch/backend/internal/models"
)

type OperatorRepository struct {
	db *database.DB
}

func NewOperatorRepository(db *database.DB) *OperatorRepository {
	return &OperatorRepository{db: db}
}

func (r *OperatorRepository) Create(o *models.Operator) error {
	query := `
        INSERT INTO operators (id, client_id, role, display_name, password_hash, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
    `
	_, err := r.db.Exec(query, o.ID, o.ClientID, o.Role, o.DisplayName, o.PasswordHash, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create operator: %w", err)
	}
	return nil
}

func (r *OperatorRepository) GetByClientID(clientID string) (*models.Operator, error) {
	query := `
        SELECT id, client_id, role, display_name, password_hash, created_at
        FROM operators WHERE client_id = $1
    `
	o := &models.Operator{}
	err := r.db.QueryRow(query, clientID).Scan(
		&o.ID,
		&o.ClientID,
		&o.Role,
		&o.DisplayName,
		&o.PasswordHash,
		&o.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("operator not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operator: %w", err)
	}
	return o, nil
}

// EnsureOperator creates an operator if the client_id is not taken yet.
// Used for seeding development identities.
func (r *OperatorRepository) EnsureOperator(clientID string, role models.Role, displayName, passwordHash string) (*models.Operator, error) {
	existing, err := r.GetByClientID(clientID)
	if err == nil {
		return existing, nil
	}

	o := &models.Operator{
		ID:           uuid.New(),
		ClientID:     clientID,
		Role:         role,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
	}
	query := `
        INSERT INTO operators (id, client_id, role, display_name, password_hash)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at
    `
	if err := r.db.QueryRow(query, o.ID, o.ClientID, o.Role, o.DisplayName, o.PasswordHash).Scan(&o.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to ensure operator: %w", err)
	}
	return o, nil
}
