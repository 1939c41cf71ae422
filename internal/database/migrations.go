package database

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Up      string
	Down    string
}

// Migrations contains all database migrations
var Migrations = []Migration{
	{
		Version: 1,
		Up: `
			CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

			CREATE TABLE IF NOT EXISTS operators (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				client_id VARCHAR(64) UNIQUE NOT NULL,
				role VARCHAR(16) NOT NULL,
				display_name VARCHAR(255) NOT NULL DEFAULT '',
				password_hash VARCHAR(255) NOT NULL,
				created_at TIMESTAMP NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_operators_client_id ON operators(client_id);
		`,
		Down: `
			DROP TABLE IF EXISTS operators;
		`,
	},
	{
		Version: 2,
		Up: `
			CREATE TABLE IF NOT EXISTS cameras (
				camera_id VARCHAR(64) PRIMARY KEY,
				rtsp_url TEXT NOT NULL,
				location VARCHAR(255) NOT NULL DEFAULT '',
				enabled BOOLEAN NOT NULL DEFAULT TRUE,
				status VARCHAR(16) NOT NULL DEFAULT 'OFFLINE',
				registered_at TIMESTAMP NOT NULL DEFAULT NOW(),
				last_status_update TIMESTAMP NOT NULL DEFAULT NOW()
			);
		`,
		Down: `
			DROP TABLE IF EXISTS cameras;
		`,
	},
	{
		Version: 3,
		Up: `
			CREATE TABLE IF NOT EXISTS stream_token_audit (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				jti UUID NOT NULL,
				camera_id VARCHAR(64) NOT NULL,
				monitor_id VARCHAR(64) NOT NULL,
				issued_at TIMESTAMP NOT NULL DEFAULT NOW(),
				expires_at TIMESTAMP NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_stream_token_audit_camera ON stream_token_audit(camera_id);
			CREATE INDEX IF NOT EXISTS idx_stream_token_audit_monitor ON stream_token_audit(monitor_id);
		`,
		Down: `
			DROP TABLE IF EXISTS stream_token_audit;
		`,
	},
	{
		Version: 4,
		Up: `
			CREATE TABLE IF NOT EXISTS camera_status_log (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				camera_id VARCHAR(64) NOT NULL,
				status VARCHAR(16) NOT NULL,
				message TEXT,
				reported_at TIMESTAMP NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_camera_status_log_camera ON camera_status_log(camera_id);
		`,
		Down: `
			DROP TABLE IF EXISTS camera_status_log;
		`,
	},
}

// RunMigrations applies all pending migrations in version order
func RunMigrations(db *sql.DB) error {
	if err := ensureMigrationsTable(db); err != nil {
		return err
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return err
	}

	sorted := make([]Migration, len(Migrations))
	copy(sorted, Migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	for _, migration := range sorted {
		if migration.Version <= currentVersion {
			continue
		}

		fmt.Printf("Running migration %d...\n", migration.Version)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if _, err := tx.Exec(migration.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		fmt.Printf("Migration %d completed\n", migration.Version)
	}

	return nil
}

func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}
