package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS whitelist (
		id              BIGSERIAL PRIMARY KEY,
		vehicle_number  TEXT NOT NULL,
		authorized_as   TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_whitelist_vehicle_number ON whitelist(vehicle_number);`,
	`CREATE TABLE IF NOT EXISTS vehicle_events (
		id              BIGSERIAL PRIMARY KEY,
		vehicle_number  TEXT NOT NULL,
		vehicle_type    TEXT NOT NULL DEFAULT 'Vehicle',
		status          TEXT NOT NULL,
		time_stamp      TIMESTAMPTZ NOT NULL,
		confidence      INT NOT NULL DEFAULT 0,
		is_authorized   BOOLEAN NOT NULL DEFAULT false,
		authorized_as   TEXT NOT NULL DEFAULT 'Unauthorized',
		alert_sent      BOOLEAN NOT NULL DEFAULT false,
		snapshot_path   TEXT,
		vote_breakdown  JSONB,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_vehicle_events_vehicle_number ON vehicle_events(vehicle_number);`,
	`CREATE INDEX IF NOT EXISTS idx_vehicle_events_time_stamp ON vehicle_events(time_stamp);`,
	`CREATE INDEX IF NOT EXISTS idx_vehicle_events_is_authorized ON vehicle_events(is_authorized);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
