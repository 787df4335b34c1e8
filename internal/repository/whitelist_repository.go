package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gate-monitor/internal/domain/gate"
)

type WhitelistRepository struct {
	db *gorm.DB
}

func NewWhitelistRepository(db *gorm.DB) *WhitelistRepository {
	return &WhitelistRepository{db: db}
}

type WhitelistRow struct {
	ID            int64  `gorm:"primaryKey"`
	VehicleNumber string `gorm:"not null;uniqueIndex"`
	AuthorizedAs  string `gorm:"not null"`
	CreatedAt     time.Time
}

func (WhitelistRow) TableName() string { return "whitelist" }

// Snapshot loads the full whitelist. The resolver caches the result, so
// this runs once per staleness window, not once per observation.
func (r *WhitelistRepository) Snapshot(ctx context.Context) ([]gate.WhitelistEntry, error) {
	var rows []WhitelistRow
	err := r.db.WithContext(ctx).Order("vehicle_number").Find(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]gate.WhitelistEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, gate.WhitelistEntry{
			ID:            row.ID,
			VehicleNumber: row.VehicleNumber,
			AuthorizedAs:  row.AuthorizedAs,
		})
	}
	return entries, nil
}

// Upsert creates the entry or updates its role when the plate already
// exists. A single ON CONFLICT statement keeps concurrent upserts from
// tripping over the unique index. The plate must arrive normalized.
func (r *WhitelistRepository) Upsert(ctx context.Context, plate, authorizedAs string) (*gate.WhitelistEntry, error) {
	row := WhitelistRow{
		VehicleNumber: plate,
		AuthorizedAs:  authorizedAs,
		CreatedAt:     time.Now(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "vehicle_number"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"authorized_as": authorizedAs}),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}

	return &gate.WhitelistEntry{
		ID:            row.ID,
		VehicleNumber: row.VehicleNumber,
		AuthorizedAs:  row.AuthorizedAs,
	}, nil
}

func (r *WhitelistRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&WhitelistRow{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
