package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"gate-monitor/internal/domain/gate"
)

const maxQueryLimit = 1000

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

type VehicleEventRow struct {
	ID            int64     `gorm:"primaryKey"`
	VehicleNumber string    `gorm:"not null"`
	VehicleType   string    `gorm:"not null"`
	Status        string    `gorm:"not null"`
	TimeStamp     time.Time `gorm:"not null"`
	Confidence    int
	IsAuthorized  bool
	AuthorizedAs  string `gorm:"not null"`
	AlertSent     bool
	SnapshotPath  *string
	VoteBreakdown datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt     time.Time
}

func (VehicleEventRow) TableName() string { return "vehicle_events" }

func toDomain(row VehicleEventRow) gate.VehicleEvent {
	ev := gate.VehicleEvent{
		ID:            row.ID,
		VehicleNumber: row.VehicleNumber,
		VehicleType:   row.VehicleType,
		Status:        row.Status,
		TimeStamp:     row.TimeStamp,
		Confidence:    row.Confidence,
		IsAuthorized:  row.IsAuthorized,
		AuthorizedAs:  row.AuthorizedAs,
		AlertSent:     row.AlertSent,
		VoteBreakdown: row.VoteBreakdown,
	}
	if row.SnapshotPath != nil {
		ev.SnapshotPath = *row.SnapshotPath
	}
	return ev
}

// Create persists a finalized event and fills in its assigned id.
func (r *EventRepository) Create(ctx context.Context, event *gate.VehicleEvent) error {
	row := VehicleEventRow{
		VehicleNumber: event.VehicleNumber,
		VehicleType:   event.VehicleType,
		Status:        event.Status,
		TimeStamp:     event.TimeStamp,
		Confidence:    event.Confidence,
		IsAuthorized:  event.IsAuthorized,
		AuthorizedAs:  event.AuthorizedAs,
		AlertSent:     event.AlertSent,
		CreatedAt:     time.Now(),
	}
	if event.SnapshotPath != "" {
		row.SnapshotPath = &event.SnapshotPath
	}
	if len(event.VoteBreakdown) > 0 {
		row.VoteBreakdown = event.VoteBreakdown
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}

	event.ID = row.ID
	return nil
}

// List returns events matching the filter, newest first. The limit is
// clamped so a dashboard query can never pull the whole table.
func (r *EventRepository) List(ctx context.Context, filter gate.EventFilter) ([]gate.VehicleEvent, error) {
	query := r.db.WithContext(ctx).Model(&VehicleEventRow{})

	if filter.Vehicle != "" {
		query = query.Where("vehicle_number ILIKE ?", "%"+filter.Vehicle+"%")
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Authorized != nil {
		query = query.Where("is_authorized = ?", *filter.Authorized)
	}
	if filter.Role != "" {
		query = query.Where("authorized_as = ?", filter.Role)
	}
	if filter.VehicleType != "" {
		query = query.Where("vehicle_type = ?", filter.VehicleType)
	}
	if filter.DateFrom != nil {
		query = query.Where("time_stamp >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("time_stamp <= ?", *filter.DateTo)
	}

	limit := filter.Limit
	if limit <= 0 || limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	var rows []VehicleEventRow
	err := query.Order("time_stamp DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}

	events := make([]gate.VehicleEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, toDomain(row))
	}
	return events, nil
}

// Delete removes one event. Returns gorm.ErrRecordNotFound when the id
// does not exist; other events are never touched.
func (r *EventRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&VehicleEventRow{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkAlertSent flips alert_sent to true for the event. The guard on the
// current value keeps the transition one-way: a row already marked stays
// marked.
func (r *EventRepository) MarkAlertSent(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&VehicleEventRow{}).
		Where("id = ? AND alert_sent = ?", id, false).
		Update("alert_sent", true).Error
}
