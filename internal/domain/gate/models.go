package gate

import (
	"time"

	"gorm.io/datatypes"
)

// Roles a whitelisted vehicle can carry. Anything not on the whitelist
// resolves to RoleUnauthorized.
const (
	RolePrincipal    = "Principal"
	RoleFaculty      = "Faculty"
	RoleStaff        = "Staff"
	RoleVan          = "Van"
	RoleUnauthorized = "Unauthorized"
)

const (
	StatusIn  = "IN"
	StatusOut = "OUT"
)

type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func (b BoundingBox) CenterX() float64 { return (b.X1 + b.X2) / 2 }
func (b BoundingBox) CenterY() float64 { return (b.Y1 + b.Y2) / 2 }

func (b BoundingBox) Valid() bool {
	return b.X2 > b.X1 && b.Y2 > b.Y1
}

// RawObservation is a single per-frame detector+OCR reading. It is
// ephemeral: observations live only inside the tracker until their
// track finalizes.
type RawObservation struct {
	FrameID       int64       `json:"frame_id"`
	Timestamp     time.Time   `json:"timestamp"`
	Box           BoundingBox `json:"bounding_box"`
	PlateText     string      `json:"plate_text"`
	OCRConfidence int         `json:"ocr_confidence"`
	VehicleType   string      `json:"vehicle_type"`
	SnapshotPath  string      `json:"snapshot_path,omitempty"`
}

// VehicleEvent is one finalized passage of a physical vehicle.
type VehicleEvent struct {
	ID            int64          `json:"id"`
	VehicleNumber string         `json:"vehicle_number"`
	VehicleType   string         `json:"vehicle_type"`
	Status        string         `json:"status"`
	TimeStamp     time.Time      `json:"time_stamp"`
	Confidence    int            `json:"confidence"`
	IsAuthorized  bool           `json:"is_authorized"`
	AuthorizedAs  string         `json:"authorized_as"`
	AlertSent     bool           `json:"alert_sent"`
	SnapshotPath  string         `json:"snapshot_path,omitempty"`
	VoteBreakdown datatypes.JSON `json:"vote_breakdown,omitempty"`
}

type WhitelistEntry struct {
	ID            int64  `json:"id"`
	VehicleNumber string `json:"vehicle_number"`
	AuthorizedAs  string `json:"authorized_as"`
}

// EventFilter narrows event queries. Zero values mean "no constraint";
// Authorized is a pointer so false is a real filter.
type EventFilter struct {
	Vehicle     string
	Status      string
	Authorized  *bool
	Role        string
	VehicleType string
	DateFrom    *time.Time
	DateTo      *time.Time
	Limit       int
}
