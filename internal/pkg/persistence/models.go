package persistence

import (
	"time"
)

// Segment is a physical stretch of road identified by an immutable external code
type Segment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"uniqueIndex;not null;size:64" json:"code"`
	Name      string    `json:"name"`
	StartLat  float64   `json:"startLat"`
	StartLon  float64   `json:"startLon"`
	EndLat    float64   `json:"endLat"`
	EndLon    float64   `json:"endLon"`
	Length    float64   `json:"length"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Inspections        []Inspection        `gorm:"foreignKey:SegmentID;constraint:OnDelete:CASCADE" json:"-"`
	MaintenanceActions []MaintenanceAction `gorm:"foreignKey:SegmentID;constraint:OnDelete:CASCADE" json:"-"`
}

// Inspector is the person performing an inspection
type Inspector struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Name  string `gorm:"not null" json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`

	Inspections []Inspection `gorm:"foreignKey:InspectorID;constraint:OnDelete:SET NULL" json:"-"`
}

// Inspection is one assessment event of a segment. RCI is owned by the recompute
// path and stays nil until the first computation.
type Inspection struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	SegmentID        uint      `gorm:"index;not null" json:"segmentId"`
	InspectorID      *uint     `gorm:"index" json:"inspectorId,omitempty"`
	InspectedAt      time.Time `gorm:"index;not null" json:"inspectedAt"`
	SurfaceCondition string    `json:"surfaceCondition,omitempty"`
	RCI              *float64  `gorm:"column:rci;type:decimal(3,1)" json:"rci"`
	Notes            string    `json:"notes,omitempty"`

	Defects []Defect `gorm:"foreignKey:InspectionID;constraint:OnDelete:CASCADE" json:"-"`
}

// Defect is one observed fault within an inspection
type Defect struct {
	ID           uint     `gorm:"primaryKey" json:"id"`
	InspectionID uint     `gorm:"index;not null" json:"inspectionId"`
	DefectType   string   `gorm:"not null" json:"defectType"`
	Severity     int      `gorm:"not null" json:"severity"`
	LengthM      *float64 `gorm:"column:length_m" json:"lengthM,omitempty"`
	WidthM       *float64 `gorm:"column:width_m" json:"widthM,omitempty"`
	DepthCM      *float64 `gorm:"column:depth_cm" json:"depthCm,omitempty"`
	LocationLat  *float64 `json:"locationLat,omitempty"`
	LocationLon  *float64 `json:"locationLon,omitempty"`
	Comments     string   `json:"comments,omitempty"`

	Images []DefectImage `gorm:"foreignKey:DefectID;constraint:OnDelete:CASCADE" json:"-"`
}

// DefectImage is an image attached to a defect
type DefectImage struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	DefectID uint   `gorm:"index;not null" json:"defectId"`
	ImageURL string `gorm:"column:image_url;not null" json:"imageUrl"`
	Caption  string `json:"caption,omitempty"`
}

// MaintenanceStatus is the state of a maintenance action
type MaintenanceStatus string

const (
	MaintenancePlanned    MaintenanceStatus = "PLANNED"
	MaintenanceInProgress MaintenanceStatus = "IN_PROGRESS"
	MaintenanceCompleted  MaintenanceStatus = "COMPLETED"
	MaintenanceCancelled  MaintenanceStatus = "CANCELLED"
)

// IsValid returns true if the status is one of the known values
func (s MaintenanceStatus) IsValid() bool {
	switch s {
	case MaintenancePlanned, MaintenanceInProgress, MaintenanceCompleted, MaintenanceCancelled:
		return true
	}
	return false
}

// MaintenanceAction is a planned or performed remediation of a segment
type MaintenanceAction struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	SegmentID     uint              `gorm:"index;not null" json:"segmentId"`
	PlannedDate   *time.Time        `json:"plannedDate,omitempty"`
	PerformedDate *time.Time        `json:"performedDate,omitempty"`
	ActionType    string            `json:"actionType"`
	Cost          *float64          `json:"cost,omitempty"`
	Status        MaintenanceStatus `gorm:"size:16;not null;default:PLANNED" json:"status"`
	Notes         string            `json:"notes,omitempty"`
}

// UrgentSegment is a row in the materialized snapshot of segments whose latest
// inspection scored at or below the urgency threshold
type UrgentSegment struct {
	Priority     int       `gorm:"primaryKey;autoIncrement:false" json:"priority"`
	SegmentID    uint      `gorm:"index;not null" json:"segmentId"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	InspectionID uint      `json:"inspectionId"`
	InspectedAt  time.Time `json:"inspectedAt"`
	RCI          float64   `gorm:"column:rci;type:decimal(3,1)" json:"rci"`
	RefreshedAt  time.Time `json:"refreshedAt"`
}
