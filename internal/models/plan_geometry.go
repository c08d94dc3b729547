package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Extraction methods for a plan geometry model.
const (
	ExtractionMethodAI        = "ai-derived"
	ExtractionMethodHeuristic = "text-heuristic"
)

// PlanGeometryModel is an immutable snapshot of the authoritative site
// plan extracted from project documents. A new extraction creates a new
// row; the latest row per project is treated as authoritative.
type PlanGeometryModel struct {
	ID                   uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ProjectID            uuid.UUID      `gorm:"type:uuid;index;not null" json:"project_id" validate:"required"`
	DocumentID           *uuid.UUID     `gorm:"type:uuid;index" json:"document_id"`
	SiteBoundary         datatypes.JSON `gorm:"type:jsonb" json:"site_boundary"`
	ReferencePoints      datatypes.JSON `gorm:"type:jsonb" json:"reference_points"`
	SiteWidth            float64        `gorm:"not null" json:"site_width"`
	SiteHeight           float64        `gorm:"not null" json:"site_height"`
	Units                string         `gorm:"type:varchar(16);not null;default:'ft'" json:"units"`
	ScaleFactor          *float64       `json:"scale_factor"`
	NoGoZones            datatypes.JSON `gorm:"type:jsonb" json:"no_go_zones"`
	KeyFeatures          datatypes.JSON `gorm:"type:jsonb" json:"key_features"`
	PanelMapRequirements datatypes.JSON `gorm:"type:jsonb" json:"panel_map_requirements"`
	ConfidenceScore      float64        `gorm:"not null" json:"confidence_score" validate:"gte=0,lte=1"`
	ExtractionMethod     string         `gorm:"type:varchar(32);not null" json:"extraction_method" validate:"required,oneof=ai-derived text-heuristic"`
	ExtractedAt          time.Time      `json:"extracted_at"`
	CreatedAt            time.Time      `json:"created_at"`
}

// NoGoZone is a labeled keep-out polygon on the plan.
type NoGoZone struct {
	Polygon []PointJSON `json:"polygon"`
	Label   string      `json:"label"`
}

// PointJSON is the JSON wire shape for a 2D coordinate.
type PointJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ReferencePoint is a named landmark on the plan.
type ReferencePoint struct {
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// PanelMapRequirements carries plan-derived layout rules.
type PanelMapRequirements struct {
	ExpectedPanelTypes []string  `json:"expected_panel_types,omitempty"`
	AllowedRotations   []float64 `json:"allowed_rotations,omitempty"`
	OrientationRules   bool      `json:"orientation_rules,omitempty"`
}
