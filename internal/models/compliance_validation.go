package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Validation types.
const (
	ValidationTypeScale    = "scale"
	ValidationTypeBoundary = "boundary"
	ValidationTypeShape    = "shape"
)

// ComplianceValidation is the immutable result of one validator run.
// Rows are append-only; violations live in the Issues list as data, not
// errors.
type ComplianceValidation struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ProjectID           uuid.UUID      `gorm:"type:uuid;index;not null" json:"project_id" validate:"required"`
	PlanGeometryModelID uuid.UUID      `gorm:"type:uuid;index;not null" json:"plan_geometry_model_id" validate:"required"`
	LayoutTransformID   *uuid.UUID     `gorm:"type:uuid;index" json:"layout_transform_id"`
	ValidationType      string         `gorm:"type:varchar(16);index;not null" json:"validation_type" validate:"required,oneof=scale boundary shape"`
	Passed              bool           `gorm:"not null" json:"passed"`
	ComplianceScore     float64        `gorm:"not null" json:"compliance_score" validate:"gte=0,lte=1"`
	Issues              datatypes.JSON `gorm:"type:jsonb" json:"issues"`
	ScaleDeltaPercent   *float64       `json:"scale_delta_percent"`
	BoundaryViolations  *int           `json:"boundary_violations_count"`
	ShapeMismatches     *int           `json:"shape_mismatches_count"`
	ValidatedAt         time.Time      `json:"validated_at"`
	CreatedAt           time.Time      `json:"created_at"`
}

// ValidationIssue is one structured finding inside a validation result.
type ValidationIssue struct {
	ItemID   string     `json:"item_id,omitempty"`
	ItemType string     `json:"item_type,omitempty"`
	Location *PointJSON `json:"location,omitempty"`
	Issue    string     `json:"issue"`
	Severity string     `json:"severity,omitempty"`
	// RecommendedCorrection is set by the scale validator when a transform
	// reapplication would resolve the finding.
	RecommendedCorrection string `json:"recommended_correction,omitempty"`
}
