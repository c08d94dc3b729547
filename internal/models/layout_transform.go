package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Registration methods for a layout transform.
const (
	RegistrationMethodAnchorPoints = "anchor_points"
	RegistrationMethodBoundaryFit  = "boundary_fit"
	RegistrationMethodManual       = "manual"
)

// LayoutTransform maps plan-space coordinates into layout space. At most
// one transform is active per project; creating a new one deactivates all
// prior active transforms in the same transaction.
type LayoutTransform struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ProjectID           uuid.UUID      `gorm:"type:uuid;index;not null" json:"project_id" validate:"required"`
	PlanGeometryModelID uuid.UUID      `gorm:"type:uuid;index;not null" json:"plan_geometry_model_id" validate:"required"`
	TranslationX        float64        `json:"translation_x"`
	TranslationY        float64        `json:"translation_y"`
	RotationDegrees     float64        `json:"rotation_degrees"`
	ScaleX              float64        `json:"scale_x"`
	ScaleY              float64        `json:"scale_y"`
	SkewX               float64        `json:"skew_x"`
	SkewY               float64        `json:"skew_y"`
	Method              string         `gorm:"type:varchar(32);not null" json:"method" validate:"required,oneof=anchor_points boundary_fit manual"`
	AnchorPoints        datatypes.JSON `gorm:"type:jsonb" json:"anchor_points"`
	ConfidenceScore     float64        `gorm:"not null" json:"confidence_score" validate:"gte=0,lte=1"`
	ResidualError       *float64       `json:"residual_error"`
	MaxError            *float64       `json:"max_error"`
	IsUniformScale      bool           `gorm:"not null" json:"is_uniform_scale"`
	IsActive            bool           `gorm:"not null;default:false;index" json:"is_active"`
	CreatedAt           time.Time      `json:"created_at"`
}
