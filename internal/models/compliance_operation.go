package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Operation types.
const (
	OperationApplyLayoutTransform   = "APPLY_LAYOUT_TRANSFORM"
	OperationClampToBoundary        = "CLAMP_TO_BOUNDARY"
	OperationProposeShapeCorrection = "PROPOSE_SHAPE_CORRECTION"
)

// Operation statuses. pending -> approved -> applied, or pending -> rejected.
const (
	OperationStatusPending  = "pending"
	OperationStatusApproved = "approved"
	OperationStatusApplied  = "applied"
	OperationStatusRejected = "rejected"
)

// Risk levels.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// Clamp strategies for CLAMP_TO_BOUNDARY operations.
const (
	ClampStrategyMoveInside    = "MOVE_INSIDE"
	ClampStrategyRejectAndFlag = "REJECT_AND_FLAG"
)

// Transform application scopes.
const (
	ScopeAllItems   = "ALL_ITEMS"
	ScopePanelsOnly = "PANELS_ONLY"
)

// ComplianceOperation is a proposed or executed layout mutation, the unit
// of governance. Snapshots make every applied operation reversible by
// replaying BeforeSnapshot.
type ComplianceOperation struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ProjectID        uuid.UUID      `gorm:"type:uuid;index;not null" json:"project_id" validate:"required"`
	OperationType    string         `gorm:"type:varchar(40);index;not null" json:"operation_type" validate:"required,oneof=APPLY_LAYOUT_TRANSFORM CLAMP_TO_BOUNDARY PROPOSE_SHAPE_CORRECTION"`
	OperationData    datatypes.JSON `gorm:"type:jsonb" json:"operation_data"`
	RiskLevel        string         `gorm:"type:varchar(16);index;not null" json:"risk_level" validate:"required,oneof=low medium high critical"`
	Status           string         `gorm:"type:varchar(16);index;not null;default:'pending'" json:"status" validate:"required,oneof=pending approved applied rejected"`
	RequiresApproval bool           `gorm:"not null" json:"requires_approval"`
	ChangePlan       datatypes.JSON `gorm:"type:jsonb" json:"change_plan"`
	BeforeSnapshot   datatypes.JSON `gorm:"type:jsonb" json:"before_snapshot"`
	AfterSnapshot    datatypes.JSON `gorm:"type:jsonb" json:"after_snapshot"`
	ProposedBy       string         `gorm:"type:varchar(64)" json:"proposed_by"`
	ApprovedBy       string         `gorm:"type:varchar(64)" json:"approved_by"`
	RejectedBy       string         `gorm:"type:varchar(64)" json:"rejected_by,omitempty"`
	ProposedAt       time.Time      `json:"proposed_at"`
	ApprovedAt       *time.Time     `json:"approved_at"`
	ExecutionResult  datatypes.JSON `gorm:"type:jsonb" json:"execution_result"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Resolved reports whether the operation has left the pending state for
// good.
func (o *ComplianceOperation) Resolved() bool {
	return o.Status == OperationStatusApplied || o.Status == OperationStatusRejected
}

// ChangePlan describes a proposed mutation for human review.
type ChangePlan struct {
	Description   string   `json:"description"`
	AffectedItems []string `json:"affected_items"`
}

// ExecutionResult records the outcome of an execution attempt.
type ExecutionResult struct {
	Success      bool      `json:"success"`
	Message      string    `json:"message,omitempty"`
	ItemsChanged int       `json:"items_changed"`
	FlaggedItems []string  `json:"flagged_items,omitempty"`
	ExecutedAt   time.Time `json:"executed_at"`
}
