package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/panelproof/engine/internal/geometry"
	"github.com/panelproof/engine/internal/models"
	"github.com/panelproof/engine/internal/repository"
	appErr "github.com/panelproof/engine/pkg/errors"
	"github.com/panelproof/engine/pkg/logger"
)

// ApplyTransformPayload parameterizes an APPLY_LAYOUT_TRANSFORM
// operation. Either TransformID or Transform must be set; TransformID
// wins when both are.
type ApplyTransformPayload struct {
	TransformID *uuid.UUID       `json:"transform_id,omitempty"`
	Transform   *geometry.Affine `json:"transform,omitempty"`
	Scope       string           `json:"scope" validate:"omitempty,oneof=ALL_ITEMS PANELS_ONLY"`
}

// ClampPayload parameterizes a CLAMP_TO_BOUNDARY operation.
type ClampPayload struct {
	Strategy string           `json:"strategy" validate:"required,oneof=MOVE_INSIDE REJECT_AND_FLAG"`
	Bounds   *geometry.Bounds `json:"bounds,omitempty"`
}

// ShapeCorrectionPayload parameterizes a PROPOSE_SHAPE_CORRECTION
// operation. The executor never mutates the layout for this type; the
// payload exists for the human reviewer.
type ShapeCorrectionPayload struct {
	PanelIDs      []string `json:"panel_ids"`
	ProposedShape string   `json:"proposed_shape,omitempty"`
	Reason        string   `json:"reason,omitempty"`
}

// GovernanceService owns the compliance operation lifecycle: proposals
// are recorded pending, approvals and rejections are guarded
// transitions, and execution mutates the layout under optimistic
// locking.
type GovernanceService interface {
	ProposeApplyTransform(ctx context.Context, projectID uuid.UUID, payload *ApplyTransformPayload, proposedBy string) (*models.ComplianceOperation, error)
	ProposeClampToBoundary(ctx context.Context, projectID uuid.UUID, payload *ClampPayload, proposedBy string) (*models.ComplianceOperation, error)
	ProposeShapeCorrection(ctx context.Context, projectID uuid.UUID, payload *ShapeCorrectionPayload, proposedBy string) (*models.ComplianceOperation, error)
	ApproveOperation(ctx context.Context, operationID uuid.UUID, approvedBy string, autoExecute bool) (*models.ComplianceOperation, error)
	RejectOperation(ctx context.Context, operationID uuid.UUID, rejectedBy string) (*models.ComplianceOperation, error)
	ExecuteOperation(ctx context.Context, operationID uuid.UUID) (*models.ComplianceOperation, error)
	GetOperation(ctx context.Context, operationID uuid.UUID) (*models.ComplianceOperation, error)
	ListOperations(ctx context.Context, projectID uuid.UUID, status string) ([]models.ComplianceOperation, error)
}

type governanceService struct {
	operationRepo repository.OperationRepository
	transformRepo repository.TransformRepository
	layoutRepo    repository.LayoutRepository
	geometryRepo  repository.GeometryRepository
}

func NewGovernanceService(operationRepo repository.OperationRepository, transformRepo repository.TransformRepository, layoutRepo repository.LayoutRepository, geometryRepo repository.GeometryRepository) GovernanceService {
	return &governanceService{
		operationRepo: operationRepo,
		transformRepo: transformRepo,
		layoutRepo:    layoutRepo,
		geometryRepo:  geometryRepo,
	}
}

var _ GovernanceService = (*governanceService)(nil)

func (s *governanceService) GetOperation(ctx context.Context, operationID uuid.UUID) (*models.ComplianceOperation, error) {
	var op models.ComplianceOperation
	if err := s.operationRepo.GetByID(ctx, operationID, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

func (s *governanceService) ListOperations(ctx context.Context, projectID uuid.UUID, status string) ([]models.ComplianceOperation, error) {
	return s.operationRepo.ListByProject(ctx, projectID, status)
}

func (s *governanceService) ProposeApplyTransform(ctx context.Context, projectID uuid.UUID, payload *ApplyTransformPayload, proposedBy string) (*models.ComplianceOperation, error) {
	if payload.TransformID == nil && payload.Transform == nil {
		return nil, appErr.New(appErr.CodeInvalid, "transform_id or transform is required")
	}
	if payload.Scope == "" {
		payload.Scope = models.ScopeAllItems
	}
	if payload.TransformID != nil {
		var t models.LayoutTransform
		if err := s.transformRepo.GetByID(ctx, *payload.TransformID, &t); err != nil {
			return nil, err
		}
		if t.ProjectID != projectID {
			return nil, appErr.New(appErr.CodeInvalid, "transform belongs to a different project")
		}
	}
	plan := models.ChangePlan{
		Description:   fmt.Sprintf("apply layout transform to %s", payload.Scope),
		AffectedItems: []string{"*"},
	}
	return s.propose(ctx, projectID, models.OperationApplyLayoutTransform, models.RiskHigh, payload, plan, proposedBy)
}

func (s *governanceService) ProposeClampToBoundary(ctx context.Context, projectID uuid.UUID, payload *ClampPayload, proposedBy string) (*models.ComplianceOperation, error) {
	switch payload.Strategy {
	case models.ClampStrategyMoveInside, models.ClampStrategyRejectAndFlag:
	default:
		return nil, appErr.New(appErr.CodeInvalid, "unknown clamp strategy "+payload.Strategy)
	}
	// REJECT_AND_FLAG only flags items, but a bad flag still blocks field
	// work, so it carries the higher risk level.
	risk := models.RiskMedium
	if payload.Strategy == models.ClampStrategyRejectAndFlag {
		risk = models.RiskHigh
	}
	plan := models.ChangePlan{
		Description:   "clamp out-of-boundary items using strategy " + payload.Strategy,
		AffectedItems: []string{"*"},
	}
	return s.propose(ctx, projectID, models.OperationClampToBoundary, risk, payload, plan, proposedBy)
}

func (s *governanceService) ProposeShapeCorrection(ctx context.Context, projectID uuid.UUID, payload *ShapeCorrectionPayload, proposedBy string) (*models.ComplianceOperation, error) {
	plan := models.ChangePlan{
		Description:   "shape correction requires manual rework; execution will not mutate the layout",
		AffectedItems: payload.PanelIDs,
	}
	return s.propose(ctx, projectID, models.OperationProposeShapeCorrection, models.RiskCritical, payload, plan, proposedBy)
}

// approvalRequired gates execution on a human approval for the risk
// levels where an unreviewed mutation is not acceptable.
func approvalRequired(risk string) bool {
	return risk == models.RiskHigh || risk == models.RiskCritical
}

func (s *governanceService) propose(ctx context.Context, projectID uuid.UUID, opType, risk string, payload any, plan models.ChangePlan, proposedBy string) (*models.ComplianceOperation, error) {
	var layout models.PanelLayout
	if err := s.layoutRepo.GetByProject(ctx, projectID, &layout); err != nil {
		return nil, err
	}
	before, err := layout.Snapshot()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "marshal operation payload failed")
	}
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "marshal change plan failed")
	}

	op := &models.ComplianceOperation{
		ProjectID:        projectID,
		OperationType:    opType,
		OperationData:    datatypes.JSON(data),
		RiskLevel:        risk,
		Status:           models.OperationStatusPending,
		RequiresApproval: approvalRequired(risk),
		ChangePlan:       datatypes.JSON(planJSON),
		BeforeSnapshot:   before,
		ProposedBy:       proposedBy,
		ProposedAt:       time.Now(),
	}
	if err := s.operationRepo.Create(ctx, op); err != nil {
		return nil, err
	}
	logger.L().Info("operation proposed",
		zap.String("operation_id", op.ID.String()),
		zap.String("project_id", projectID.String()),
		zap.String("type", opType),
		zap.String("risk", risk))
	return op, nil
}

// ApproveOperation moves a pending operation to approved, then executes
// it when autoExecute is set. Execution failure leaves the operation
// approved so it can be retried.
func (s *governanceService) ApproveOperation(ctx context.Context, operationID uuid.UUID, approvedBy string, autoExecute bool) (*models.ComplianceOperation, error) {
	now := time.Now()
	err := s.operationRepo.TransitionStatus(ctx, operationID, models.OperationStatusPending, models.OperationStatusApproved, map[string]any{
		"approved_by": approvedBy,
		"approved_at": now,
		"updated_at":  now,
	})
	if err != nil {
		return nil, err
	}
	logger.L().Info("operation approved",
		zap.String("operation_id", operationID.String()),
		zap.String("approved_by", approvedBy))
	if autoExecute {
		return s.ExecuteOperation(ctx, operationID)
	}
	return s.GetOperation(ctx, operationID)
}

func (s *governanceService) RejectOperation(ctx context.Context, operationID uuid.UUID, rejectedBy string) (*models.ComplianceOperation, error) {
	now := time.Now()
	err := s.operationRepo.TransitionStatus(ctx, operationID, models.OperationStatusPending, models.OperationStatusRejected, map[string]any{
		"rejected_by": rejectedBy,
		"updated_at":  now,
	})
	if err != nil {
		return nil, err
	}
	logger.L().Info("operation rejected",
		zap.String("operation_id", operationID.String()),
		zap.String("rejected_by", rejectedBy))
	return s.GetOperation(ctx, operationID)
}

// ExecuteOperation runs an operation against the layout. Approved
// operations are always executable; a pending one only when its risk
// level did not require approval. The layout write uses the version
// column; a concurrent writer triggers one reload-and-retry before the
// attempt is recorded as failed.
func (s *governanceService) ExecuteOperation(ctx context.Context, operationID uuid.UUID) (*models.ComplianceOperation, error) {
	op, err := s.GetOperation(ctx, operationID)
	if err != nil {
		return nil, err
	}
	switch {
	case op.Status == models.OperationStatusApproved:
	case op.Status == models.OperationStatusPending && !op.RequiresApproval:
	default:
		return nil, appErr.New(appErr.CodeAlreadyResolved, "operation is not executable").
			WithMeta("status", op.Status)
	}

	result, execErr := s.executeWithRetry(ctx, op)
	resultJSON, mErr := json.Marshal(result)
	if mErr != nil {
		return nil, appErr.Wrap(mErr, appErr.CodeInternal, "marshal execution result failed")
	}

	if execErr != nil {
		if rErr := s.operationRepo.RecordExecutionFailure(ctx, op.ID, datatypes.JSON(resultJSON)); rErr != nil {
			logger.L().Error("record execution failure failed",
				zap.String("operation_id", op.ID.String()), zap.Error(rErr))
		}
		logger.L().Warn("operation execution failed",
			zap.String("operation_id", op.ID.String()),
			zap.String("type", op.OperationType),
			zap.Error(execErr))
		return nil, appErr.Wrap(execErr, appErr.CodeExecutionFailed, "operation execution failed")
	}

	var layout models.PanelLayout
	if err := s.layoutRepo.GetByProject(ctx, op.ProjectID, &layout); err != nil {
		return nil, err
	}
	after, err := layout.Snapshot()
	if err != nil {
		return nil, err
	}
	if err := s.operationRepo.MarkApplied(ctx, op.ID, op.Status, after, datatypes.JSON(resultJSON)); err != nil {
		return nil, err
	}
	logger.L().Info("operation applied",
		zap.String("operation_id", op.ID.String()),
		zap.String("type", op.OperationType),
		zap.Int("items_changed", result.ItemsChanged))
	return s.GetOperation(ctx, op.ID)
}

func (s *governanceService) executeWithRetry(ctx context.Context, op *models.ComplianceOperation) (*models.ExecutionResult, error) {
	result, err := s.executeOnce(ctx, op)
	if err != nil && appErr.IsCode(err, appErr.CodeConflict) {
		logger.L().Warn("layout version conflict, retrying",
			zap.String("operation_id", op.ID.String()))
		result, err = s.executeOnce(ctx, op)
	}
	if err != nil {
		result = &models.ExecutionResult{Success: false, Message: err.Error(), ExecutedAt: time.Now()}
	}
	return result, err
}

func (s *governanceService) executeOnce(ctx context.Context, op *models.ComplianceOperation) (*models.ExecutionResult, error) {
	var layout models.PanelLayout
	if err := s.layoutRepo.GetByProject(ctx, op.ProjectID, &layout); err != nil {
		return nil, err
	}
	data, err := layout.Decode()
	if err != nil {
		return nil, err
	}

	var result *models.ExecutionResult
	mutated := false
	switch op.OperationType {
	case models.OperationApplyLayoutTransform:
		result, err = s.applyTransformToLayout(ctx, op, data)
		mutated = err == nil
	case models.OperationClampToBoundary:
		result, err = s.clampLayoutToBounds(ctx, op, data)
		mutated = err == nil && result.ItemsChanged > 0
	case models.OperationProposeShapeCorrection:
		// Never mutates: shape defects need rework in the field. Success
		// stays false so callers can tell nothing was auto-applied.
		result = &models.ExecutionResult{
			Success:    false,
			Message:    "shape correction recorded; manual intervention required",
			ExecutedAt: time.Now(),
		}
	default:
		return nil, appErr.New(appErr.CodeInvalid, "unknown operation type "+op.OperationType)
	}
	if err != nil {
		return result, err
	}

	if mutated {
		if err := layout.Encode(data); err != nil {
			return result, err
		}
		if err := s.layoutRepo.UpdateVersioned(ctx, &layout, layout.Version); err != nil {
			return result, err
		}
	}
	result.ExecutedAt = time.Now()
	return result, nil
}

func (s *governanceService) applyTransformToLayout(ctx context.Context, op *models.ComplianceOperation, data *models.LayoutData) (*models.ExecutionResult, error) {
	var payload ApplyTransformPayload
	if err := json.Unmarshal(op.OperationData, &payload); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "decode operation payload failed")
	}
	var affine geometry.Affine
	switch {
	case payload.TransformID != nil:
		var t models.LayoutTransform
		if err := s.transformRepo.GetByID(ctx, *payload.TransformID, &t); err != nil {
			return nil, err
		}
		affine = affineFromModel(&t)
	case payload.Transform != nil:
		affine = *payload.Transform
	default:
		return nil, appErr.New(appErr.CodeInvalid, "operation has no transform")
	}

	changed := 0
	for i := range data.Panels {
		p := &data.Panels[i]
		q := affine.Apply(geometry.Point{X: p.X, Y: p.Y})
		p.X, p.Y = q.X, q.Y
		scale := affine.AverageScale()
		p.Width *= scale
		p.Height *= scale
		p.Rotation += affine.RotationDegrees
		changed++
	}
	if payload.Scope != models.ScopePanelsOnly {
		scale := affine.AverageScale()
		for i := range data.Patches {
			p := &data.Patches[i]
			q := affine.Apply(geometry.Point{X: p.X, Y: p.Y})
			p.X, p.Y = q.X, q.Y
			p.Radius *= scale
			changed++
		}
		for i := range data.DestructiveTests {
			d := &data.DestructiveTests[i]
			q := affine.Apply(geometry.Point{X: d.X, Y: d.Y})
			d.X, d.Y = q.X, q.Y
			d.Width *= scale
			d.Height *= scale
			changed++
		}
	}
	return &models.ExecutionResult{
		Success:      true,
		Message:      "transform applied",
		ItemsChanged: changed,
	}, nil
}

func (s *governanceService) clampLayoutToBounds(ctx context.Context, op *models.ComplianceOperation, data *models.LayoutData) (*models.ExecutionResult, error) {
	var payload ClampPayload
	if err := json.Unmarshal(op.OperationData, &payload); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "decode operation payload failed")
	}

	bounds, err := s.clampBounds(ctx, op.ProjectID, payload.Bounds)
	if err != nil {
		return nil, err
	}

	changed := 0
	var flagged []string
	// clampRect returns the clamped min corner of b, or ok=false when the
	// strategy flags instead of moving.
	clampRect := func(id string, b geometry.Bounds) (nx, ny float64, ok bool) {
		if bounds.Contains(b) {
			return 0, 0, false
		}
		if payload.Strategy == models.ClampStrategyRejectAndFlag {
			flagged = append(flagged, id)
			return 0, 0, false
		}
		nx, ny = moveInside(b, bounds)
		changed++
		return nx, ny, true
	}

	for i := range data.Panels {
		p := &data.Panels[i]
		if nx, ny, ok := clampRect(p.ID, geometry.RectBounds(p.X, p.Y, p.Width, p.Height)); ok {
			p.X, p.Y = nx, ny
		}
	}
	for i := range data.Patches {
		p := &data.Patches[i]
		// Patch coordinates are the circle center.
		if nx, ny, ok := clampRect(p.ID, geometry.SquareBounds(p.X, p.Y, p.Radius)); ok {
			p.X, p.Y = nx+p.Radius, ny+p.Radius
		}
	}
	for i := range data.DestructiveTests {
		d := &data.DestructiveTests[i]
		if nx, ny, ok := clampRect(d.ID, geometry.RectBounds(d.X, d.Y, d.Width, d.Height)); ok {
			d.X, d.Y = nx, ny
		}
	}

	msg := fmt.Sprintf("%d items moved inside bounds", changed)
	if payload.Strategy == models.ClampStrategyRejectAndFlag {
		msg = fmt.Sprintf("%d items flagged for review", len(flagged))
	}
	return &models.ExecutionResult{
		Success:      true,
		Message:      msg,
		ItemsChanged: changed,
		FlaggedItems: flagged,
	}, nil
}

// clampBounds picks the clamp target: the explicit payload bounds, or
// the plan extents mapped into layout space through the active
// transform.
func (s *governanceService) clampBounds(ctx context.Context, projectID uuid.UUID, explicit *geometry.Bounds) (geometry.Bounds, error) {
	if explicit != nil {
		return *explicit, nil
	}
	var pgm models.PlanGeometryModel
	if err := s.geometryRepo.GetLatestByProject(ctx, projectID, &pgm); err != nil {
		return geometry.Bounds{}, err
	}
	extents, err := planExtents(&pgm)
	if err != nil {
		return geometry.Bounds{}, err
	}
	var t models.LayoutTransform
	if err := s.transformRepo.GetActiveByProject(ctx, projectID, &t); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return extents, nil
		}
		return geometry.Bounds{}, err
	}
	affine := affineFromModel(&t)
	corners := affine.ApplyAll(boundsCorners(extents))
	mapped, ok := geometry.BoundsOfPoints(corners)
	if !ok {
		return extents, nil
	}
	return mapped, nil
}

// moveInside returns the nearest position that puts a rectangle of the
// same size fully inside bounds. Oversized rectangles are pinned to the
// min corner.
func moveInside(item, bounds geometry.Bounds) (x, y float64) {
	x, y = item.MinX, item.MinY
	if x < bounds.MinX {
		x = bounds.MinX
	}
	if y < bounds.MinY {
		y = bounds.MinY
	}
	if x+item.Width() > bounds.MaxX {
		x = bounds.MaxX - item.Width()
	}
	if y+item.Height() > bounds.MaxY {
		y = bounds.MaxY - item.Height()
	}
	if x < bounds.MinX {
		x = bounds.MinX
	}
	if y < bounds.MinY {
		y = bounds.MinY
	}
	return x, y
}
