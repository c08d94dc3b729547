package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/panelproof/engine/internal/geometry"
	"github.com/panelproof/engine/internal/models"
	appErr "github.com/panelproof/engine/pkg/errors"
)

func newGovernanceFixture() (*mockOperationRepository, *mockTransformRepository, *mockLayoutRepository, *mockGeometryRepository, GovernanceService) {
	opRepo := new(mockOperationRepository)
	tRepo := new(mockTransformRepository)
	lRepo := new(mockLayoutRepository)
	geoRepo := new(mockGeometryRepository)
	svc := NewGovernanceService(opRepo, tRepo, lRepo, geoRepo)
	return opRepo, tRepo, lRepo, geoRepo, svc
}

func TestProposeShapeCorrectionIsCritical(t *testing.T) {
	projectID := uuid.New()
	layout := layoutWith(t, projectID, &models.LayoutData{
		Panels: []models.Panel{{ID: "p1", X: 10, Y: 10, Width: 40, Height: 100, Shape: "trapezoid"}},
	})

	opRepo, _, lRepo, _, svc := newGovernanceFixture()
	lRepo.On("GetByProject", mock.Anything, projectID, mock.Anything).Return(nil, layout)
	opRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	op, err := svc.ProposeShapeCorrection(context.Background(), projectID, &ShapeCorrectionPayload{
		PanelIDs:      []string{"p1"},
		ProposedShape: "rectangle",
		Reason:        "trapezoid panels are not in the approved material list",
	}, "inspector-1")
	require.NoError(t, err)
	require.Equal(t, models.RiskCritical, op.RiskLevel)
	require.Equal(t, models.OperationStatusPending, op.Status)
	require.True(t, op.RequiresApproval)
	require.NotEmpty(t, op.BeforeSnapshot)

	var plan models.ChangePlan
	require.NoError(t, json.Unmarshal(op.ChangePlan, &plan))
	require.Equal(t, []string{"p1"}, plan.AffectedItems)
}

func TestClampRiskDependsOnStrategy(t *testing.T) {
	projectID := uuid.New()
	layout := layoutWith(t, projectID, &models.LayoutData{})

	opRepo, _, lRepo, _, svc := newGovernanceFixture()
	lRepo.On("GetByProject", mock.Anything, projectID, mock.Anything).Return(nil, layout)
	opRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	moveOp, err := svc.ProposeClampToBoundary(context.Background(), projectID, &ClampPayload{
		Strategy: models.ClampStrategyMoveInside,
	}, "inspector-1")
	require.NoError(t, err)
	require.Equal(t, models.RiskMedium, moveOp.RiskLevel)
	require.False(t, moveOp.RequiresApproval)

	flagOp, err := svc.ProposeClampToBoundary(context.Background(), projectID, &ClampPayload{
		Strategy: models.ClampStrategyRejectAndFlag,
	}, "inspector-1")
	require.NoError(t, err)
	require.Equal(t, models.RiskHigh, flagOp.RiskLevel)
	require.True(t, flagOp.RequiresApproval)
}

func TestApproveAlreadyResolvedOperation(t *testing.T) {
	opID := uuid.New()

	opRepo, _, _, _, svc := newGovernanceFixture()
	opRepo.On("TransitionStatus", mock.Anything, opID, models.OperationStatusPending, models.OperationStatusApproved, mock.Anything).
		Return(appErr.New(appErr.CodeAlreadyResolved, "operation is not in state pending"))

	_, err := svc.ApproveOperation(context.Background(), opID, "supervisor-1", true)
	require.Error(t, err)
	require.True(t, appErr.IsCode(err, appErr.CodeAlreadyResolved))
}

func TestExecuteShapeCorrectionDoesNotMutateLayout(t *testing.T) {
	projectID := uuid.New()
	opID := uuid.New()
	layout := layoutWith(t, projectID, &models.LayoutData{
		Panels: []models.Panel{{ID: "p1", X: 10, Y: 10, Width: 40, Height: 100, Shape: "trapezoid"}},
	})

	payload, err := json.Marshal(&ShapeCorrectionPayload{PanelIDs: []string{"p1"}})
	require.NoError(t, err)
	op := &models.ComplianceOperation{
		ID:            opID,
		ProjectID:     projectID,
		OperationType: models.OperationProposeShapeCorrection,
		OperationData: payload,
		RiskLevel:     models.RiskCritical,
		Status:        models.OperationStatusApproved,
	}

	opRepo, _, lRepo, _, svc := newGovernanceFixture()
	opRepo.On("GetByID", mock.Anything, opID, mock.Anything).Return(nil, op)
	lRepo.On("GetByProject", mock.Anything, projectID, mock.Anything).Return(nil, layout)
	var resultJSON datatypes.JSON
	opRepo.On("MarkApplied", mock.Anything, opID, models.OperationStatusApproved, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		resultJSON = args.Get(4).(datatypes.JSON)
	}).Return(nil)

	_, err = svc.ExecuteOperation(context.Background(), opID)
	require.NoError(t, err)

	// The layout write path must never run for a shape correction.
	lRepo.AssertNotCalled(t, "UpdateVersioned", mock.Anything, mock.Anything, mock.Anything)
	opRepo.AssertCalled(t, "MarkApplied", mock.Anything, opID, models.OperationStatusApproved, mock.Anything, mock.Anything)

	// The recorded result must make clear nothing was auto-applied.
	var result models.ExecutionResult
	require.NoError(t, json.Unmarshal(resultJSON, &result))
	require.False(t, result.Success)
	require.Contains(t, result.Message, "manual intervention required")
}

func TestExecuteClampMovesPanelInside(t *testing.T) {
	projectID := uuid.New()
	opID := uuid.New()
	layout := layoutWith(t, projectID, &models.LayoutData{
		Panels: []models.Panel{
			{ID: "in", X: 100, Y: 100, Width: 40, Height: 100, Shape: "rectangle"},
			{ID: "out", X: 1100, Y: 50, Width: 40, Height: 100, Shape: "rectangle"},
		},
	})

	bounds := geometry.Bounds{MinX: 0, MinY: 0, MaxX: 1000, MaxY: 800}
	payload, err := json.Marshal(&ClampPayload{Strategy: models.ClampStrategyMoveInside, Bounds: &bounds})
	require.NoError(t, err)
	op := &models.ComplianceOperation{
		ID:            opID,
		ProjectID:     projectID,
		OperationType: models.OperationClampToBoundary,
		OperationData: payload,
		RiskLevel:     models.RiskMedium,
		Status:        models.OperationStatusApproved,
	}

	opRepo, _, lRepo, _, svc := newGovernanceFixture()
	opRepo.On("GetByID", mock.Anything, opID, mock.Anything).Return(nil, op)
	lRepo.On("GetByProject", mock.Anything, projectID, mock.Anything).Return(nil, layout)
	var written *models.PanelLayout
	lRepo.On("UpdateVersioned", mock.Anything, mock.Anything, 1).Run(func(args mock.Arguments) {
		written = args.Get(1).(*models.PanelLayout)
	}).Return(nil)
	opRepo.On("MarkApplied", mock.Anything, opID, models.OperationStatusApproved, mock.Anything, mock.Anything).Return(nil)

	_, err = svc.ExecuteOperation(context.Background(), opID)
	require.NoError(t, err)
	require.NotNil(t, written)

	data, err := written.Decode()
	require.NoError(t, err)
	require.Equal(t, 960.0, data.Panels[1].X)
	require.Equal(t, 50.0, data.Panels[1].Y)
	// The in-bounds panel stays put.
	require.Equal(t, 100.0, data.Panels[0].X)
}

func TestExecuteRejectAndFlagLeavesLayoutUntouched(t *testing.T) {
	projectID := uuid.New()
	opID := uuid.New()
	layout := layoutWith(t, projectID, &models.LayoutData{
		Panels: []models.Panel{{ID: "out", X: 1100, Y: 50, Width: 40, Height: 100, Shape: "rectangle"}},
	})

	bounds := geometry.Bounds{MinX: 0, MinY: 0, MaxX: 1000, MaxY: 800}
	payload, err := json.Marshal(&ClampPayload{Strategy: models.ClampStrategyRejectAndFlag, Bounds: &bounds})
	require.NoError(t, err)
	op := &models.ComplianceOperation{
		ID:            opID,
		ProjectID:     projectID,
		OperationType: models.OperationClampToBoundary,
		OperationData: payload,
		RiskLevel:     models.RiskHigh,
		Status:        models.OperationStatusApproved,
	}

	opRepo, _, lRepo, _, svc := newGovernanceFixture()
	opRepo.On("GetByID", mock.Anything, opID, mock.Anything).Return(nil, op)
	lRepo.On("GetByProject", mock.Anything, projectID, mock.Anything).Return(nil, layout)
	var resultJSON datatypes.JSON
	opRepo.On("MarkApplied", mock.Anything, opID, models.OperationStatusApproved, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		resultJSON = args.Get(4).(datatypes.JSON)
	}).Return(nil)

	_, err = svc.ExecuteOperation(context.Background(), opID)
	require.NoError(t, err)
	lRepo.AssertNotCalled(t, "UpdateVersioned", mock.Anything, mock.Anything, mock.Anything)

	var result models.ExecutionResult
	require.NoError(t, json.Unmarshal(resultJSON, &result))
	require.Equal(t, []string{"out"}, result.FlaggedItems)
	require.Zero(t, result.ItemsChanged)
}

func TestExecuteRetriesOnceOnVersionConflict(t *testing.T) {
	projectID := uuid.New()
	opID := uuid.New()
	layout := layoutWith(t, projectID, &models.LayoutData{
		Panels: []models.Panel{{ID: "out", X: 1100, Y: 50, Width: 40, Height: 100, Shape: "rectangle"}},
	})

	bounds := geometry.Bounds{MinX: 0, MinY: 0, MaxX: 1000, MaxY: 800}
	payload, err := json.Marshal(&ClampPayload{Strategy: models.ClampStrategyMoveInside, Bounds: &bounds})
	require.NoError(t, err)
	op := &models.ComplianceOperation{
		ID:            opID,
		ProjectID:     projectID,
		OperationType: models.OperationClampToBoundary,
		OperationData: payload,
		RiskLevel:     models.RiskMedium,
		Status:        models.OperationStatusApproved,
	}

	opRepo, _, lRepo, _, svc := newGovernanceFixture()
	opRepo.On("GetByID", mock.Anything, opID, mock.Anything).Return(nil, op)
	lRepo.On("GetByProject", mock.Anything, projectID, mock.Anything).Return(nil, layout)
	lRepo.On("UpdateVersioned", mock.Anything, mock.Anything, 1).
		Return(appErr.New(appErr.CodeConflict, "panel layout was modified concurrently")).Once()
	lRepo.On("UpdateVersioned", mock.Anything, mock.Anything, 1).Return(nil).Once()
	opRepo.On("MarkApplied", mock.Anything, opID, models.OperationStatusApproved, mock.Anything, mock.Anything).Return(nil)

	_, err = svc.ExecuteOperation(context.Background(), opID)
	require.NoError(t, err)
	lRepo.AssertNumberOfCalls(t, "UpdateVersioned", 2)
}

func TestExecuteFailureKeepsOperationApproved(t *testing.T) {
	projectID := uuid.New()
	opID := uuid.New()
	layout := layoutWith(t, projectID, &models.LayoutData{
		Panels: []models.Panel{{ID: "out", X: 1100, Y: 50, Width: 40, Height: 100, Shape: "rectangle"}},
	})

	bounds := geometry.Bounds{MinX: 0, MinY: 0, MaxX: 1000, MaxY: 800}
	payload, err := json.Marshal(&ClampPayload{Strategy: models.ClampStrategyMoveInside, Bounds: &bounds})
	require.NoError(t, err)
	op := &models.ComplianceOperation{
		ID:            opID,
		ProjectID:     projectID,
		OperationType: models.OperationClampToBoundary,
		OperationData: payload,
		RiskLevel:     models.RiskMedium,
		Status:        models.OperationStatusApproved,
	}

	opRepo, _, lRepo, _, svc := newGovernanceFixture()
	opRepo.On("GetByID", mock.Anything, opID, mock.Anything).Return(nil, op)
	lRepo.On("GetByProject", mock.Anything, projectID, mock.Anything).Return(nil, layout)
	lRepo.On("UpdateVersioned", mock.Anything, mock.Anything, 1).
		Return(appErr.New(appErr.CodeConflict, "panel layout was modified concurrently"))
	opRepo.On("RecordExecutionFailure", mock.Anything, opID, mock.Anything).Return(nil)

	_, err = svc.ExecuteOperation(context.Background(), opID)
	require.Error(t, err)
	require.True(t, appErr.IsCode(err, appErr.CodeExecutionFailed))
	opRepo.AssertNotCalled(t, "MarkApplied", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	opRepo.AssertCalled(t, "RecordExecutionFailure", mock.Anything, opID, mock.Anything)
}

func TestExecutePendingOperationWithoutApprovalRequirement(t *testing.T) {
	projectID := uuid.New()
	opID := uuid.New()
	layout := layoutWith(t, projectID, &models.LayoutData{
		Panels: []models.Panel{{ID: "out", X: 1100, Y: 50, Width: 40, Height: 100, Shape: "rectangle"}},
	})

	bounds := geometry.Bounds{MinX: 0, MinY: 0, MaxX: 1000, MaxY: 800}
	payload, err := json.Marshal(&ClampPayload{Strategy: models.ClampStrategyMoveInside, Bounds: &bounds})
	require.NoError(t, err)
	op := &models.ComplianceOperation{
		ID:               opID,
		ProjectID:        projectID,
		OperationType:    models.OperationClampToBoundary,
		OperationData:    payload,
		RiskLevel:        models.RiskMedium,
		Status:           models.OperationStatusPending,
		RequiresApproval: false,
	}

	opRepo, _, lRepo, _, svc := newGovernanceFixture()
	opRepo.On("GetByID", mock.Anything, opID, mock.Anything).Return(nil, op)
	lRepo.On("GetByProject", mock.Anything, projectID, mock.Anything).Return(nil, layout)
	lRepo.On("UpdateVersioned", mock.Anything, mock.Anything, 1).Return(nil)
	opRepo.On("MarkApplied", mock.Anything, opID, models.OperationStatusPending, mock.Anything, mock.Anything).Return(nil)

	_, err = svc.ExecuteOperation(context.Background(), opID)
	require.NoError(t, err)
	opRepo.AssertCalled(t, "MarkApplied", mock.Anything, opID, models.OperationStatusPending, mock.Anything, mock.Anything)
}

func TestExecutePendingOperationRequiringApprovalIsRefused(t *testing.T) {
	opID := uuid.New()
	op := &models.ComplianceOperation{
		ID:               opID,
		ProjectID:        uuid.New(),
		OperationType:    models.OperationApplyLayoutTransform,
		RiskLevel:        models.RiskHigh,
		Status:           models.OperationStatusPending,
		RequiresApproval: true,
	}

	opRepo, _, lRepo, _, svc := newGovernanceFixture()
	opRepo.On("GetByID", mock.Anything, opID, mock.Anything).Return(nil, op)

	_, err := svc.ExecuteOperation(context.Background(), opID)
	require.Error(t, err)
	require.True(t, appErr.IsCode(err, appErr.CodeAlreadyResolved))
	lRepo.AssertNotCalled(t, "GetByProject", mock.Anything, mock.Anything, mock.Anything)
}

func TestRejectRecordsRejectingUser(t *testing.T) {
	opID := uuid.New()
	op := &models.ComplianceOperation{
		ID:         opID,
		ProjectID:  uuid.New(),
		Status:     models.OperationStatusRejected,
		RejectedBy: "supervisor-2",
	}

	opRepo, _, _, _, svc := newGovernanceFixture()
	opRepo.On("TransitionStatus", mock.Anything, opID, models.OperationStatusPending, models.OperationStatusRejected,
		mock.MatchedBy(func(updates map[string]any) bool {
			v, ok := updates["rejected_by"]
			_, wrongColumn := updates["approved_by"]
			return ok && v == "supervisor-2" && !wrongColumn
		})).Return(nil)
	opRepo.On("GetByID", mock.Anything, opID, mock.Anything).Return(nil, op)

	got, err := svc.RejectOperation(context.Background(), opID, "supervisor-2")
	require.NoError(t, err)
	require.Equal(t, "supervisor-2", got.RejectedBy)
	require.Empty(t, got.ApprovedBy)
}
