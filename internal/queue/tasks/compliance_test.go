package tasks

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/panelproof/engine/internal/models"
	"github.com/panelproof/engine/internal/services"
	"github.com/panelproof/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests (required by tasks)
	_, err := logger.Init("info", "json")
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

type mockExtractionService struct {
	mock.Mock
}

func (m *mockExtractionService) ExtractPlanGeometry(ctx context.Context, projectID uuid.UUID, documentIDs []uuid.UUID, opts *services.ExtractOptions) (*services.ExtractResult, error) {
	args := m.Called(ctx, projectID, documentIDs, opts)
	if v := args.Get(0); v != nil {
		return v.(*services.ExtractResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockComplianceService struct {
	mock.Mock
}

func (m *mockComplianceService) ValidateFormCompliance(ctx context.Context, projectID uuid.UUID) (*services.ComplianceReport, error) {
	args := m.Called(ctx, projectID)
	if v := args.Get(0); v != nil {
		return v.(*services.ComplianceReport), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockComplianceService) ValidateLayoutCompliance(ctx context.Context, projectID uuid.UUID) (*services.ComplianceReport, error) {
	args := m.Called(ctx, projectID)
	if v := args.Get(0); v != nil {
		return v.(*services.ComplianceReport), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockComplianceService) EnqueueRevalidation(ctx context.Context, projectID uuid.UUID) error {
	args := m.Called(ctx, projectID)
	return args.Error(0)
}

func TestHandleGeometryExtract(t *testing.T) {
	projectID := uuid.New()
	docID := uuid.New()

	extSvc := new(mockExtractionService)
	extSvc.On("ExtractPlanGeometry", mock.Anything, projectID, []uuid.UUID{docID}, mock.Anything).
		Return(&services.ExtractResult{PlanGeometryModelID: uuid.New(), ExtractionMethod: models.ExtractionMethodAI}, nil)

	h := NewComplianceTaskHandler(extSvc, nil)
	pb, err := json.Marshal(ExtractPayload{ProjectID: projectID.String(), DocumentIDs: []string{docID.String()}})
	require.NoError(t, err)

	err = h.HandleGeometryExtract(context.Background(), asynq.NewTask(TypeGeometryExtract, pb))
	require.NoError(t, err)
	extSvc.AssertExpectations(t)
}

func TestHandleGeometryExtractRejectsBadPayload(t *testing.T) {
	h := NewComplianceTaskHandler(new(mockExtractionService), nil)
	err := h.HandleGeometryExtract(context.Background(), asynq.NewTask(TypeGeometryExtract, []byte("{")))
	require.Error(t, err)
}

func TestHandleComplianceRevalidate(t *testing.T) {
	projectID := uuid.New()

	compSvc := new(mockComplianceService)
	compSvc.On("ValidateLayoutCompliance", mock.Anything, projectID).
		Return(&services.ComplianceReport{ProjectID: projectID, Success: true, Passed: true}, nil)

	h := NewComplianceTaskHandler(nil, compSvc)
	pb, err := json.Marshal(RevalidatePayload{ProjectID: projectID.String()})
	require.NoError(t, err)

	err = h.HandleComplianceRevalidate(context.Background(), asynq.NewTask(TypeComplianceRevalidate, pb))
	require.NoError(t, err)
	compSvc.AssertExpectations(t)
}

func TestHandleComplianceRevalidateRejectsBadProjectID(t *testing.T) {
	h := NewComplianceTaskHandler(nil, new(mockComplianceService))
	pb, err := json.Marshal(RevalidatePayload{ProjectID: "not-a-uuid"})
	require.NoError(t, err)

	err = h.HandleComplianceRevalidate(context.Background(), asynq.NewTask(TypeComplianceRevalidate, pb))
	require.Error(t, err)
}
