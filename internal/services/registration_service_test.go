package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/panelproof/engine/internal/geometry"
	"github.com/panelproof/engine/internal/models"
	appErr "github.com/panelproof/engine/pkg/errors"
)

func newRegistrationFixture() (*mockGeometryRepository, *mockTransformRepository, *mockLayoutRepository, RegistrationService) {
	geoRepo := new(mockGeometryRepository)
	tRepo := new(mockTransformRepository)
	lRepo := new(mockLayoutRepository)
	svc := NewRegistrationService(geoRepo, tRepo, lRepo)
	return geoRepo, tRepo, lRepo, svc
}

func TestRegisterWithAnchorPoints(t *testing.T) {
	projectID := uuid.New()
	pgm := sitePlan(t, projectID, 1000, 800)

	geoRepo, tRepo, _, svc := newRegistrationFixture()
	geoRepo.On("GetByID", mock.Anything, pgm.ID, mock.Anything).Return(nil, pgm)
	var stored *models.LayoutTransform
	tRepo.On("CreateActive", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).(*models.LayoutTransform)
	}).Return(nil)

	// Pure translation by (10, 20).
	res, err := svc.RegisterLayoutToPlan(context.Background(), &RegisterInput{
		ProjectID:           projectID,
		PlanGeometryModelID: pgm.ID,
		Method:              models.RegistrationMethodAnchorPoints,
		Anchors: []geometry.Anchor{
			{Plan: geometry.Point{X: 0, Y: 0}, Layout: geometry.Point{X: 10, Y: 20}},
			{Plan: geometry.Point{X: 100, Y: 0}, Layout: geometry.Point{X: 110, Y: 20}},
			{Plan: geometry.Point{X: 0, Y: 100}, Layout: geometry.Point{X: 10, Y: 120}},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.InDelta(t, 10, stored.TranslationX, 1e-9)
	require.InDelta(t, 20, stored.TranslationY, 1e-9)
	require.InDelta(t, 1, stored.ScaleX, 1e-9)
	require.True(t, stored.IsUniformScale)
	require.True(t, stored.IsActive)
	require.NotNil(t, res.ResidualError)
	require.InDelta(t, 0, *res.ResidualError, 1e-9)
	// Exact anchors keep confidence at the cap.
	require.InDelta(t, 0.9, res.ConfidenceScore, 1e-9)
}

func TestRegisterRejectsSingleAnchor(t *testing.T) {
	projectID := uuid.New()
	pgm := sitePlan(t, projectID, 1000, 800)

	geoRepo, _, _, svc := newRegistrationFixture()
	geoRepo.On("GetByID", mock.Anything, pgm.ID, mock.Anything).Return(nil, pgm)

	_, err := svc.RegisterLayoutToPlan(context.Background(), &RegisterInput{
		ProjectID:           projectID,
		PlanGeometryModelID: pgm.ID,
		Method:              models.RegistrationMethodAnchorPoints,
		Anchors: []geometry.Anchor{
			{Plan: geometry.Point{X: 0, Y: 0}, Layout: geometry.Point{X: 10, Y: 20}},
		},
	})
	require.Error(t, err)
	require.True(t, appErr.IsCode(err, appErr.CodeInsufficientAnchors))
}

func TestRegisterRejectsUnknownMethod(t *testing.T) {
	projectID := uuid.New()
	pgm := sitePlan(t, projectID, 1000, 800)

	geoRepo, _, _, svc := newRegistrationFixture()
	geoRepo.On("GetByID", mock.Anything, pgm.ID, mock.Anything).Return(nil, pgm)

	_, err := svc.RegisterLayoutToPlan(context.Background(), &RegisterInput{
		ProjectID:           projectID,
		PlanGeometryModelID: pgm.ID,
		Method:              "freehand",
	})
	require.Error(t, err)
	require.True(t, appErr.IsCode(err, appErr.CodeInvalidMethod))
}

func TestRegisterRejectsForeignPlanGeometry(t *testing.T) {
	projectID := uuid.New()
	pgm := sitePlan(t, uuid.New(), 1000, 800)

	geoRepo, _, _, svc := newRegistrationFixture()
	geoRepo.On("GetByID", mock.Anything, pgm.ID, mock.Anything).Return(nil, pgm)

	_, err := svc.RegisterLayoutToPlan(context.Background(), &RegisterInput{
		ProjectID:           projectID,
		PlanGeometryModelID: pgm.ID,
		Method:              models.RegistrationMethodManual,
		Manual:              &geometry.Affine{ScaleX: 1, ScaleY: 1},
	})
	require.Error(t, err)
	require.True(t, appErr.IsCode(err, appErr.CodeInvalid))
}

func TestRegisterBoundaryFitUsesLayoutExtents(t *testing.T) {
	projectID := uuid.New()
	pgm := sitePlan(t, projectID, 1000, 800)
	layout := layoutWith(t, projectID, &models.LayoutData{
		Panels: []models.Panel{
			{ID: "a", X: 0, Y: 0, Width: 100, Height: 100, Shape: "rectangle"},
			{ID: "b", X: 1900, Y: 1500, Width: 100, Height: 100, Shape: "rectangle"},
		},
	})

	geoRepo, tRepo, lRepo, svc := newRegistrationFixture()
	geoRepo.On("GetByID", mock.Anything, pgm.ID, mock.Anything).Return(nil, pgm)
	lRepo.On("GetByProject", mock.Anything, projectID, mock.Anything).Return(nil, layout)
	var stored *models.LayoutTransform
	tRepo.On("CreateActive", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).(*models.LayoutTransform)
	}).Return(nil)

	// Layout spans 2000x1600 against a 1000x800 plan.
	res, err := svc.RegisterLayoutToPlan(context.Background(), &RegisterInput{
		ProjectID:           projectID,
		PlanGeometryModelID: pgm.ID,
		Method:              models.RegistrationMethodBoundaryFit,
	})
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.InDelta(t, 2.0, stored.ScaleX, 1e-9)
	require.InDelta(t, 2.0, stored.ScaleY, 1e-9)
	require.Equal(t, 0.6, res.ConfidenceScore)
	require.Empty(t, stored.AnchorPoints)
}

func TestGetActiveTransform(t *testing.T) {
	projectID := uuid.New()
	tr := identityTransform(projectID, uuid.New())

	_, tRepo, _, svc := newRegistrationFixture()
	tRepo.On("GetActiveByProject", mock.Anything, projectID, mock.Anything).Return(nil, tr)

	got, err := svc.GetActiveTransform(context.Background(), projectID)
	require.NoError(t, err)
	require.Equal(t, tr.ID, got.ID)
}
