package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/panelproof/engine/internal/models"
)

func mustJSON(t *testing.T, v any) datatypes.JSON {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return datatypes.JSON(b)
}

func sitePlan(t *testing.T, projectID uuid.UUID, width, height float64) *models.PlanGeometryModel {
	t.Helper()
	boundary := []models.PointJSON{
		{X: 0, Y: 0}, {X: width, Y: 0}, {X: width, Y: height}, {X: 0, Y: height},
	}
	return &models.PlanGeometryModel{
		ID:               uuid.New(),
		ProjectID:        projectID,
		SiteBoundary:     mustJSON(t, boundary),
		SiteWidth:        width,
		SiteHeight:       height,
		Units:            "ft",
		ConfidenceScore:  0.9,
		ExtractionMethod: models.ExtractionMethodAI,
	}
}

func identityTransform(projectID, pgmID uuid.UUID) *models.LayoutTransform {
	return &models.LayoutTransform{
		ID:                  uuid.New(),
		ProjectID:           projectID,
		PlanGeometryModelID: pgmID,
		ScaleX:              1,
		ScaleY:              1,
		Method:              models.RegistrationMethodManual,
		ConfidenceScore:     1,
		IsUniformScale:      true,
		IsActive:            true,
	}
}

func layoutWith(t *testing.T, projectID uuid.UUID, data *models.LayoutData) *models.PanelLayout {
	t.Helper()
	l := &models.PanelLayout{ID: uuid.New(), ProjectID: projectID, Version: 1}
	require.NoError(t, l.Encode(data))
	return l
}

func newValidationFixture() (*mockGeometryRepository, *mockTransformRepository, *mockLayoutRepository, *mockValidationRepository, ValidationService) {
	geoRepo := new(mockGeometryRepository)
	tRepo := new(mockTransformRepository)
	lRepo := new(mockLayoutRepository)
	vRepo := new(mockValidationRepository)
	svc := NewValidationService(geoRepo, tRepo, lRepo, vRepo)
	return geoRepo, tRepo, lRepo, vRepo, svc
}

func TestValidateScaleWithinTolerance(t *testing.T) {
	projectID := uuid.New()
	pgm := sitePlan(t, projectID, 1000, 800)

	tr := identityTransform(projectID, pgm.ID)
	tr.ScaleX, tr.ScaleY = 1.02, 1.02

	geoRepo, tRepo, _, vRepo, svc := newValidationFixture()
	geoRepo.On("GetByID", mock.Anything, pgm.ID, mock.Anything).Return(nil, pgm)
	tRepo.On("GetActiveByProject", mock.Anything, projectID, mock.Anything).Return(nil, tr)
	vRepo.On("Append", mock.Anything, mock.Anything).Return(nil)

	v, err := svc.ValidateScale(context.Background(), projectID, pgm.ID, nil)
	require.NoError(t, err)
	require.True(t, v.Passed)
	require.Equal(t, 1.0, v.ComplianceScore)
	require.NotNil(t, v.ScaleDeltaPercent)
	require.InDelta(t, 2.0, *v.ScaleDeltaPercent, 1e-9)
	vRepo.AssertCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestValidateScaleDeviationFails(t *testing.T) {
	projectID := uuid.New()
	pgm := sitePlan(t, projectID, 1000, 800)

	tr := identityTransform(projectID, pgm.ID)
	tr.ScaleX, tr.ScaleY = 1.2, 1.2

	geoRepo, tRepo, _, vRepo, svc := newValidationFixture()
	geoRepo.On("GetByID", mock.Anything, pgm.ID, mock.Anything).Return(nil, pgm)
	tRepo.On("GetActiveByProject", mock.Anything, projectID, mock.Anything).Return(nil, tr)
	vRepo.On("Append", mock.Anything, mock.Anything).Return(nil)

	v, err := svc.ValidateScale(context.Background(), projectID, pgm.ID, nil)
	require.NoError(t, err)
	require.False(t, v.Passed)
	require.InDelta(t, 20.0, *v.ScaleDeltaPercent, 1e-9)

	var issues []models.ValidationIssue
	require.NoError(t, json.Unmarshal(v.Issues, &issues))
	require.Len(t, issues, 1)
	require.NotEmpty(t, issues[0].RecommendedCorrection)
}

func TestValidateScaleNonUniform(t *testing.T) {
	projectID := uuid.New()
	pgm := sitePlan(t, projectID, 1000, 800)

	tr := identityTransform(projectID, pgm.ID)
	tr.ScaleX, tr.ScaleY = 1.0, 1.01

	geoRepo, tRepo, _, vRepo, svc := newValidationFixture()
	geoRepo.On("GetByID", mock.Anything, pgm.ID, mock.Anything).Return(nil, pgm)
	tRepo.On("GetActiveByProject", mock.Anything, projectID, mock.Anything).Return(nil, tr)
	vRepo.On("Append", mock.Anything, mock.Anything).Return(nil)

	v, err := svc.ValidateScale(context.Background(), projectID, pgm.ID, nil)
	require.NoError(t, err)
	require.False(t, v.Passed)
}

func TestValidateBoundaryFlagsPanelOutsideSite(t *testing.T) {
	projectID := uuid.New()
	pgm := sitePlan(t, projectID, 1000, 800)

	layout := layoutWith(t, projectID, &models.LayoutData{
		Panels: []models.Panel{
			{ID: "p1", X: 100, Y: 100, Width: 40, Height: 100, Shape: "rectangle"},
			{ID: "p2", X: 1100, Y: 50, Width: 40, Height: 100, Shape: "rectangle"},
		},
	})
	tr := identityTransform(projectID, pgm.ID)

	geoRepo, tRepo, lRepo, vRepo, svc := newValidationFixture()
	geoRepo.On("GetByID", mock.Anything, pgm.ID, mock.Anything).Return(nil, pgm)
	lRepo.On("GetByProject", mock.Anything, projectID, mock.Anything).Return(nil, layout)
	tRepo.On("GetActiveByProject", mock.Anything, projectID, mock.Anything).Return(nil, tr)
	vRepo.On("Append", mock.Anything, mock.Anything).Return(nil)

	v, err := svc.ValidateBoundary(context.Background(), projectID, pgm.ID, nil)
	require.NoError(t, err)
	require.False(t, v.Passed)
	require.NotNil(t, v.BoundaryViolations)
	require.Equal(t, 1, *v.BoundaryViolations)
	require.InDelta(t, 0.5, v.ComplianceScore, 1e-9)

	var issues []models.ValidationIssue
	require.NoError(t, json.Unmarshal(v.Issues, &issues))
	require.Len(t, issues, 1)
	require.Equal(t, "p2", issues[0].ItemID)
}

func TestValidateBoundaryNoGoZoneOverlap(t *testing.T) {
	projectID := uuid.New()
	pgm := sitePlan(t, projectID, 1000, 800)
	pgm.NoGoZones = mustJSON(t, []models.NoGoZone{{
		Label: "easement",
		Polygon: []models.PointJSON{
			{X: 200, Y: 200}, {X: 300, Y: 200}, {X: 300, Y: 300}, {X: 200, Y: 300},
		},
	}})

	layout := layoutWith(t, projectID, &models.LayoutData{
		Panels: []models.Panel{
			{ID: "clear", X: 500, Y: 500, Width: 40, Height: 100, Shape: "rectangle"},
			{ID: "inside-zone", X: 240, Y: 240, Width: 40, Height: 40, Shape: "rectangle"},
		},
	})

	geoRepo, tRepo, lRepo, vRepo, svc := newValidationFixture()
	geoRepo.On("GetByID", mock.Anything, pgm.ID, mock.Anything).Return(nil, pgm)
	lRepo.On("GetByProject", mock.Anything, projectID, mock.Anything).Return(nil, layout)
	tRepo.On("GetActiveByProject", mock.Anything, projectID, mock.Anything).Return(nil, identityTransform(projectID, pgm.ID))
	vRepo.On("Append", mock.Anything, mock.Anything).Return(nil)

	v, err := svc.ValidateBoundary(context.Background(), projectID, pgm.ID, nil)
	require.NoError(t, err)
	require.False(t, v.Passed)

	var issues []models.ValidationIssue
	require.NoError(t, json.Unmarshal(v.Issues, &issues))
	require.Len(t, issues, 1)
	require.Equal(t, "inside-zone", issues[0].ItemID)
	require.Contains(t, issues[0].Issue, "easement")
}

func TestValidateBoundaryEmptyLayoutPasses(t *testing.T) {
	projectID := uuid.New()
	pgm := sitePlan(t, projectID, 1000, 800)
	layout := layoutWith(t, projectID, &models.LayoutData{})

	geoRepo, tRepo, lRepo, vRepo, svc := newValidationFixture()
	geoRepo.On("GetByID", mock.Anything, pgm.ID, mock.Anything).Return(nil, pgm)
	lRepo.On("GetByProject", mock.Anything, projectID, mock.Anything).Return(nil, layout)
	tRepo.On("GetActiveByProject", mock.Anything, projectID, mock.Anything).Return(nil, identityTransform(projectID, pgm.ID))
	vRepo.On("Append", mock.Anything, mock.Anything).Return(nil)

	v, err := svc.ValidateBoundary(context.Background(), projectID, pgm.ID, nil)
	require.NoError(t, err)
	require.True(t, v.Passed)
	require.Equal(t, 1.0, v.ComplianceScore)
}

func TestValidateShapesDefaultsAndRotations(t *testing.T) {
	projectID := uuid.New()
	pgm := sitePlan(t, projectID, 1000, 800)
	pgm.PanelMapRequirements = mustJSON(t, models.PanelMapRequirements{
		OrientationRules: true,
	})

	layout := layoutWith(t, projectID, &models.LayoutData{
		Panels: []models.Panel{
			{ID: "ok", X: 10, Y: 10, Width: 40, Height: 100, Shape: "rectangle", Rotation: 90},
			{ID: "bad-shape", X: 60, Y: 10, Width: 40, Height: 100, Shape: "hexagon"},
			{ID: "bad-rotation", X: 120, Y: 10, Width: 40, Height: 100, Shape: "right-triangle", Rotation: 45},
		},
	})

	geoRepo, _, lRepo, vRepo, svc := newValidationFixture()
	geoRepo.On("GetByID", mock.Anything, pgm.ID, mock.Anything).Return(nil, pgm)
	lRepo.On("GetByProject", mock.Anything, projectID, mock.Anything).Return(nil, layout)
	vRepo.On("Append", mock.Anything, mock.Anything).Return(nil)

	v, err := svc.ValidateShapes(context.Background(), projectID, pgm.ID, nil)
	require.NoError(t, err)
	require.False(t, v.Passed)
	require.NotNil(t, v.ShapeMismatches)
	require.Equal(t, 2, *v.ShapeMismatches)

	var issues []models.ValidationIssue
	require.NoError(t, json.Unmarshal(v.Issues, &issues))
	require.Len(t, issues, 2)
}

func TestValidateShapesIgnoresRotationWithoutRules(t *testing.T) {
	projectID := uuid.New()
	pgm := sitePlan(t, projectID, 1000, 800)

	layout := layoutWith(t, projectID, &models.LayoutData{
		Panels: []models.Panel{
			{ID: "tilted", X: 10, Y: 10, Width: 40, Height: 100, Shape: "rectangle", Rotation: 33},
		},
	})

	geoRepo, _, lRepo, vRepo, svc := newValidationFixture()
	geoRepo.On("GetByID", mock.Anything, pgm.ID, mock.Anything).Return(nil, pgm)
	lRepo.On("GetByProject", mock.Anything, projectID, mock.Anything).Return(nil, layout)
	vRepo.On("Append", mock.Anything, mock.Anything).Return(nil)

	v, err := svc.ValidateShapes(context.Background(), projectID, pgm.ID, nil)
	require.NoError(t, err)
	require.True(t, v.Passed)
}
