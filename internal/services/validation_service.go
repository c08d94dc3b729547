package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
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

// Scale tolerance: the average transform scale may deviate from the
// plan's scale factor by at most this percentage.
const scaleDeltaTolerancePercent = 5.0

// Defaults applied when the plan carries no panel map requirements.
var (
	defaultPanelTypes       = []string{"rectangle", "right-triangle"}
	defaultAllowedRotations = []float64{0, 90, 180, 270}
)

// ValidationService runs the three compliance validators. Every run
// appends one ComplianceValidation row; violations are data, never
// errors. A missing plan geometry or layout is fatal.
type ValidationService interface {
	ValidateScale(ctx context.Context, projectID, planGeometryModelID uuid.UUID, transformID *uuid.UUID) (*models.ComplianceValidation, error)
	ValidateBoundary(ctx context.Context, projectID, planGeometryModelID uuid.UUID, transformID *uuid.UUID) (*models.ComplianceValidation, error)
	ValidateShapes(ctx context.Context, projectID, planGeometryModelID uuid.UUID, transformID *uuid.UUID) (*models.ComplianceValidation, error)
	ListValidations(ctx context.Context, projectID uuid.UUID, validationType string) ([]models.ComplianceValidation, error)
}

type validationService struct {
	geometryRepo   repository.GeometryRepository
	transformRepo  repository.TransformRepository
	layoutRepo     repository.LayoutRepository
	validationRepo repository.ValidationRepository
}

func NewValidationService(geometryRepo repository.GeometryRepository, transformRepo repository.TransformRepository, layoutRepo repository.LayoutRepository, validationRepo repository.ValidationRepository) ValidationService {
	return &validationService{
		geometryRepo:   geometryRepo,
		transformRepo:  transformRepo,
		layoutRepo:     layoutRepo,
		validationRepo: validationRepo,
	}
}

var _ ValidationService = (*validationService)(nil)

func (s *validationService) ListValidations(ctx context.Context, projectID uuid.UUID, validationType string) ([]models.ComplianceValidation, error) {
	return s.validationRepo.ListByProject(ctx, projectID, validationType)
}

// resolveTransform loads the requested transform, or the project's active
// one when no id is given. A nil return with nil error means the project
// has no transform at all, which only the boundary validator tolerates.
func (s *validationService) resolveTransform(ctx context.Context, projectID uuid.UUID, transformID *uuid.UUID) (*models.LayoutTransform, error) {
	var t models.LayoutTransform
	if transformID != nil {
		if err := s.transformRepo.GetByID(ctx, *transformID, &t); err != nil {
			return nil, err
		}
		return &t, nil
	}
	err := s.transformRepo.GetActiveByProject(ctx, projectID, &t)
	if err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// ValidateScale compares the active transform's average scale against the
// plan's scale factor and flags non-uniform scaling.
func (s *validationService) ValidateScale(ctx context.Context, projectID, planGeometryModelID uuid.UUID, transformID *uuid.UUID) (*models.ComplianceValidation, error) {
	var pgm models.PlanGeometryModel
	if err := s.geometryRepo.GetByID(ctx, planGeometryModelID, &pgm); err != nil {
		return nil, err
	}
	t, err := s.resolveTransform(ctx, projectID, transformID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, appErr.New(appErr.CodeNotFound, "no active transform for project")
	}

	planScale := 1.0
	if pgm.ScaleFactor != nil && *pgm.ScaleFactor != 0 {
		planScale = *pgm.ScaleFactor
	}
	affine := affineFromModel(t)
	avg := affine.AverageScale()
	deltaPercent := (avg - planScale) / planScale * 100
	uniform := affine.IsUniformScale()

	var issues []models.ValidationIssue
	if math.Abs(deltaPercent) >= scaleDeltaTolerancePercent {
		issues = append(issues, models.ValidationIssue{
			Issue:                 fmt.Sprintf("layout scale deviates from plan by %.1f%%", deltaPercent),
			Severity:              "major",
			RecommendedCorrection: "re-register the layout and reapply the transform",
		})
	}
	if !uniform {
		issues = append(issues, models.ValidationIssue{
			Issue:                 fmt.Sprintf("non-uniform scaling: scale_x=%.4f scale_y=%.4f", t.ScaleX, t.ScaleY),
			Severity:              "major",
			RecommendedCorrection: "re-register the layout and reapply the transform",
		})
	}

	passed := math.Abs(deltaPercent) < scaleDeltaTolerancePercent && uniform
	score := 1.0
	if !passed {
		// Degrade with the magnitude of the deviation, floored at zero.
		score = math.Max(0, 1-math.Abs(deltaPercent)/100)
		if !uniform {
			score = math.Min(score, 0.5)
		}
	}

	v := &models.ComplianceValidation{
		ProjectID:           projectID,
		PlanGeometryModelID: planGeometryModelID,
		LayoutTransformID:   &t.ID,
		ValidationType:      models.ValidationTypeScale,
		Passed:              passed,
		ComplianceScore:     score,
		ScaleDeltaPercent:   &deltaPercent,
		ValidatedAt:         time.Now(),
	}
	if err := s.persist(ctx, v, issues); err != nil {
		return nil, err
	}
	return v, nil
}

// ValidateBoundary checks every layout item against the site boundary and
// the no-go zones. Items are mapped into plan space through the inverse
// of the transform when one exists.
func (s *validationService) ValidateBoundary(ctx context.Context, projectID, planGeometryModelID uuid.UUID, transformID *uuid.UUID) (*models.ComplianceValidation, error) {
	var pgm models.PlanGeometryModel
	if err := s.geometryRepo.GetByID(ctx, planGeometryModelID, &pgm); err != nil {
		return nil, err
	}
	var layout models.PanelLayout
	if err := s.layoutRepo.GetByProject(ctx, projectID, &layout); err != nil {
		return nil, err
	}
	data, err := layout.Decode()
	if err != nil {
		return nil, err
	}
	t, err := s.resolveTransform(ctx, projectID, transformID)
	if err != nil {
		return nil, err
	}

	boundary, err := decodeBoundary(&pgm)
	if err != nil {
		return nil, err
	}
	zones, err := decodeNoGoZones(&pgm)
	if err != nil {
		return nil, err
	}
	extents, err := planExtents(&pgm)
	if err != nil {
		return nil, err
	}

	checker := &boundaryChecker{boundary: boundary, extents: extents, zones: zones}
	if t != nil {
		affine := affineFromModel(t)
		checker.toPlan = func(p geometry.Point) (geometry.Point, error) {
			return affine.ApplyInverse(p)
		}
	}

	var issues []models.ValidationIssue
	total := data.TotalItems()

	for i := range data.Panels {
		p := &data.Panels[i]
		if issue := checker.checkFootprint(panelFootprint(p), p.ID, "panel", geometry.Point{X: p.X, Y: p.Y}); issue != nil {
			issues = append(issues, *issue)
		}
	}
	for i := range data.Patches {
		p := &data.Patches[i]
		if issue := checker.checkFootprint(geometry.Polygon(boundsCorners(patchBounds(p))), p.ID, "patch", geometry.Point{X: p.X, Y: p.Y}); issue != nil {
			issues = append(issues, *issue)
		}
	}
	for i := range data.DestructiveTests {
		d := &data.DestructiveTests[i]
		if issue := checker.checkFootprint(geometry.Polygon(boundsCorners(testBounds(d))), d.ID, "destructive_test", geometry.Point{X: d.X, Y: d.Y}); issue != nil {
			issues = append(issues, *issue)
		}
	}

	violations := len(issues)
	score := 1.0
	if total > 0 {
		score = 1 - float64(violations)/float64(total)
	}

	v := &models.ComplianceValidation{
		ProjectID:           projectID,
		PlanGeometryModelID: planGeometryModelID,
		ValidationType:      models.ValidationTypeBoundary,
		Passed:              violations == 0,
		ComplianceScore:     score,
		BoundaryViolations:  &violations,
		ValidatedAt:         time.Now(),
	}
	if t != nil {
		v.LayoutTransformID = &t.ID
	}
	if err := s.persist(ctx, v, issues); err != nil {
		return nil, err
	}
	return v, nil
}

// ValidateShapes checks panel shapes against the plan's expected panel
// types and, when orientation rules exist, rotations against the allowed
// set.
func (s *validationService) ValidateShapes(ctx context.Context, projectID, planGeometryModelID uuid.UUID, transformID *uuid.UUID) (*models.ComplianceValidation, error) {
	var pgm models.PlanGeometryModel
	if err := s.geometryRepo.GetByID(ctx, planGeometryModelID, &pgm); err != nil {
		return nil, err
	}
	var layout models.PanelLayout
	if err := s.layoutRepo.GetByProject(ctx, projectID, &layout); err != nil {
		return nil, err
	}
	data, err := layout.Decode()
	if err != nil {
		return nil, err
	}
	reqs, err := decodeRequirements(&pgm)
	if err != nil {
		return nil, err
	}

	expected := defaultPanelTypes
	rotations := defaultAllowedRotations
	orientationRules := false
	if reqs != nil {
		if len(reqs.ExpectedPanelTypes) > 0 {
			expected = reqs.ExpectedPanelTypes
		}
		orientationRules = reqs.OrientationRules
		if len(reqs.AllowedRotations) > 0 {
			rotations = reqs.AllowedRotations
		}
	}

	var issues []models.ValidationIssue
	for i := range data.Panels {
		p := &data.Panels[i]
		if !containsString(expected, p.Shape) {
			issues = append(issues, models.ValidationIssue{
				ItemID:   p.ID,
				ItemType: "panel",
				Location: &models.PointJSON{X: p.X, Y: p.Y},
				Issue:    fmt.Sprintf("shape %q is not an expected panel type", p.Shape),
				Severity: "minor",
			})
			continue
		}
		if orientationRules && !containsRotation(rotations, p.Rotation) {
			issues = append(issues, models.ValidationIssue{
				ItemID:   p.ID,
				ItemType: "panel",
				Location: &models.PointJSON{X: p.X, Y: p.Y},
				Issue:    fmt.Sprintf("rotation %.1f is not in the allowed set", p.Rotation),
				Severity: "minor",
			})
		}
	}

	mismatches := len(issues)
	score := 1.0
	if len(data.Panels) > 0 {
		score = 1 - float64(mismatches)/float64(len(data.Panels))
	}

	v := &models.ComplianceValidation{
		ProjectID:           projectID,
		PlanGeometryModelID: planGeometryModelID,
		ValidationType:      models.ValidationTypeShape,
		Passed:              mismatches == 0,
		ComplianceScore:     score,
		ShapeMismatches:     &mismatches,
		ValidatedAt:         time.Now(),
	}
	if transformID != nil {
		v.LayoutTransformID = transformID
	}
	if err := s.persist(ctx, v, issues); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *validationService) persist(ctx context.Context, v *models.ComplianceValidation, issues []models.ValidationIssue) error {
	if issues == nil {
		issues = []models.ValidationIssue{}
	}
	b, err := json.Marshal(issues)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "marshal issues failed")
	}
	v.Issues = datatypes.JSON(b)
	if err := s.validationRepo.Append(ctx, v); err != nil {
		return err
	}
	logger.L().Info("validation recorded",
		zap.String("project_id", v.ProjectID.String()),
		zap.String("type", v.ValidationType),
		zap.Bool("passed", v.Passed),
		zap.Float64("score", v.ComplianceScore),
		zap.Int("issues", len(issues)))
	return nil
}

// boundaryChecker evaluates one item footprint against the plan. The
// bounding-box test runs first as a cheap pre-filter; the exact polygon
// tests only run when the bbox is inconclusive.
type boundaryChecker struct {
	boundary geometry.Polygon
	extents  geometry.Bounds
	zones    []noGoZone
	toPlan   func(geometry.Point) (geometry.Point, error)
}

func (c *boundaryChecker) checkFootprint(footprint geometry.Polygon, itemID, itemType string, loc geometry.Point) *models.ValidationIssue {
	mapped := footprint
	if c.toPlan != nil {
		mapped = make(geometry.Polygon, len(footprint))
		for i, p := range footprint {
			q, err := c.toPlan(p)
			if err != nil {
				return &models.ValidationIssue{
					ItemID:   itemID,
					ItemType: itemType,
					Location: &models.PointJSON{X: loc.X, Y: loc.Y},
					Issue:    "item cannot be mapped into plan space: " + err.Error(),
					Severity: "major",
				}
			}
			mapped[i] = q
		}
	}

	bbox, ok := geometry.BoundsOfPoints(mapped)
	if !ok {
		return nil
	}

	if !c.extents.Contains(bbox) {
		return &models.ValidationIssue{
			ItemID:   itemID,
			ItemType: itemType,
			Location: &models.PointJSON{X: loc.X, Y: loc.Y},
			Issue:    "item extends outside the site boundary",
			Severity: "major",
		}
	}
	// Inside the extents bbox: confirm against the true boundary ring.
	if len(c.boundary) >= 3 && !c.boundary.ContainsAll(mapped) {
		return &models.ValidationIssue{
			ItemID:   itemID,
			ItemType: itemType,
			Location: &models.PointJSON{X: loc.X, Y: loc.Y},
			Issue:    "item extends outside the site boundary",
			Severity: "major",
		}
	}

	for _, z := range c.zones {
		zb, ok := z.polygon.Bounds()
		if !ok {
			continue
		}
		if !bbox.Intersects(zb) {
			continue
		}
		if geometry.ConvexOverlap(mapped, z.polygon) {
			label := z.label
			if label == "" {
				label = "no-go zone"
			}
			return &models.ValidationIssue{
				ItemID:   itemID,
				ItemType: itemType,
				Location: &models.PointJSON{X: loc.X, Y: loc.Y},
				Issue:    "item overlaps " + label,
				Severity: "major",
			}
		}
	}
	return nil
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsRotation(set []float64, v float64) bool {
	// Normalize into [0, 360).
	n := math.Mod(v, 360)
	if n < 0 {
		n += 360
	}
	for _, r := range set {
		if math.Abs(n-r) < 1e-6 {
			return true
		}
	}
	return false
}
