package services

import (
	"context"
	"encoding/json"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/panelproof/engine/internal/geometry"
	"github.com/panelproof/engine/internal/models"
	"github.com/panelproof/engine/internal/repository"
	appErr "github.com/panelproof/engine/pkg/errors"
	"github.com/panelproof/engine/pkg/logger"
)

// Base confidences per registration method. Anchor fits degrade toward
// zero as the residual grows relative to the anchor spread.
const (
	anchorBaseConfidence  = 0.9
	boundaryFitConfidence = 0.6
	manualFitConfidence   = 1.0
)

// RegistrationService computes layout transforms and maintains the
// one-active-transform-per-project invariant.
type RegistrationService interface {
	RegisterLayoutToPlan(ctx context.Context, input *RegisterInput) (*RegisterResult, error)
	GetActiveTransform(ctx context.Context, projectID uuid.UUID) (*models.LayoutTransform, error)
	ListTransforms(ctx context.Context, projectID uuid.UUID) ([]models.LayoutTransform, error)
}

// RegisterInput is the request for a registration run.
type RegisterInput struct {
	ProjectID           uuid.UUID
	PlanGeometryModelID uuid.UUID
	Method              string
	Anchors             []geometry.Anchor
	// Manual transform parameters, used only when Method is manual.
	Manual *geometry.Affine
}

// RegisterResult reports the computed transform and fit quality.
type RegisterResult struct {
	TransformID     uuid.UUID `json:"transform_id"`
	ConfidenceScore float64   `json:"confidence_score"`
	ResidualError   *float64  `json:"residual_error"`
	MaxError        *float64  `json:"max_error"`
}

type registrationService struct {
	geometryRepo  repository.GeometryRepository
	transformRepo repository.TransformRepository
	layoutRepo    repository.LayoutRepository
}

func NewRegistrationService(geometryRepo repository.GeometryRepository, transformRepo repository.TransformRepository, layoutRepo repository.LayoutRepository) RegistrationService {
	return &registrationService{geometryRepo: geometryRepo, transformRepo: transformRepo, layoutRepo: layoutRepo}
}

var _ RegistrationService = (*registrationService)(nil)

func (s *registrationService) RegisterLayoutToPlan(ctx context.Context, input *RegisterInput) (*RegisterResult, error) {
	logger.L().Info("register layout to plan",
		zap.String("project_id", input.ProjectID.String()),
		zap.String("method", input.Method))

	var pgm models.PlanGeometryModel
	if err := s.geometryRepo.GetByID(ctx, input.PlanGeometryModelID, &pgm); err != nil {
		return nil, err
	}
	if pgm.ProjectID != input.ProjectID {
		return nil, appErr.New(appErr.CodeInvalid, "plan geometry does not belong to project")
	}

	var (
		fit        geometry.FitResult
		confidence float64
		err        error
	)
	switch input.Method {
	case models.RegistrationMethodAnchorPoints:
		fit, err = geometry.FitSimilarity(input.Anchors)
		if err != nil {
			return nil, err
		}
		confidence = anchorConfidence(fit, input.Anchors)
	case models.RegistrationMethodBoundaryFit:
		fit, err = s.boundaryFit(ctx, input.ProjectID, &pgm)
		if err != nil {
			return nil, err
		}
		confidence = boundaryFitConfidence
	case models.RegistrationMethodManual:
		if input.Manual == nil {
			return nil, appErr.New(appErr.CodeInvalid, "manual registration requires transform parameters")
		}
		fit = geometry.FitResult{Transform: *input.Manual}
		confidence = manualFitConfidence
	default:
		return nil, appErr.New(appErr.CodeInvalidMethod, "unknown registration method").
			WithMeta("method", input.Method)
	}

	t, err := transformModel(input, &pgm, fit, confidence)
	if err != nil {
		return nil, err
	}

	// Atomic swap: no window with zero or two active transforms.
	if err := s.transformRepo.CreateActive(ctx, t); err != nil {
		return nil, err
	}

	logger.L().Info("layout transform registered",
		zap.String("project_id", input.ProjectID.String()),
		zap.String("transform_id", t.ID.String()),
		zap.String("method", input.Method),
		zap.Float64("confidence", confidence))

	return &RegisterResult{
		TransformID:     t.ID,
		ConfidenceScore: confidence,
		ResidualError:   t.ResidualError,
		MaxError:        t.MaxError,
	}, nil
}

func (s *registrationService) GetActiveTransform(ctx context.Context, projectID uuid.UUID) (*models.LayoutTransform, error) {
	var t models.LayoutTransform
	if err := s.transformRepo.GetActiveByProject(ctx, projectID, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *registrationService) ListTransforms(ctx context.Context, projectID uuid.UUID) ([]models.LayoutTransform, error) {
	return s.transformRepo.ListByProject(ctx, projectID)
}

// boundaryFit maps the plan extents box onto the bounding box of the
// current layout's items.
func (s *registrationService) boundaryFit(ctx context.Context, projectID uuid.UUID, pgm *models.PlanGeometryModel) (geometry.FitResult, error) {
	var layout models.PanelLayout
	if err := s.layoutRepo.GetByProject(ctx, projectID, &layout); err != nil {
		return geometry.FitResult{}, err
	}
	data, err := layout.Decode()
	if err != nil {
		return geometry.FitResult{}, err
	}
	lb, ok := layoutBounds(data)
	if !ok {
		return geometry.FitResult{}, appErr.New(appErr.CodeInvalid, "layout has no items to fit against")
	}
	pb, err := planExtents(pgm)
	if err != nil {
		return geometry.FitResult{}, err
	}
	return geometry.FitBounds(lb, pb)
}

// anchorConfidence starts from the method's base confidence and shrinks
// as the RMS residual grows relative to the anchor spread; a residual of
// 10% of the spread halves the score.
func anchorConfidence(fit geometry.FitResult, anchors []geometry.Anchor) float64 {
	spread := geometry.AnchorSpread(anchors)
	if spread <= 0 {
		return anchorBaseConfidence
	}
	rel := fit.ResidualRMS / spread
	conf := anchorBaseConfidence / (1 + 5*rel)
	return math.Max(0.1, math.Min(anchorBaseConfidence, conf))
}

func transformModel(input *RegisterInput, pgm *models.PlanGeometryModel, fit geometry.FitResult, confidence float64) (*models.LayoutTransform, error) {
	t := &models.LayoutTransform{
		ProjectID:           input.ProjectID,
		PlanGeometryModelID: pgm.ID,
		TranslationX:        fit.Transform.TranslateX,
		TranslationY:        fit.Transform.TranslateY,
		RotationDegrees:     fit.Transform.RotationDegrees,
		ScaleX:              fit.Transform.ScaleX,
		ScaleY:              fit.Transform.ScaleY,
		SkewX:               fit.Transform.SkewX,
		SkewY:               fit.Transform.SkewY,
		Method:              input.Method,
		ConfidenceScore:     confidence,
		IsUniformScale:      fit.Transform.IsUniformScale(),
	}
	if input.Method == models.RegistrationMethodAnchorPoints {
		rms := fit.ResidualRMS
		max := fit.ResidualMax
		t.ResidualError = &rms
		t.MaxError = &max
		b, err := json.Marshal(input.Anchors)
		if err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInternal, "marshal anchors failed")
		}
		t.AnchorPoints = datatypes.JSON(b)
	}
	return t, nil
}
