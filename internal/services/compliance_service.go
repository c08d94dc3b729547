package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/panelproof/engine/internal/models"
	"github.com/panelproof/engine/internal/repository"
	appErr "github.com/panelproof/engine/pkg/errors"
	"github.com/panelproof/engine/pkg/logger"
)

// Task type for async revalidation. The worker binary registers the
// matching handler.
const TaskComplianceRevalidate = "compliance:revalidate"

// ComplianceReport aggregates one full compliance run. Error carries a
// human-readable failure when Success is false; partial validator
// results stay attached either way.
type ComplianceReport struct {
	ProjectID           uuid.UUID                      `json:"project_id"`
	PlanGeometryModelID uuid.UUID                      `json:"plan_geometry_model_id"`
	ExtractionMethod    string                         `json:"extraction_method"`
	TransformID         *uuid.UUID                     `json:"transform_id,omitempty"`
	Validations         []*models.ComplianceValidation `json:"validations"`
	OverallScore        float64                        `json:"overall_score"`
	Passed              bool                           `json:"passed"`
	Success             bool                           `json:"success"`
	Error               string                         `json:"error,omitempty"`
}

// ComplianceService is the orchestration facade: it extracts plan
// geometry when the project has none, registers a boundary-fit transform
// when none is active, runs all three validators, and aggregates.
type ComplianceService interface {
	ValidateFormCompliance(ctx context.Context, projectID uuid.UUID) (*ComplianceReport, error)
	ValidateLayoutCompliance(ctx context.Context, projectID uuid.UUID) (*ComplianceReport, error)
	EnqueueRevalidation(ctx context.Context, projectID uuid.UUID) error
}

type complianceService struct {
	extractionSvc   ExtractionService
	registrationSvc RegistrationService
	validationSvc   ValidationService
	geometryRepo    repository.GeometryRepository
	asynqClient     *asynq.Client
}

func NewComplianceService(extractionSvc ExtractionService, registrationSvc RegistrationService, validationSvc ValidationService, geometryRepo repository.GeometryRepository, client *asynq.Client) ComplianceService {
	return &complianceService{
		extractionSvc:   extractionSvc,
		registrationSvc: registrationSvc,
		validationSvc:   validationSvc,
		geometryRepo:    geometryRepo,
		asynqClient:     client,
	}
}

var _ ComplianceService = (*complianceService)(nil)

// ValidateFormCompliance runs the scale and shape validators, the checks
// tied to the compliance form data rather than the drawn layout.
func (s *complianceService) ValidateFormCompliance(ctx context.Context, projectID uuid.UUID) (*ComplianceReport, error) {
	return s.run(ctx, projectID, []string{models.ValidationTypeScale, models.ValidationTypeShape})
}

// ValidateLayoutCompliance runs the full validator set against the drawn
// layout.
func (s *complianceService) ValidateLayoutCompliance(ctx context.Context, projectID uuid.UUID) (*ComplianceReport, error) {
	return s.run(ctx, projectID, []string{models.ValidationTypeScale, models.ValidationTypeBoundary, models.ValidationTypeShape})
}

func (s *complianceService) run(ctx context.Context, projectID uuid.UUID, types []string) (*ComplianceReport, error) {
	report := &ComplianceReport{ProjectID: projectID}

	pgm, method, err := s.ensureGeometry(ctx, projectID)
	if err != nil {
		return fail(report, err), nil
	}
	report.PlanGeometryModelID = pgm
	report.ExtractionMethod = method

	transformID, err := s.ensureTransform(ctx, projectID, pgm)
	if err != nil {
		return fail(report, err), nil
	}
	report.TransformID = transformID

	passed := true
	sum := 0.0
	for _, vt := range types {
		var v *models.ComplianceValidation
		var vErr error
		switch vt {
		case models.ValidationTypeScale:
			v, vErr = s.validationSvc.ValidateScale(ctx, projectID, pgm, transformID)
		case models.ValidationTypeBoundary:
			v, vErr = s.validationSvc.ValidateBoundary(ctx, projectID, pgm, transformID)
		case models.ValidationTypeShape:
			v, vErr = s.validationSvc.ValidateShapes(ctx, projectID, pgm, transformID)
		}
		if vErr != nil {
			return fail(report, vErr), nil
		}
		report.Validations = append(report.Validations, v)
		sum += v.ComplianceScore
		passed = passed && v.Passed
	}

	if len(report.Validations) > 0 {
		report.OverallScore = sum / float64(len(report.Validations))
	}
	report.Passed = passed
	report.Success = true
	logger.L().Info("compliance run finished",
		zap.String("project_id", projectID.String()),
		zap.Bool("passed", passed),
		zap.Float64("overall_score", report.OverallScore))
	return report, nil
}

// ensureGeometry returns the latest plan geometry model, extracting one
// only when the project has none. Repeated compliance runs must not pile
// up snapshots or hit the extractor again.
func (s *complianceService) ensureGeometry(ctx context.Context, projectID uuid.UUID) (uuid.UUID, string, error) {
	var latest models.PlanGeometryModel
	err := s.geometryRepo.GetLatestByProject(ctx, projectID, &latest)
	if err == nil {
		return latest.ID, latest.ExtractionMethod, nil
	}
	if !appErr.IsCode(err, appErr.CodeNotFound) {
		return uuid.Nil, "", err
	}
	res, err := s.extractionSvc.ExtractPlanGeometry(ctx, projectID, nil, nil)
	if err != nil {
		return uuid.Nil, "", err
	}
	return res.PlanGeometryModelID, res.ExtractionMethod, nil
}

// ensureTransform returns the active transform id, registering a
// boundary-fit transform when the project has none.
func (s *complianceService) ensureTransform(ctx context.Context, projectID, pgmID uuid.UUID) (*uuid.UUID, error) {
	t, err := s.registrationSvc.GetActiveTransform(ctx, projectID)
	if err == nil {
		return &t.ID, nil
	}
	if !appErr.IsCode(err, appErr.CodeNotFound) {
		return nil, err
	}
	logger.L().Info("no active transform, registering boundary fit",
		zap.String("project_id", projectID.String()))
	res, err := s.registrationSvc.RegisterLayoutToPlan(ctx, &RegisterInput{
		ProjectID:           projectID,
		PlanGeometryModelID: pgmID,
		Method:              models.RegistrationMethodBoundaryFit,
	})
	if err != nil {
		return nil, err
	}
	id := res.TransformID
	return &id, nil
}

func (s *complianceService) EnqueueRevalidation(ctx context.Context, projectID uuid.UUID) error {
	payload := map[string]string{"project_id": projectID.String()}
	pb, _ := json.Marshal(payload)
	task := asynq.NewTask(TaskComplianceRevalidate, pb)
	if s.asynqClient == nil {
		logger.L().Warn("asynq client not configured, skipping enqueue",
			zap.String("project_id", projectID.String()))
		return nil
	}
	if _, err := s.asynqClient.EnqueueContext(ctx, task); err != nil {
		logger.L().Error("enqueue revalidation task failed", zap.Error(err),
			zap.String("project_id", projectID.String()))
		return appErr.Wrap(err, appErr.CodeInternal, "enqueue revalidation task failed")
	}
	logger.L().Info("revalidation enqueued", zap.String("project_id", projectID.String()))
	return nil
}

// fail finalizes a report for a run that could not complete. Compliance
// runs never surface transport errors to callers; the failure rides in
// the report.
func fail(report *ComplianceReport, err error) *ComplianceReport {
	report.Success = false
	report.Error = err.Error()
	logger.L().Warn("compliance run failed",
		zap.String("project_id", report.ProjectID.String()),
		zap.Error(err))
	return report
}
