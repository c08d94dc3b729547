package tasks

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/panelproof/engine/internal/services"
	"github.com/panelproof/engine/pkg/logger"
)

// Task type names registered with the worker mux.
const (
	TypeGeometryExtract      = "geometry:extract"
	TypeComplianceRevalidate = services.TaskComplianceRevalidate
)

// ExtractPayload is the task payload for geometry extraction tasks.
type ExtractPayload struct {
	ProjectID    string   `json:"project_id"`
	DocumentIDs  []string `json:"document_ids,omitempty"`
	ForceRefresh bool     `json:"force_refresh,omitempty"`
}

// RevalidatePayload is the task payload for compliance revalidation.
type RevalidatePayload struct {
	ProjectID string `json:"project_id"`
}

// ComplianceTaskHandler handles extraction and revalidation tasks.
type ComplianceTaskHandler struct {
	extractionSvc services.ExtractionService
	complianceSvc services.ComplianceService
}

func NewComplianceTaskHandler(extractionSvc services.ExtractionService, complianceSvc services.ComplianceService) *ComplianceTaskHandler {
	return &ComplianceTaskHandler{extractionSvc: extractionSvc, complianceSvc: complianceSvc}
}

func (h *ComplianceTaskHandler) HandleGeometryExtract(ctx context.Context, t *asynq.Task) error {
	var p ExtractPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.L().Error("invalid extract task payload", zap.Error(err))
		return err
	}
	projectID, err := uuid.Parse(p.ProjectID)
	if err != nil {
		logger.L().Error("invalid project id in task", zap.Error(err))
		return err
	}
	docIDs := make([]uuid.UUID, 0, len(p.DocumentIDs))
	for _, raw := range p.DocumentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			logger.L().Error("invalid document id in task", zap.String("document_id", raw), zap.Error(err))
			return err
		}
		docIDs = append(docIDs, id)
	}

	logger.L().Info("handling geometry extract task",
		zap.String("project_id", projectID.String()),
		zap.Int("documents", len(docIDs)))

	res, err := h.extractionSvc.ExtractPlanGeometry(ctx, projectID, docIDs, &services.ExtractOptions{ForceRefresh: p.ForceRefresh})
	if err != nil {
		logger.L().Error("extract task failed", zap.Error(err), zap.String("project_id", projectID.String()))
		return err
	}
	logger.L().Info("extract task finished",
		zap.String("project_id", projectID.String()),
		zap.String("plan_geometry_model_id", res.PlanGeometryModelID.String()),
		zap.String("method", res.ExtractionMethod))
	return nil
}

func (h *ComplianceTaskHandler) HandleComplianceRevalidate(ctx context.Context, t *asynq.Task) error {
	var p RevalidatePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.L().Error("invalid revalidate task payload", zap.Error(err))
		return err
	}
	projectID, err := uuid.Parse(p.ProjectID)
	if err != nil {
		logger.L().Error("invalid project id in task", zap.Error(err))
		return err
	}

	logger.L().Info("handling compliance revalidate task", zap.String("project_id", projectID.String()))

	report, err := h.complianceSvc.ValidateLayoutCompliance(ctx, projectID)
	if err != nil {
		logger.L().Error("revalidate task failed", zap.Error(err), zap.String("project_id", projectID.String()))
		return err
	}
	// A failed report is recorded, not retried: the run itself completed.
	logger.L().Info("revalidate task finished",
		zap.String("project_id", projectID.String()),
		zap.Bool("success", report.Success),
		zap.Bool("passed", report.Passed),
		zap.Float64("overall_score", report.OverallScore))
	return nil
}
