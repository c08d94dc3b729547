package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/panelproof/engine/internal/extraction"
	"github.com/panelproof/engine/internal/models"
	"github.com/panelproof/engine/internal/repository"
	appErr "github.com/panelproof/engine/pkg/errors"
	"github.com/panelproof/engine/pkg/logger"
)

// ExtractionService turns project documents into plan geometry snapshots.
type ExtractionService interface {
	// ExtractPlanGeometry delegates to the AI extractor under a hard
	// timeout and falls back to heuristic geometry on failure. For a
	// single-document call an existing snapshot for the same (project,
	// document) pair is returned unchanged.
	ExtractPlanGeometry(ctx context.Context, projectID uuid.UUID, documentIDs []uuid.UUID, opts *ExtractOptions) (*ExtractResult, error)
}

// ExtractOptions tunes an extraction call.
type ExtractOptions struct {
	// ForceRefresh creates a new snapshot even when one already exists
	// for the same single document.
	ForceRefresh bool
}

// ExtractResult is the outcome of an extraction call.
type ExtractResult struct {
	PlanGeometryModelID uuid.UUID `json:"plan_geometry_model_id"`
	ConfidenceScore     float64   `json:"confidence_score"`
	ExtractionMethod    string    `json:"extraction_method"`
	Existing            bool      `json:"existing"`
}

type extractionService struct {
	geometryRepo repository.GeometryRepository
	documentRepo repository.DocumentRepository
	extractor    extraction.Extractor
	timeout      time.Duration
}

// NewExtractionService wires the repositories and the extraction
// collaborator. timeout caps every extractor call.
func NewExtractionService(geometryRepo repository.GeometryRepository, documentRepo repository.DocumentRepository, extractor extraction.Extractor, timeout time.Duration) ExtractionService {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &extractionService{geometryRepo: geometryRepo, documentRepo: documentRepo, extractor: extractor, timeout: timeout}
}

var _ ExtractionService = (*extractionService)(nil)

func (s *extractionService) ExtractPlanGeometry(ctx context.Context, projectID uuid.UUID, documentIDs []uuid.UUID, opts *ExtractOptions) (*ExtractResult, error) {
	if opts == nil {
		opts = &ExtractOptions{}
	}
	logger.L().Info("extract plan geometry",
		zap.String("project_id", projectID.String()),
		zap.Int("documents", len(documentIDs)))

	// Single-document calls are idempotent.
	if len(documentIDs) == 1 && !opts.ForceRefresh {
		var existing models.PlanGeometryModel
		err := s.geometryRepo.GetByProjectAndDocument(ctx, projectID, documentIDs[0], &existing)
		if err == nil {
			return &ExtractResult{
				PlanGeometryModelID: existing.ID,
				ConfidenceScore:     existing.ConfidenceScore,
				ExtractionMethod:    existing.ExtractionMethod,
				Existing:            true,
			}, nil
		}
		if !appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, err
		}
	}

	var docs []models.ProjectDocument
	var err error
	if len(documentIDs) > 0 {
		docs, err = s.documentRepo.GetByIDs(ctx, documentIDs)
	} else {
		docs, err = s.documentRepo.ListByProject(ctx, projectID)
	}
	if err != nil {
		return nil, err
	}

	inputs := make([]extraction.Document, len(docs))
	for i, d := range docs {
		inputs[i] = extraction.Document{ID: d.ID, Name: d.Name, DocType: d.DocType, TextContent: d.TextContent}
	}

	method := models.ExtractionMethodAI
	extractCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	geo, confidence, err := s.extractor.ExtractGeometry(extractCtx, projectID, inputs)
	if err != nil {
		// Extraction must never block the pipeline: degrade to the
		// heuristic geometry instead of surfacing the failure.
		logger.L().Warn("extraction service failed, using fallback geometry",
			zap.String("project_id", projectID.String()), zap.Error(err))
		geo, confidence = extraction.FallbackGeometry(inputs)
		method = models.ExtractionMethodHeuristic
	}

	pgm, err := buildPlanGeometryModel(projectID, documentIDs, geo, confidence, method)
	if err != nil {
		return nil, err
	}
	if err := s.geometryRepo.Create(ctx, pgm); err != nil {
		return nil, err
	}

	logger.L().Info("plan geometry extracted",
		zap.String("project_id", projectID.String()),
		zap.String("plan_geometry_model_id", pgm.ID.String()),
		zap.String("method", method),
		zap.Float64("confidence", confidence))

	return &ExtractResult{
		PlanGeometryModelID: pgm.ID,
		ConfidenceScore:     confidence,
		ExtractionMethod:    method,
	}, nil
}

func buildPlanGeometryModel(projectID uuid.UUID, documentIDs []uuid.UUID, geo *extraction.GeometryPayload, confidence float64, method string) (*models.PlanGeometryModel, error) {
	marshal := func(v any) (datatypes.JSON, error) {
		if v == nil {
			return nil, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInternal, "marshal geometry payload failed")
		}
		return datatypes.JSON(b), nil
	}

	boundary, err := marshal(geo.SiteBoundary)
	if err != nil {
		return nil, err
	}
	refs, err := marshal(geo.ReferencePoints)
	if err != nil {
		return nil, err
	}
	zones, err := marshal(geo.NoGoZones)
	if err != nil {
		return nil, err
	}
	features, err := marshal(geo.KeyFeatures)
	if err != nil {
		return nil, err
	}
	var reqs datatypes.JSON
	if geo.PanelMapRequirements != nil {
		reqs, err = marshal(geo.PanelMapRequirements)
		if err != nil {
			return nil, err
		}
	}

	units := geo.Units
	if units == "" {
		units = "ft"
	}

	pgm := &models.PlanGeometryModel{
		ProjectID:            projectID,
		SiteBoundary:         boundary,
		ReferencePoints:      refs,
		SiteWidth:            geo.SiteWidth,
		SiteHeight:           geo.SiteHeight,
		Units:                units,
		ScaleFactor:          geo.ScaleFactor,
		NoGoZones:            zones,
		KeyFeatures:          features,
		PanelMapRequirements: reqs,
		ConfidenceScore:      confidence,
		ExtractionMethod:     method,
		ExtractedAt:          time.Now(),
	}
	if len(documentIDs) == 1 {
		id := documentIDs[0]
		pgm.DocumentID = &id
	}
	return pgm, nil
}
