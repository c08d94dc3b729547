package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/panelproof/engine/internal/api/types"
	"github.com/panelproof/engine/internal/api/validators"
	"github.com/panelproof/engine/internal/models"
	"github.com/panelproof/engine/internal/repository"
	"github.com/panelproof/engine/internal/services"
)

// GeometryHandler exposes plan geometry extraction and lookup.
type GeometryHandler struct {
	extractionSvc services.ExtractionService
	geometryRepo  repository.GeometryRepository
}

func NewGeometryHandler(extractionSvc services.ExtractionService, geometryRepo repository.GeometryRepository) *GeometryHandler {
	return &GeometryHandler{extractionSvc: extractionSvc, geometryRepo: geometryRepo}
}

func (h *GeometryHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID    string   `json:"project_id" validate:"required,uuid"`
		DocumentIDs  []string `json:"document_ids"`
		ForceRefresh bool     `json:"force_refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}
	projectID, _ := uuid.Parse(req.ProjectID)
	docIDs := make([]uuid.UUID, 0, len(req.DocumentIDs))
	for _, raw := range req.DocumentIDs {
		id, ok := parseUUIDParam(raw)
		if !ok {
			writeErrorStr(w, http.StatusBadRequest, "invalid document id "+raw)
			return
		}
		docIDs = append(docIDs, id)
	}

	res, err := h.extractionSvc.ExtractPlanGeometry(r.Context(), projectID, docIDs, &services.ExtractOptions{ForceRefresh: req.ForceRefresh})
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Existing {
		status = http.StatusOK
	}
	writeJSON(w, status, types.APIResponse{Success: true, Data: res})
}

func (h *GeometryHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseUUIDParam(r.URL.Query().Get("project_id"))
	if !ok {
		writeErrorStr(w, http.StatusBadRequest, "project_id is required")
		return
	}
	items, err := h.geometryRepo.ListByProject(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items})
}

func (h *GeometryHandler) Latest(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseUUIDParam(r.URL.Query().Get("project_id"))
	if !ok {
		writeErrorStr(w, http.StatusBadRequest, "project_id is required")
		return
	}
	var pgm models.PlanGeometryModel
	if err := h.geometryRepo.GetLatestByProject(r.Context(), projectID, &pgm); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: pgm})
}
