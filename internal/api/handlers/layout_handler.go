package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/panelproof/engine/internal/api/types"
	"github.com/panelproof/engine/internal/api/validators"
	"github.com/panelproof/engine/internal/models"
	"github.com/panelproof/engine/internal/repository"
)

// LayoutHandler exposes the per-project panel layout.
type LayoutHandler struct {
	layoutRepo repository.LayoutRepository
}

func NewLayoutHandler(layoutRepo repository.LayoutRepository) *LayoutHandler {
	return &LayoutHandler{layoutRepo: layoutRepo}
}

func (h *LayoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseUUIDParam(r.URL.Query().Get("project_id"))
	if !ok {
		writeErrorStr(w, http.StatusBadRequest, "project_id is required")
		return
	}
	var layout models.PanelLayout
	if err := h.layoutRepo.GetByProject(r.Context(), projectID, &layout); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: layout})
}

func (h *LayoutHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID        string                   `json:"project_id" validate:"required,uuid"`
		Panels           []models.Panel           `json:"panels"`
		Patches          []models.Patch           `json:"patches"`
		DestructiveTests []models.DestructiveTest `json:"destructive_tests"`
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

	layout := models.PanelLayout{ProjectID: projectID}
	if err := layout.Encode(&models.LayoutData{
		Panels:           req.Panels,
		Patches:          req.Patches,
		DestructiveTests: req.DestructiveTests,
	}); err != nil {
		writeError(w, err)
		return
	}
	if err := h.layoutRepo.Upsert(r.Context(), &layout); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: layout})
}
