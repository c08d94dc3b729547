package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/panelproof/engine/internal/api/types"
	"github.com/panelproof/engine/internal/api/validators"
	"github.com/panelproof/engine/internal/services"
)

// ComplianceHandler exposes the orchestrated compliance runs.
type ComplianceHandler struct {
	complianceSvc services.ComplianceService
}

func NewComplianceHandler(complianceSvc services.ComplianceService) *ComplianceHandler {
	return &ComplianceHandler{complianceSvc: complianceSvc}
}

func (h *ComplianceHandler) decodeProject(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var req struct {
		ProjectID string `json:"project_id" validate:"required,uuid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return uuid.Nil, false
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return uuid.Nil, false
	}
	id, _ := uuid.Parse(req.ProjectID)
	return id, true
}

func (h *ComplianceHandler) Form(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.decodeProject(w, r)
	if !ok {
		return
	}
	report, err := h.complianceSvc.ValidateFormCompliance(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: report})
}

func (h *ComplianceHandler) Layout(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.decodeProject(w, r)
	if !ok {
		return
	}
	report, err := h.complianceSvc.ValidateLayoutCompliance(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: report})
}

func (h *ComplianceHandler) Revalidate(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.decodeProject(w, r)
	if !ok {
		return
	}
	if err := h.complianceSvc.EnqueueRevalidation(r.Context(), projectID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.APIResponse{Success: true, Data: map[string]string{"status": "queued"}})
}
