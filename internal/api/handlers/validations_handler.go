package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/panelproof/engine/internal/api/types"
	"github.com/panelproof/engine/internal/api/validators"
	"github.com/panelproof/engine/internal/models"
	"github.com/panelproof/engine/internal/services"
)

// ValidationsHandler exposes the individual compliance validators.
type ValidationsHandler struct {
	validationSvc services.ValidationService
}

func NewValidationsHandler(validationSvc services.ValidationService) *ValidationsHandler {
	return &ValidationsHandler{validationSvc: validationSvc}
}

type validateRequest struct {
	ProjectID           string  `json:"project_id" validate:"required,uuid"`
	PlanGeometryModelID string  `json:"plan_geometry_model_id" validate:"required,uuid"`
	TransformID         *string `json:"transform_id" validate:"omitempty,uuid"`
}

func (h *ValidationsHandler) decode(w http.ResponseWriter, r *http.Request) (projectID, pgmID uuid.UUID, transformID *uuid.UUID, ok bool) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}
	projectID, _ = uuid.Parse(req.ProjectID)
	pgmID, _ = uuid.Parse(req.PlanGeometryModelID)
	if req.TransformID != nil {
		id, err := uuid.Parse(*req.TransformID)
		if err != nil {
			writeErrorStr(w, http.StatusBadRequest, "invalid transform id")
			return
		}
		transformID = &id
	}
	ok = true
	return
}

func (h *ValidationsHandler) Scale(w http.ResponseWriter, r *http.Request) {
	projectID, pgmID, transformID, ok := h.decode(w, r)
	if !ok {
		return
	}
	v, err := h.validationSvc.ValidateScale(r.Context(), projectID, pgmID, transformID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: v})
}

func (h *ValidationsHandler) Boundary(w http.ResponseWriter, r *http.Request) {
	projectID, pgmID, transformID, ok := h.decode(w, r)
	if !ok {
		return
	}
	v, err := h.validationSvc.ValidateBoundary(r.Context(), projectID, pgmID, transformID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: v})
}

func (h *ValidationsHandler) Shape(w http.ResponseWriter, r *http.Request) {
	projectID, pgmID, transformID, ok := h.decode(w, r)
	if !ok {
		return
	}
	v, err := h.validationSvc.ValidateShapes(r.Context(), projectID, pgmID, transformID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: v})
}

func (h *ValidationsHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseUUIDParam(r.URL.Query().Get("project_id"))
	if !ok {
		writeErrorStr(w, http.StatusBadRequest, "project_id is required")
		return
	}
	vType := r.URL.Query().Get("type")
	switch vType {
	case "", models.ValidationTypeScale, models.ValidationTypeBoundary, models.ValidationTypeShape:
	default:
		writeErrorStr(w, http.StatusBadRequest, "unknown validation type "+vType)
		return
	}
	items, err := h.validationSvc.ListValidations(r.Context(), projectID, vType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items})
}
