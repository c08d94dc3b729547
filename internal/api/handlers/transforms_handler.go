package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/panelproof/engine/internal/api/types"
	"github.com/panelproof/engine/internal/api/validators"
	"github.com/panelproof/engine/internal/geometry"
	"github.com/panelproof/engine/internal/services"
)

// TransformsHandler exposes layout-to-plan registration.
type TransformsHandler struct {
	registrationSvc services.RegistrationService
}

func NewTransformsHandler(registrationSvc services.RegistrationService) *TransformsHandler {
	return &TransformsHandler{registrationSvc: registrationSvc}
}

type anchorPair struct {
	Plan   geometry.Point `json:"plan"`
	Layout geometry.Point `json:"layout"`
}

func (h *TransformsHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID           string           `json:"project_id" validate:"required,uuid"`
		PlanGeometryModelID string           `json:"plan_geometry_model_id" validate:"required,uuid"`
		Method              string           `json:"method" validate:"required"`
		Anchors             []anchorPair     `json:"anchors"`
		Transform           *geometry.Affine `json:"transform"`
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
	pgmID, _ := uuid.Parse(req.PlanGeometryModelID)

	anchors := make([]geometry.Anchor, len(req.Anchors))
	for i, a := range req.Anchors {
		anchors[i] = geometry.Anchor{Plan: a.Plan, Layout: a.Layout}
	}

	res, err := h.registrationSvc.RegisterLayoutToPlan(r.Context(), &services.RegisterInput{
		ProjectID:           projectID,
		PlanGeometryModelID: pgmID,
		Method:              req.Method,
		Anchors:             anchors,
		Manual:              req.Transform,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: res})
}

func (h *TransformsHandler) Active(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseUUIDParam(r.URL.Query().Get("project_id"))
	if !ok {
		writeErrorStr(w, http.StatusBadRequest, "project_id is required")
		return
	}
	t, err := h.registrationSvc.GetActiveTransform(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: t})
}

func (h *TransformsHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseUUIDParam(r.URL.Query().Get("project_id"))
	if !ok {
		writeErrorStr(w, http.StatusBadRequest, "project_id is required")
		return
	}
	items, err := h.registrationSvc.ListTransforms(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items})
}
