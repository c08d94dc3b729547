package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/panelproof/engine/internal/api/middleware"
	"github.com/panelproof/engine/internal/api/types"
	"github.com/panelproof/engine/internal/api/validators"
	"github.com/panelproof/engine/internal/geometry"
	"github.com/panelproof/engine/internal/models"
	"github.com/panelproof/engine/internal/services"
)

// OperationsHandler exposes the compliance operation lifecycle.
type OperationsHandler struct {
	governanceSvc services.GovernanceService
}

func NewOperationsHandler(governanceSvc services.GovernanceService) *OperationsHandler {
	return &OperationsHandler{governanceSvc: governanceSvc}
}

func (h *OperationsHandler) ProposeApplyTransform(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID   string           `json:"project_id" validate:"required,uuid"`
		TransformID *string          `json:"transform_id" validate:"omitempty,uuid"`
		Transform   *geometry.Affine `json:"transform"`
		Scope       string           `json:"scope" validate:"omitempty,oneof=ALL_ITEMS PANELS_ONLY"`
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
	payload := &services.ApplyTransformPayload{Transform: req.Transform, Scope: req.Scope}
	if req.TransformID != nil {
		id, _ := uuid.Parse(*req.TransformID)
		payload.TransformID = &id
	}

	op, err := h.governanceSvc.ProposeApplyTransform(r.Context(), projectID, payload, middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: op})
}

func (h *OperationsHandler) ProposeClamp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID string           `json:"project_id" validate:"required,uuid"`
		Strategy  string           `json:"strategy" validate:"required,oneof=MOVE_INSIDE REJECT_AND_FLAG"`
		Bounds    *geometry.Bounds `json:"bounds"`
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

	op, err := h.governanceSvc.ProposeClampToBoundary(r.Context(), projectID, &services.ClampPayload{
		Strategy: req.Strategy,
		Bounds:   req.Bounds,
	}, middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: op})
}

func (h *OperationsHandler) ProposeShapeCorrection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID     string   `json:"project_id" validate:"required,uuid"`
		PanelIDs      []string `json:"panel_ids" validate:"required,min=1"`
		ProposedShape string   `json:"proposed_shape"`
		Reason        string   `json:"reason"`
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

	op, err := h.governanceSvc.ProposeShapeCorrection(r.Context(), projectID, &services.ShapeCorrectionPayload{
		PanelIDs:      req.PanelIDs,
		ProposedShape: req.ProposedShape,
		Reason:        req.Reason,
	}, middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: op})
}

func (h *OperationsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	opID, ok := parseUUIDParam(chi.URLParam(r, "id"))
	if !ok {
		writeErrorStr(w, http.StatusBadRequest, "invalid operation id")
		return
	}
	// autoExecute defaults to true: approving normally applies the change.
	var req struct {
		AutoExecute *bool `json:"auto_execute"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorStr(w, http.StatusBadRequest, "invalid json")
			return
		}
	}
	autoExecute := true
	if req.AutoExecute != nil {
		autoExecute = *req.AutoExecute
	}

	op, err := h.governanceSvc.ApproveOperation(r.Context(), opID, middleware.GetUserID(r.Context()), autoExecute)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: op})
}

func (h *OperationsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	opID, ok := parseUUIDParam(chi.URLParam(r, "id"))
	if !ok {
		writeErrorStr(w, http.StatusBadRequest, "invalid operation id")
		return
	}
	op, err := h.governanceSvc.RejectOperation(r.Context(), opID, middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: op})
}

func (h *OperationsHandler) Execute(w http.ResponseWriter, r *http.Request) {
	opID, ok := parseUUIDParam(chi.URLParam(r, "id"))
	if !ok {
		writeErrorStr(w, http.StatusBadRequest, "invalid operation id")
		return
	}
	op, err := h.governanceSvc.ExecuteOperation(r.Context(), opID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: op})
}

func (h *OperationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	opID, ok := parseUUIDParam(chi.URLParam(r, "id"))
	if !ok {
		writeErrorStr(w, http.StatusBadRequest, "invalid operation id")
		return
	}
	op, err := h.governanceSvc.GetOperation(r.Context(), opID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: op})
}

func (h *OperationsHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseUUIDParam(r.URL.Query().Get("project_id"))
	if !ok {
		writeErrorStr(w, http.StatusBadRequest, "project_id is required")
		return
	}
	status := r.URL.Query().Get("status")
	switch status {
	case "", models.OperationStatusPending, models.OperationStatusApproved, models.OperationStatusApplied, models.OperationStatusRejected:
	default:
		writeErrorStr(w, http.StatusBadRequest, "unknown status "+status)
		return
	}
	items, err := h.governanceSvc.ListOperations(r.Context(), projectID, status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items})
}
