package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/panelproof/engine/internal/api/types"
	"github.com/panelproof/engine/internal/models"
	"github.com/panelproof/engine/internal/repository"
)

type ProjectsHandler struct {
	projectRepo  repository.ProjectRepository
	documentRepo repository.DocumentRepository
}

func NewProjectsHandler(projectRepo repository.ProjectRepository, documentRepo repository.DocumentRepository) *ProjectsHandler {
	return &ProjectsHandler{projectRepo: projectRepo, documentRepo: documentRepo}
}

func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.projectRepo.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	start := (page - 1) * size
	end := start + size
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}
	resp := types.APIResponse{Success: true, Data: items[start:end], Meta: &types.Meta{Page: page, PageSize: size, Total: int64(len(items))}}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(chi.URLParam(r, "id"))
	if !ok {
		writeErrorStr(w, http.StatusBadRequest, "invalid project id")
		return
	}
	var p models.Project
	if err := h.projectRepo.GetByID(r.Context(), id, &p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: p})
}

func (h *ProjectsHandler) Documents(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(chi.URLParam(r, "id"))
	if !ok {
		writeErrorStr(w, http.StatusBadRequest, "invalid project id")
		return
	}
	docs, err := h.documentRepo.ListByProject(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: docs})
}
