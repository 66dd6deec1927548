package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/fundme/internal/deployments/domain"
)

// Handler handles HTTP requests for deployment history.
type Handler struct {
	svc domain.Service
}

// NewHandler creates a new deployments HTTP handler.
func NewHandler(svc domain.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterReadRoutes registers read-only deployment routes (no auth required).
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{network}/latest", h.handleLatest)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := domain.DefaultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer")
			return
		}
		limit = min(parsed, domain.MaxLimit)
	}

	deployments, err := h.svc.List(r.Context(), domain.ListFilter{
		Network: r.URL.Query().Get("network"),
		Limit:   limit,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := DeploymentListResponse{Data: make([]DeploymentResponse, len(deployments)), Limit: limit}
	for i, d := range deployments {
		resp.Data[i] = ToDeploymentResponse(d)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Latest(r.Context(), chi.URLParam(r, "network"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToDeploymentResponse(*d))
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownNetwork):
		writeError(w, http.StatusNotFound, "UNKNOWN_NETWORK", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read deployments")
	}
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
