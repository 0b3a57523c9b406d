package generation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/aivisio/platform/pkg/common/logger"
	"github.com/aivisio/platform/pkg/common/models"
	"github.com/aivisio/platform/pkg/credits"
	"github.com/aivisio/platform/pkg/middleware"
	"github.com/gorilla/mux"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/images/generate", h.handleGenerate).Methods(http.MethodPost)
	r.HandleFunc("/images", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/images/{id}", h.handleDelete).Methods(http.MethodDelete)
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	claims := middleware.UserClaims(r)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var input GenerateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	images, err := h.service.Generate(r.Context(), claims.Sub, input)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "missing required fields")
		case errors.Is(err, credits.ErrInsufficientCredits):
			writeError(w, http.StatusPaymentRequired, "no image credits left")
		case errors.Is(err, credits.ErrNoBalance):
			writeError(w, http.StatusNotFound, "no credit balance for this account")
		default:
			logger.Log.WithError(err).Error("Image generation failed")
			writeError(w, http.StatusInternalServerError, "image generation failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, models.APIResponse{Success: true, Data: images})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	claims := middleware.UserClaims(r)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	images, err := h.service.List(r.Context(), claims.Sub, limit)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to list generated images")
		writeError(w, http.StatusInternalServerError, "failed to list images")
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Success: true, Data: images})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	claims := middleware.UserClaims(r)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image id")
		return
	}

	if err := h.service.Delete(r.Context(), claims.Sub, id); err != nil {
		if errors.Is(err, ErrImageNotFound) {
			writeError(w, http.StatusNotFound, "image not found")
			return
		}
		logger.Log.WithError(err).Error("Failed to delete image")
		writeError(w, http.StatusInternalServerError, "failed to delete image")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Error("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.APIResponse{Success: false, Error: message})
}
