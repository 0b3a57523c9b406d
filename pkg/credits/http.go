package credits

import (
	"encoding/json"
	"net/http"

	"github.com/aivisio/platform/pkg/common/logger"
	"github.com/aivisio/platform/pkg/common/models"
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
	r.HandleFunc("/credits", h.handleGet).Methods(http.MethodGet)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	claims := middleware.UserClaims(r)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	balance, err := h.service.EnsureBalance(r.Context(), claims.Sub)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to load credit balance")
		writeError(w, http.StatusInternalServerError, "failed to load credits")
		return
	}

	writeJSON(w, http.StatusOK, models.APIResponse{Success: true, Data: balance})
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
