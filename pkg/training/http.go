package training

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/aivisio/platform/pkg/common/logger"
	"github.com/aivisio/platform/pkg/common/models"
	"github.com/aivisio/platform/pkg/credits"
	"github.com/aivisio/platform/pkg/middleware"
	"github.com/aivisio/platform/pkg/observability/metrics"
	"github.com/aivisio/platform/pkg/storage"
	"github.com/aivisio/platform/pkg/webhook"
	"github.com/gorilla/mux"
)

const maxWebhookBody = 1 << 20

// CallbackVerifier authenticates webhook deliveries.
type CallbackVerifier interface {
	Verify(ctx context.Context, headers http.Header, rawBody []byte) error
}

type Handler struct {
	service    *Service
	reconciler *Reconciler
	verifier   CallbackVerifier
}

func NewHandler(service *Service, reconciler *Reconciler, verifier CallbackVerifier) *Handler {
	return &Handler{service: service, reconciler: reconciler, verifier: verifier}
}

// Register wires the authenticated job API.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/training/jobs", h.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/training/jobs", h.handleList).Methods(http.MethodGet)
}

// RegisterWebhook wires the unauthenticated callback endpoint; the HMAC
// check is its only gate.
func (h *Handler) RegisterWebhook(r *mux.Router) {
	r.HandleFunc("/api/webhooks/training", h.handleWebhook).Methods(http.MethodPost)
}

type submitRequest struct {
	ModelName string `json:"modelName"`
	Gender    string `json:"gender"`
	FileKey   string `json:"fileKey"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	claims := middleware.UserClaims(r)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	model, err := h.service.Submit(r.Context(), SubmitInput{
		UserID:    claims.Sub,
		ModelName: req.ModelName,
		Gender:    req.Gender,
		FileKey:   req.FileKey,
	})
	if err != nil {
		metrics.TrainingRejected()
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "missing required fields")
		case errors.Is(err, credits.ErrInsufficientCredits):
			writeError(w, http.StatusPaymentRequired, "no training credits left")
		case errors.Is(err, credits.ErrNoBalance):
			writeError(w, http.StatusNotFound, "no credit balance for this account")
		case errors.Is(err, storage.ErrObjectNotFound):
			writeError(w, http.StatusNotFound, "training data not found")
		default:
			logger.Log.WithError(err).Error("Training submission failed")
			writeError(w, http.StatusInternalServerError, "training submission failed")
		}
		return
	}

	metrics.TrainingSubmitted()
	writeJSON(w, http.StatusOK, models.APIResponse{Success: true, Data: model})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	claims := middleware.UserClaims(r)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	items, err := h.service.List(r.Context(), claims.Sub)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to list models")
		writeError(w, http.StatusInternalServerError, "failed to list models")
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Success: true, Data: items})
}

type webhookBody struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Metrics struct {
		TotalTime *float64 `json:"total_time"`
	} `json:"metrics"`
	Output struct {
		Version string `json:"version"`
	} `json:"output"`
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	// Authentication strictly precedes any state mutation.
	if err := h.verifier.Verify(r.Context(), r.Header, rawBody); err != nil {
		metrics.WebhookRejected()
		logger.Log.WithError(err).Warn("Webhook delivery rejected")
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	metrics.WebhookAccepted()

	var body webhookBody
	if err := json.Unmarshal(rawBody, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	var payload map[string]interface{}
	_ = json.Unmarshal(rawBody, &payload)

	query := r.URL.Query()
	userID := query.Get("userId")
	if userID == "" {
		userID = query.Get("user_id")
	}

	cb := Callback{
		DeliveryID:   r.Header.Get(webhook.HeaderID),
		UserID:       userID,
		ModelName:    query.Get("modelName"),
		FileName:     query.Get("fileName"),
		TrainingID:   body.ID,
		Status:       body.Status,
		TrainingTime: body.Metrics.TotalTime,
		Version:      body.Output.Version,
		Payload:      payload,
	}
	if cb.UserID == "" || (cb.ModelName == "" && cb.TrainingID == "") {
		writeError(w, http.StatusBadRequest, "missing correlation parameters")
		return
	}

	if err := h.reconciler.Process(r.Context(), cb); err != nil {
		logger.Log.WithError(err).WithField("delivery_id", cb.DeliveryID).Error("Webhook reconciliation failed")
		writeError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{})
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
