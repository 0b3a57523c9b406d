package training

import (
	"context"
	"strings"

	"github.com/aivisio/platform/pkg/common/logger"
	"github.com/aivisio/platform/pkg/common/models"
	"github.com/aivisio/platform/pkg/credits"
	"github.com/aivisio/platform/pkg/observability/metrics"
)

// Deduper rejects replayed deliveries before any state is touched.
// Forget releases the id again when processing fails, so the
// provider's retry of that delivery is not swallowed.
type Deduper interface {
	MarkSeen(ctx context.Context, deliveryID string) (bool, error)
	Forget(ctx context.Context, deliveryID string) error
}

// Publisher emits platform events for downstream notification dispatch.
type Publisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

// ReconcilerStore is the persistence surface used during reconciliation.
type ReconcilerStore interface {
	UpdateProgress(ctx context.Context, cb Callback) error
	Terminalize(ctx context.Context, cb Callback) (bool, error)
	RecordDelivery(ctx context.Context, cb Callback) error
}

// Reconciler drives the training job state machine from verified
// webhook callbacks: terminal status update, credit refund on
// non-success, staged data cleanup, and notification dispatch.
type Reconciler struct {
	store     ReconcilerStore
	ledger    Ledger
	objects   Store
	deduper   Deduper
	publisher Publisher
	bucket    string
}

func NewReconciler(store ReconcilerStore, ledger Ledger, objects Store, deduper Deduper, publisher Publisher, bucket string) *Reconciler {
	return &Reconciler{
		store:     store,
		ledger:    ledger,
		objects:   objects,
		deduper:   deduper,
		publisher: publisher,
		bucket:    bucket,
	}
}

// Process applies one verified callback. The caller has already
// authenticated the delivery; nothing here runs before the dedupe
// check, and side effects (refund, notification) only run when this
// call performed the terminal transition. A processing error releases
// the delivery id again: the provider retries failed deliveries, and
// the row-level transition guard keeps the retry idempotent.
func (r *Reconciler) Process(ctx context.Context, cb Callback) error {
	fresh, err := r.deduper.MarkSeen(ctx, cb.DeliveryID)
	if err != nil {
		return err
	}
	if !fresh {
		metrics.WebhookDuplicate()
		logger.Log.WithField("delivery_id", cb.DeliveryID).Warn("Duplicate webhook delivery ignored")
		return nil
	}

	if err := r.reconcile(ctx, cb); err != nil {
		if forgetErr := r.deduper.Forget(ctx, cb.DeliveryID); forgetErr != nil {
			logger.Log.WithError(forgetErr).WithField("delivery_id", cb.DeliveryID).
				Error("Failed to release delivery id after processing error")
		}
		return err
	}
	return nil
}

func (r *Reconciler) reconcile(ctx context.Context, cb Callback) error {
	cb.Status = normalizeStatus(cb.Status)
	cb.Version = versionSuffix(cb.Version)

	if !IsTerminal(cb.Status) {
		return r.store.UpdateProgress(ctx, cb)
	}

	transitioned, err := r.store.Terminalize(ctx, cb)
	if err != nil {
		return err
	}
	if !transitioned {
		logger.Log.WithFields(map[string]interface{}{
			"delivery_id": cb.DeliveryID,
			"user_id":     cb.UserID,
			"model_name":  cb.ModelName,
		}).Warn("Callback for already-terminal job ignored")
		return nil
	}

	r.notify(ctx, cb)
	r.cleanup(ctx, cb)

	if cb.Status != StatusSucceeded {
		// The reservation is only consumed by a successful run.
		if err := r.ledger.Refund(ctx, cb.UserID, credits.KindModelTraining); err != nil {
			logger.Log.WithError(err).WithField("user_id", cb.UserID).Error("Failed to refund training credit")
			return err
		}
		metrics.CreditRefunded()
	}

	if err := r.store.RecordDelivery(ctx, cb); err != nil {
		logger.Log.WithError(err).WithField("delivery_id", cb.DeliveryID).Error("Failed to record webhook delivery")
	}

	logger.Log.WithFields(map[string]interface{}{
		"delivery_id": cb.DeliveryID,
		"user_id":     cb.UserID,
		"model_name":  cb.ModelName,
		"status":      cb.Status,
	}).Info("Training job reconciled")
	return nil
}

func (r *Reconciler) notify(ctx context.Context, cb Callback) {
	err := r.publisher.PublishEvent(ctx, models.EventTrainingFinished, "training-service", map[string]interface{}{
		"user_id":    cb.UserID,
		"model_name": cb.ModelName,
		"status":     cb.Status,
	})
	if err != nil {
		logger.Log.WithError(err).WithField("user_id", cb.UserID).Error("Failed to publish training notification")
	}
}

// cleanup removes the staged archive under both key shapes the system
// has ever written: the user-prefixed key and the bare file name.
func (r *Reconciler) cleanup(ctx context.Context, cb Callback) {
	if cb.FileName == "" {
		return
	}
	keys := []string{stagedKey(cb.UserID, cb.FileName)}
	if keys[0] != cb.FileName {
		keys = append(keys, cb.FileName)
	}
	for _, key := range keys {
		if err := r.objects.Remove(ctx, r.bucket, key); err != nil {
			logger.Log.WithError(err).WithField("key", key).Warn("Failed to delete staged training data")
		}
	}
}

// normalizeStatus maps provider status strings onto the lifecycle set.
func normalizeStatus(status string) string {
	switch strings.ToLower(status) {
	case StatusSucceeded:
		return StatusSucceeded
	case StatusFailed:
		return StatusFailed
	case StatusCanceled, "cancelled":
		return StatusCanceled
	case StatusStarting:
		return StatusStarting
	default:
		return StatusProcessing
	}
}

// versionSuffix keeps only the part after the colon of an
// "owner/name:version" reference.
func versionSuffix(version string) string {
	if idx := strings.LastIndex(version, ":"); idx >= 0 {
		return version[idx+1:]
	}
	return version
}
