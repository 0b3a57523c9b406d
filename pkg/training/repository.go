package training

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrModelNotFound = errors.New("model not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Model{}, &Delivery{})
}

func (r *Repository) Create(ctx context.Context, model *Model) error {
	model.CreatedAt = time.Now().UTC()
	model.UpdatedAt = model.CreatedAt
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *Repository) Get(ctx context.Context, userID, modelName string) (*Model, error) {
	var model Model
	result := r.db.WithContext(ctx).First(&model, "user_id = ? AND model_name = ?", userID, modelName)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrModelNotFound
	}
	return &model, result.Error
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]Model, error) {
	var models []Model
	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&models)
	return models, result.Error
}

// match builds the correlation clause: the provider-assigned training
// id when the callback carries one, otherwise (user, model name).
func (r *Repository) match(ctx context.Context, cb Callback) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&Model{})
	if cb.TrainingID != "" {
		return q.Where("training_id = ?", cb.TrainingID)
	}
	return q.Where("user_id = ? AND model_name = ?", cb.UserID, cb.ModelName)
}

// UpdateProgress records a non-terminal provider status. Rows already
// in a terminal status are left untouched.
func (r *Repository) UpdateProgress(ctx context.Context, cb Callback) error {
	return r.match(ctx, cb).
		Where("training_status NOT IN ?", []string{StatusSucceeded, StatusFailed, StatusCanceled}).
		Updates(map[string]interface{}{
			"training_status": cb.Status,
			"updated_at":      time.Now().UTC(),
		}).Error
}

// Terminalize transitions the matched row to a terminal status, guarded
// so a row already terminal is never transitioned twice. The returned
// bool reports whether this call performed the transition; callers gate
// refunds and notifications on it.
func (r *Repository) Terminalize(ctx context.Context, cb Callback) (bool, error) {
	updates := map[string]interface{}{
		"training_status": cb.Status,
		"updated_at":      time.Now().UTC(),
	}
	if cb.Status == StatusSucceeded {
		if cb.TrainingTime != nil {
			updates["training_time"] = *cb.TrainingTime
		}
		if cb.Version != "" {
			updates["version"] = cb.Version
		}
	}

	result := r.match(ctx, cb).
		Where("training_status NOT IN ?", []string{StatusSucceeded, StatusFailed, StatusCanceled}).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RecordDelivery stores the callback for auditing. A duplicate delivery
// id is not an error; the dedupe guard has already rejected replays.
func (r *Repository) RecordDelivery(ctx context.Context, cb Callback) error {
	delivery := &Delivery{
		DeliveryID: cb.DeliveryID,
		UserID:     cb.UserID,
		ModelName:  cb.ModelName,
		Status:     cb.Status,
		Payload:    datatypes.JSONMap(cb.Payload),
		ReceivedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Create(delivery).Error
}
