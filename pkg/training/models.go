package training

import (
	"time"

	"gorm.io/datatypes"
)

// Lifecycle statuses for a training run. The terminal three are
// absorbing; a model row is mutated to one of them exactly once.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// IsTerminal reports whether a status is absorbing.
func IsTerminal(status string) bool {
	switch status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Model is a fine-tuned model row. One row exists per (user, model
// name) at submission time; training_id is the provider-assigned run id
// used as the primary correlation key for callbacks.
type Model struct {
	ID             int64     `gorm:"primaryKey;column:id"`
	UserID         string    `gorm:"column:user_id;index:idx_models_user_name"`
	ModelName      string    `gorm:"column:model_name;index:idx_models_user_name"`
	ModelID        string    `gorm:"column:model_id;uniqueIndex"`
	Gender         string    `gorm:"column:gender"`
	TrainingStatus string    `gorm:"column:training_status;index"`
	TriggerWord    string    `gorm:"column:trigger_word"`
	TrainingSteps  int       `gorm:"column:training_steps"`
	TrainingTime   *float64  `gorm:"column:training_time"`
	Version        *string   `gorm:"column:version"`
	TrainingID     string    `gorm:"column:training_id;index"`
	FileName       string    `gorm:"column:file_name"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (Model) TableName() string {
	return "models"
}

// Delivery is the audit record of a processed webhook callback.
type Delivery struct {
	DeliveryID string            `gorm:"primaryKey;column:delivery_id"`
	UserID     string            `gorm:"column:user_id;index"`
	ModelName  string            `gorm:"column:model_name"`
	Status     string            `gorm:"column:status"`
	Payload    datatypes.JSONMap `gorm:"column:payload"`
	ReceivedAt time.Time         `gorm:"column:received_at"`
}

func (Delivery) TableName() string {
	return "webhook_deliveries"
}

// SubmitInput is a training submission from the API layer.
type SubmitInput struct {
	UserID    string
	ModelName string
	Gender    string
	FileKey   string
}

// Callback carries everything extracted from a verified webhook
// delivery: correlation parameters from the callback URL's query string
// and the recognized body fields. Correlation never comes from the
// body alone; its schema is provider-owned.
type Callback struct {
	DeliveryID   string
	UserID       string
	ModelName    string
	FileName     string
	TrainingID   string
	Status       string
	TrainingTime *float64
	Version      string
	Payload      map[string]interface{}
}
