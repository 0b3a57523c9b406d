package credits

import "time"

// Resource kinds tracked by the ledger.
const (
	KindImageGeneration = "image_generation"
	KindModelTraining   = "model_training"
)

// Balance holds the consumable counters for one user. Counts stay in
// [0, max]; decrements are rejected at zero, never clamped.
type Balance struct {
	ID                      int64     `gorm:"primaryKey;column:id"`
	UserID                  string    `gorm:"column:user_id;uniqueIndex"`
	ImageGenerationCount    int       `gorm:"column:image_generation_count"`
	MaxImageGenerationCount int       `gorm:"column:max_image_generation_count"`
	ModelTrainingCount      int       `gorm:"column:model_training_count"`
	MaxModelTrainingCount   int       `gorm:"column:max_model_training_count"`
	CreatedAt               time.Time `gorm:"column:created_at"`
	UpdatedAt               time.Time `gorm:"column:updated_at"`
}

func (Balance) TableName() string {
	return "credits"
}

// Remaining returns the current count for the given resource kind.
func (b *Balance) Remaining(kind string) int {
	if kind == KindImageGeneration {
		return b.ImageGenerationCount
	}
	return b.ModelTrainingCount
}
