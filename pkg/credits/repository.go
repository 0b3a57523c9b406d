package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrNoBalance means the user has no ledger row for the resource kind.
	ErrNoBalance = errors.New("credit balance not found")
	// ErrInsufficientCredits means the count is already at zero.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Balance{})
}

func countColumns(kind string) (col string, maxCol string, err error) {
	switch kind {
	case KindImageGeneration:
		return "image_generation_count", "max_image_generation_count", nil
	case KindModelTraining:
		return "model_training_count", "max_model_training_count", nil
	default:
		return "", "", fmt.Errorf("unknown resource kind %q", kind)
	}
}

// TryDebit decrements the counter by one if and only if it is positive.
// The guard runs inside the UPDATE itself so concurrent submissions for
// the same user cannot both pass a stale read.
func (r *Repository) TryDebit(ctx context.Context, userID, kind string) (int, error) {
	col, _, err := countColumns(kind)
	if err != nil {
		return 0, err
	}

	result := r.db.WithContext(ctx).Model(&Balance{}).
		Where("user_id = ? AND "+col+" > 0", userID).
		Updates(map[string]interface{}{
			col:          gorm.Expr(col + " - 1"),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, result.Error
	}

	if result.RowsAffected == 0 {
		// Distinguish an exhausted balance from a missing row.
		if _, err := r.Get(ctx, userID); err != nil {
			return 0, err
		}
		return 0, ErrInsufficientCredits
	}

	balance, err := r.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return balance.Remaining(kind), nil
}

// Refund increments the counter by one, clamped to the configured max
// in the same UPDATE statement.
func (r *Repository) Refund(ctx context.Context, userID, kind string) error {
	col, maxCol, err := countColumns(kind)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).Model(&Balance{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			col:          gorm.Expr("LEAST(" + col + " + 1, " + maxCol + ")"),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNoBalance
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, userID string) (*Balance, error) {
	var balance Balance
	result := r.db.WithContext(ctx).First(&balance, "user_id = ?", userID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNoBalance
	}
	return &balance, result.Error
}

func (r *Repository) Create(ctx context.Context, balance *Balance) error {
	balance.CreatedAt = time.Now().UTC()
	balance.UpdatedAt = balance.CreatedAt
	return r.db.WithContext(ctx).Create(balance).Error
}
