package generation

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrImageNotFound = errors.New("generated image not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Image{})
}

func (r *Repository) Create(ctx context.Context, image *Image) error {
	image.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(image).Error
}

func (r *Repository) ListByUser(ctx context.Context, userID string, limit int) ([]Image, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var images []Image
	result := query.Find(&images)
	return images, result.Error
}

// Delete removes the row only when it belongs to the requesting user.
func (r *Repository) Delete(ctx context.Context, userID string, id int64) (*Image, error) {
	var image Image
	result := r.db.WithContext(ctx).First(&image, "id = ? AND user_id = ?", id, userID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrImageNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}

	if err := r.db.WithContext(ctx).Delete(&image).Error; err != nil {
		return nil, err
	}
	return &image, nil
}
