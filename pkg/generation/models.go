package generation

import "time"

// Image is one stored generation output. The binary lives in object
// storage under <user id>/<image name>; this row carries the
// parameters it was produced with.
type Image struct {
	ID                int64     `gorm:"primaryKey;column:id"`
	UserID            string    `gorm:"column:user_id;index"`
	Model             string    `gorm:"column:model"`
	Prompt            string    `gorm:"column:prompt"`
	Guidance          float64   `gorm:"column:guidance"`
	NumInferenceSteps int       `gorm:"column:num_inference_steps"`
	OutputFormat      string    `gorm:"column:output_format"`
	Width             int       `gorm:"column:width"`
	Height            int       `gorm:"column:height"`
	AspectRatio       string    `gorm:"column:aspect_ratio"`
	ImageName         string    `gorm:"column:image_name"`
	CreatedAt         time.Time `gorm:"column:created_at"`
}

func (Image) TableName() string {
	return "generated_images"
}

// ImageWithURL decorates a stored image with a fresh signed URL for
// gallery rendering.
type ImageWithURL struct {
	Image
	URL string `json:"url"`
}

// GenerateInput mirrors the generation form.
type GenerateInput struct {
	Model             string  `json:"model"`
	Prompt            string  `json:"prompt"`
	Guidance          float64 `json:"guidance"`
	NumOutputs        int     `json:"num_outputs"`
	AspectRatio       string  `json:"aspect_ratio"`
	OutputFormat      string  `json:"output_format"`
	OutputQuality     int     `json:"output_quality"`
	NumInferenceSteps int     `json:"num_inference_steps"`
}
