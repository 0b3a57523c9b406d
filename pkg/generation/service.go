package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aivisio/platform/pkg/common/logger"
	"github.com/aivisio/platform/pkg/credits"
	"github.com/aivisio/platform/pkg/observability/metrics"
	"github.com/google/uuid"
)

var ErrInvalidInput = errors.New("missing required fields")

// Provider runs a synchronous prediction. Generation has no
// asynchronous callback; the call returns the output URLs directly.
type Provider interface {
	Run(ctx context.Context, model string, input map[string]interface{}) ([]string, error)
}

// Ledger is the credit surface the generator needs.
type Ledger interface {
	TryDebit(ctx context.Context, userID, kind string) (int, error)
	Refund(ctx context.Context, userID, kind string) error
}

// Store persists output binaries and signs gallery URLs.
type Store interface {
	Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error
	SignedDownloadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	Remove(ctx context.Context, bucket, key string) error
}

// ImageStore is the gallery persistence surface.
type ImageStore interface {
	Create(ctx context.Context, image *Image) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Image, error)
	Delete(ctx context.Context, userID string, id int64) (*Image, error)
}

type Service struct {
	repo       ImageStore
	provider   Provider
	ledger     Ledger
	store      Store
	fetcher    *http.Client
	bucket     string
	signedTTL  time.Duration
	dimensions func(aspectRatio string) (int, int)
}

func NewService(repo ImageStore, provider Provider, ledger Ledger, store Store, fetcher *http.Client, bucket string, signedTTL time.Duration) *Service {
	return &Service{
		repo:       repo,
		provider:   provider,
		ledger:     ledger,
		store:      store,
		fetcher:    fetcher,
		bucket:     bucket,
		signedTTL:  signedTTL,
		dimensions: aspectDimensions,
	}
}

// Generate debits one image credit, runs the prediction, and stores
// every output. The provider call is synchronous; a failure after the
// debit refunds the credit immediately.
func (s *Service) Generate(ctx context.Context, userID string, input GenerateInput) ([]ImageWithURL, error) {
	if userID == "" || input.Model == "" || input.Prompt == "" {
		return nil, ErrInvalidInput
	}
	if input.NumOutputs <= 0 {
		input.NumOutputs = 1
	}

	if _, err := s.ledger.TryDebit(ctx, userID, credits.KindImageGeneration); err != nil {
		metrics.GenerationRejected()
		return nil, err
	}

	urls, err := s.provider.Run(ctx, input.Model, map[string]interface{}{
		"prompt":              input.Prompt,
		"go_fast":             true,
		"guidance":            input.Guidance,
		"megapixels":          "1",
		"num_outputs":         input.NumOutputs,
		"aspect_ratio":        input.AspectRatio,
		"output_format":       input.OutputFormat,
		"output_quality":      input.OutputQuality,
		"prompt_strength":     0.8,
		"num_inference_steps": input.NumInferenceSteps,
	})
	if err != nil {
		if refundErr := s.ledger.Refund(ctx, userID, credits.KindImageGeneration); refundErr != nil {
			logger.Log.WithError(refundErr).WithField("user_id", userID).
				Error("Failed to refund image credit after generation error")
		}
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	stored := make([]ImageWithURL, 0, len(urls))
	for _, outputURL := range urls {
		image, err := s.storeOutput(ctx, userID, input, outputURL)
		if err != nil {
			logger.Log.WithError(err).WithField("user_id", userID).Error("Failed to store generated image")
			continue
		}
		stored = append(stored, *image)
	}

	metrics.ImagesGenerated(len(stored))
	return stored, nil
}

func (s *Service) storeOutput(ctx context.Context, userID string, input GenerateInput, outputURL string) (*ImageWithURL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, outputURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.fetcher.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch output: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("output fetch returned %d", resp.StatusCode)
	}

	format := input.OutputFormat
	if format == "" {
		format = "webp"
	}
	imageName := fmt.Sprintf("image_%s.%s", uuid.New().String(), format)
	key := userID + "/" + imageName

	if err := s.store.Put(ctx, s.bucket, key, resp.Body, resp.ContentLength, "image/"+format); err != nil {
		return nil, err
	}

	width, height := s.dimensions(input.AspectRatio)
	image := &Image{
		UserID:            userID,
		Model:             input.Model,
		Prompt:            input.Prompt,
		Guidance:          input.Guidance,
		NumInferenceSteps: input.NumInferenceSteps,
		OutputFormat:      format,
		Width:             width,
		Height:            height,
		AspectRatio:       input.AspectRatio,
		ImageName:         imageName,
	}
	if err := s.repo.Create(ctx, image); err != nil {
		return nil, err
	}

	signed, err := s.store.SignedDownloadURL(ctx, s.bucket, key, s.signedTTL)
	if err != nil {
		logger.Log.WithError(err).WithField("key", key).Warn("Failed to sign stored image URL")
	}
	return &ImageWithURL{Image: *image, URL: signed}, nil
}

// List returns the user's gallery with fresh signed URLs.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]ImageWithURL, error) {
	images, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	results := make([]ImageWithURL, 0, len(images))
	for _, image := range images {
		key := userID + "/" + image.ImageName
		signed, err := s.store.SignedDownloadURL(ctx, s.bucket, key, s.signedTTL)
		if err != nil {
			logger.Log.WithError(err).WithField("key", key).Warn("Failed to sign gallery image URL")
		}
		results = append(results, ImageWithURL{Image: image, URL: signed})
	}
	return results, nil
}

// Delete removes the row and the stored object.
func (s *Service) Delete(ctx context.Context, userID string, id int64) error {
	image, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return err
	}
	return s.store.Remove(ctx, s.bucket, userID+"/"+image.ImageName)
}

// aspectDimensions maps the supported aspect ratios onto one-megapixel
// output dimensions.
func aspectDimensions(aspectRatio string) (int, int) {
	switch aspectRatio {
	case "16:9":
		return 1344, 768
	case "9:16":
		return 768, 1344
	case "4:3":
		return 1152, 896
	case "3:4":
		return 896, 1152
	default:
		return 1024, 1024
	}
}
