package training

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aivisio/platform/pkg/common/logger"
	"github.com/aivisio/platform/pkg/credits"
	"github.com/aivisio/platform/pkg/replicate"
)

var ErrInvalidInput = errors.New("missing required fields")

// Ledger is the slice of the credit ledger the submitter needs.
type Ledger interface {
	TryDebit(ctx context.Context, userID, kind string) (int, error)
	Refund(ctx context.Context, userID, kind string) error
}

// Store issues signed URLs for staged training data.
type Store interface {
	SignedDownloadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	Remove(ctx context.Context, bucket, key string) error
}

// Provider creates destination models and training runs.
type Provider interface {
	CreateModel(ctx context.Context, input replicate.CreateModelInput) error
	CreateTraining(ctx context.Context, trainer string, input replicate.CreateTrainingInput) (*replicate.Training, error)
}

// JobStore is the persistence surface used by the submitter.
type JobStore interface {
	Create(ctx context.Context, model *Model) error
	ListByUser(ctx context.Context, userID string) ([]Model, error)
}

// Options carries the static submission parameters.
type Options struct {
	Owner          string
	TrainerVersion string
	Hardware       string
	Steps          int
	Resolution     string
	TriggerWord    string
	SiteURL        string
	Bucket         string
	SignedURLTTL   time.Duration
}

type Service struct {
	jobs     JobStore
	ledger   Ledger
	store    Store
	provider Provider
	opts     Options
	now      func() time.Time
}

func NewService(jobs JobStore, ledger Ledger, store Store, provider Provider, opts Options) *Service {
	if opts.Hardware == "" {
		opts.Hardware = "gpu-l40s"
	}
	if opts.Resolution == "" {
		opts.Resolution = "1024"
	}
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = time.Hour
	}
	return &Service{
		jobs:     jobs,
		ledger:   ledger,
		store:    store,
		provider: provider,
		opts:     opts,
		now:      time.Now,
	}
}

// Submit reserves a training credit, stages the input, and issues the
// training run. Steps are strictly sequential; nothing external is
// touched before the credit reservation succeeds. Failures after the
// debit roll the reservation back with an explicit compensating refund,
// since no callback will ever arrive for a run that was never created.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (*Model, error) {
	if input.UserID == "" || input.ModelName == "" || input.FileKey == "" {
		return nil, ErrInvalidInput
	}

	remaining, err := s.ledger.TryDebit(ctx, input.UserID, credits.KindModelTraining)
	if err != nil {
		return nil, err
	}

	model, err := s.submitAfterDebit(ctx, input)
	if err != nil {
		if refundErr := s.ledger.Refund(ctx, input.UserID, credits.KindModelTraining); refundErr != nil {
			logger.Log.WithError(refundErr).WithField("user_id", input.UserID).
				Error("Compensating refund failed after submission error")
		}
		return nil, err
	}

	logger.Log.WithFields(map[string]interface{}{
		"user_id":     input.UserID,
		"model_id":    model.ModelID,
		"training_id": model.TrainingID,
		"remaining":   remaining,
	}).Info("Training job submitted")
	return model, nil
}

func (s *Service) submitAfterDebit(ctx context.Context, input SubmitInput) (*Model, error) {
	fileName := strings.TrimPrefix(input.FileKey, "training_data/")
	stagedKey := stagedKey(input.UserID, fileName)

	signedURL, err := s.store.SignedDownloadURL(ctx, s.opts.Bucket, stagedKey, s.opts.SignedURLTTL)
	if err != nil {
		return nil, err
	}

	modelID := s.destinationModelID(input.UserID, input.ModelName)

	if err := s.provider.CreateModel(ctx, replicate.CreateModelInput{
		Owner:      s.opts.Owner,
		Name:       modelID,
		Visibility: "private",
		Hardware:   s.opts.Hardware,
	}); err != nil {
		return nil, fmt.Errorf("failed to create destination model: %w", err)
	}

	run, err := s.provider.CreateTraining(ctx, s.opts.TrainerVersion, replicate.CreateTrainingInput{
		Destination: s.opts.Owner + "/" + modelID,
		Input: replicate.TrainingInput{
			Steps:       s.opts.Steps,
			Resolution:  s.opts.Resolution,
			InputImages: signedURL,
			TriggerWord: s.opts.TriggerWord,
		},
		Webhook:             s.callbackURL(input.UserID, input.ModelName, fileName),
		WebhookEventsFilter: []string{"completed"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create training run: %w", err)
	}

	model := &Model{
		UserID:         input.UserID,
		ModelName:      input.ModelName,
		ModelID:        modelID,
		Gender:         input.Gender,
		TrainingStatus: StatusStarting,
		TriggerWord:    s.opts.TriggerWord,
		TrainingSteps:  s.opts.Steps,
		TrainingID:     run.ID,
		FileName:       fileName,
	}
	if err := s.jobs.Create(ctx, model); err != nil {
		return nil, fmt.Errorf("failed to persist training job: %w", err)
	}
	return model, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]Model, error) {
	return s.jobs.ListByUser(ctx, userID)
}

// destinationModelID builds a globally unique external model id from
// the user, submission time, and normalized model name.
func (s *Service) destinationModelID(userID, modelName string) string {
	normalized := strings.ReplaceAll(strings.ToLower(modelName), " ", "_")
	return fmt.Sprintf("%s_%d_%s", userID, s.now().Unix(), normalized)
}

// callbackURL embeds the correlation parameters the asynchronous
// callback will echo back; they are the only durable link between the
// delivery and the originating job.
func (s *Service) callbackURL(userID, modelName, fileName string) string {
	query := url.Values{}
	query.Set("userId", userID)
	query.Set("modelName", modelName)
	query.Set("fileName", fileName)
	return strings.TrimRight(s.opts.SiteURL, "/") + "/api/webhooks/training?" + query.Encode()
}

func stagedKey(userID, fileName string) string {
	if strings.HasPrefix(fileName, userID+"/") {
		return fileName
	}
	return userID + "/" + fileName
}
