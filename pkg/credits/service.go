package credits

import (
	"context"

	"github.com/aivisio/platform/pkg/common/config"
	"github.com/aivisio/platform/pkg/common/logger"
)

type Service struct {
	repo        *Repository
	defaultPlan config.Plan
}

func NewService(repo *Repository, defaultPlan config.Plan) *Service {
	return &Service{repo: repo, defaultPlan: defaultPlan}
}

func (s *Service) TryDebit(ctx context.Context, userID, kind string) (int, error) {
	remaining, err := s.repo.TryDebit(ctx, userID, kind)
	if err != nil {
		return 0, err
	}
	logger.Log.WithFields(map[string]interface{}{
		"user_id":   userID,
		"kind":      kind,
		"remaining": remaining,
	}).Info("Credit debited")
	return remaining, nil
}

func (s *Service) Refund(ctx context.Context, userID, kind string) error {
	if err := s.repo.Refund(ctx, userID, kind); err != nil {
		return err
	}
	logger.Log.WithFields(map[string]interface{}{
		"user_id": userID,
		"kind":    kind,
	}).Info("Credit refunded")
	return nil
}

func (s *Service) Get(ctx context.Context, userID string) (*Balance, error) {
	return s.repo.Get(ctx, userID)
}

// EnsureBalance creates the ledger row for a new account with the
// default plan's allowances. Account creation is driven by the identity
// provider; this is invoked when a user is first seen.
func (s *Service) EnsureBalance(ctx context.Context, userID string) (*Balance, error) {
	balance, err := s.repo.Get(ctx, userID)
	if err == nil {
		return balance, nil
	}
	if err != ErrNoBalance {
		return nil, err
	}

	balance = &Balance{
		UserID:                  userID,
		ImageGenerationCount:    s.defaultPlan.InitialImageGenerations,
		MaxImageGenerationCount: s.defaultPlan.MaxImageGenerations,
		ModelTrainingCount:      s.defaultPlan.InitialModelTrainings,
		MaxModelTrainingCount:   s.defaultPlan.MaxModelTrainings,
	}
	if err := s.repo.Create(ctx, balance); err != nil {
		return nil, err
	}
	logger.Log.WithField("user_id", userID).Info("Credit balance provisioned")
	return balance, nil
}
