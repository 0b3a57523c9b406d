package notify

import (
	"context"
	"fmt"

	"github.com/aivisio/platform/pkg/common/logger"
	"github.com/aivisio/platform/pkg/common/models"
	"github.com/aivisio/platform/pkg/identity"
	"github.com/aivisio/platform/pkg/training"
)

// UserDirectory resolves an account id to a deliverable address.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*identity.User, error)
}

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Notifier turns training.finished events into terminal-status emails.
type Notifier struct {
	directory UserDirectory
	sender    Sender
}

func NewNotifier(directory UserDirectory, sender Sender) *Notifier {
	return &Notifier{directory: directory, sender: sender}
}

// HandleEvent is the kafka consumer callback. Unknown event types are
// committed without action; failures return an error so delivery is
// retried.
func (n *Notifier) HandleEvent(ctx context.Context, event models.Event) error {
	if event.Type != models.EventTrainingFinished {
		return nil
	}

	userID, _ := event.Data["user_id"].(string)
	status, _ := event.Data["status"].(string)
	if userID == "" || status == "" {
		logger.Log.WithField("event_id", event.ID).Warn("Training event missing user or status")
		return nil
	}

	user, err := n.directory.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve user %s: %w", userID, err)
	}
	if user.Email == "" {
		logger.Log.WithField("user_id", userID).Warn("User has no email address")
		return nil
	}

	subject, html := composeEmail(user.Name, status)
	if err := n.sender.Send(ctx, user.Email, subject, html); err != nil {
		return err
	}
	return nil
}

func composeEmail(userName, status string) (subject, html string) {
	greeting := "Hi"
	if userName != "" {
		greeting = "Hi " + userName
	}

	if status == training.StatusSucceeded {
		subject = "Model training Completed"
		html = fmt.Sprintf("<p>%s,</p><p>Your model has been trained successfully.</p>", greeting)
		return subject, html
	}

	subject = fmt.Sprintf("Model training %s", status)
	html = fmt.Sprintf("<p>%s,</p><p>Your model has been %s.</p>", greeting, status)
	return subject, html
}
