// Package jobs holds the background worker: the asynq server, the
// queue client, and the task handlers for mail and housekeeping.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTrialWelcome sends the welcome email after a trial signup.
	TaskTrialWelcome = "mail:trial_welcome"
)

// TrialWelcomePayload describes the trial lead to greet.
type TrialWelcomePayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// NewTrialWelcomeTask constructs an Asynq task.
func NewTrialWelcomeTask(payload TrialWelcomePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTrialWelcome, data), nil
}

// HandleTrialWelcomeTask processes TaskTrialWelcome tasks.
func HandleTrialWelcomeTask(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload TrialWelcomePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.Email == "" {
			return asynq.SkipRetry
		}
		// Placeholder: integrate with SMTP/Mailpit in phase 2.
		fmt.Printf("[jobs] send trial welcome to %s name=%s\n", payload.Email, payload.Name)
		logger.Info("trial welcome queued for delivery", "email", payload.Email)
		return nil
	}
}
