// Package notify delivers appended events to an external webhook through a River
// job queue. Jobs are inserted in the same transaction as the event, so a rolled
// back append never notifies.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/memefactory/backend/internal/events"
	"github.com/memefactory/backend/internal/models"
)

type EventNotificationArgs struct {
	EventID    uuid.UUID            `json:"event_id"`
	ProgressID uuid.UUID            `json:"progress_id"`
	ProjectID  uuid.UUID            `json:"project_id"`
	ActorID    uuid.UUID            `json:"actor_id"`
	ActorRole  models.Role          `json:"actor_role"`
	EventType  models.EventType     `json:"event_type"`
	Message    *string              `json:"message,omitempty"`
	Details    *models.EventDetails `json:"details,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

func (EventNotificationArgs) Kind() string { return "event_notification" }

// ArgsFromEvent copies the event fields a subscriber needs.
func ArgsFromEvent(e *models.Event) EventNotificationArgs {
	return EventNotificationArgs{
		EventID:    e.ID,
		ProgressID: e.ProgressID,
		ProjectID:  e.ProjectID,
		ActorID:    e.ActorID,
		ActorRole:  e.ActorRole,
		EventType:  e.EventType,
		Message:    e.Message,
		Details:    e.Details,
		CreatedAt:  e.CreatedAt,
	}
}

// InsertTxFunc enqueues a notification job inside tx.
type InsertTxFunc func(ctx context.Context, tx pgx.Tx, args EventNotificationArgs) error

// Hook adapts insert into an events.AppendHook.
func Hook(insert InsertTxFunc) events.AppendHook {
	return func(ctx context.Context, tx pgx.Tx, e *models.Event) error {
		if err := insert(ctx, tx, ArgsFromEvent(e)); err != nil {
			return fmt.Errorf("enqueue event notification: %w", err)
		}
		return nil
	}
}

type Worker struct {
	river.WorkerDefaults[EventNotificationArgs]
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWorker posts each notification to webhookURL. With an empty URL it only logs.
func NewWorker(webhookURL string, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// ErrRejected marks a webhook response that retrying cannot fix.
var ErrRejected = errors.New("webhook rejected notification")

func (w *Worker) Work(ctx context.Context, job *river.Job[EventNotificationArgs]) error {
	args := job.Args
	if w.webhookURL == "" {
		w.logger.Info("event notification",
			"event_id", args.EventID, "event_type", args.EventType, "progress_id", args.ProgressID)
		return nil
	}
	err := w.deliver(ctx, args)
	if errors.Is(err, ErrRejected) {
		return river.JobCancel(err)
	}
	return err
}

func (w *Worker) deliver(ctx context.Context, args EventNotificationArgs) error {
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrRejected, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", ErrRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", string(args.EventType))

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("network error calling notification webhook: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return fmt.Errorf("%w: event %s: status %d", ErrRejected, args.EventID, resp.StatusCode)
	default:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
}
