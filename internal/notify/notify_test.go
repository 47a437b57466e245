package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/memefactory/backend/internal/models"
)

func newJob(args EventNotificationArgs) *river.Job[EventNotificationArgs] {
	return &river.Job[EventNotificationArgs]{JobRow: &rivertype.JobRow{ID: 1}, Args: args}
}

func sampleEvent() *models.Event {
	task := uuid.New()
	return &models.Event{
		ID:          uuid.New(),
		ProgressID:  uuid.New(),
		ProjectID:   uuid.New(),
		ActorID:     uuid.New(),
		ActorRole:   models.RoleCreator,
		EventType:   models.EventTaskSubmit,
		Description: "Task completion submitted.",
		Details:     &models.EventDetails{TaskID: &task},
		CreatedAt:   time.Now().UTC(),
	}
}

func TestHook_EnqueuesEventArgs(t *testing.T) {
	var got []EventNotificationArgs
	hook := Hook(func(_ context.Context, _ pgx.Tx, args EventNotificationArgs) error {
		got = append(got, args)
		return nil
	})

	e := sampleEvent()
	if err := hook(context.Background(), nil, e); err != nil {
		t.Fatalf("hook: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one job, got %d", len(got))
	}
	if got[0].EventID != e.ID || got[0].EventType != e.EventType || got[0].ProgressID != e.ProgressID {
		t.Fatalf("args do not match event: %+v", got[0])
	}
}

func TestHook_PropagatesInsertError(t *testing.T) {
	boom := errors.New("queue table missing")
	hook := Hook(func(context.Context, pgx.Tx, EventNotificationArgs) error { return boom })

	if err := hook(context.Background(), nil, sampleEvent()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped insert error, got %v", err)
	}
}

func TestWorker_PostsToWebhook(t *testing.T) {
	var received EventNotificationArgs
	var eventType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		eventType = r.Header.Get("X-Event-Type")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	args := ArgsFromEvent(sampleEvent())
	if err := NewWorker(srv.URL, nil).Work(context.Background(), newJob(args)); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if received.EventID != args.EventID {
		t.Fatalf("expected event %s, got %s", args.EventID, received.EventID)
	}
	if eventType != string(models.EventTaskSubmit) {
		t.Fatalf("expected X-Event-Type header, got %q", eventType)
	}
}

func TestWorker_ServerErrorIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWorker(srv.URL, nil).deliver(context.Background(), ArgsFromEvent(sampleEvent()))
	if err == nil {
		t.Fatal("expected error so the job is retried")
	}
	if errors.Is(err, ErrRejected) {
		t.Fatalf("5xx must not cancel the job: %v", err)
	}
}

func TestWorker_ClientErrorIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	w := NewWorker(srv.URL, nil)
	if err := w.deliver(context.Background(), ArgsFromEvent(sampleEvent())); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if err := w.Work(context.Background(), newJob(ArgsFromEvent(sampleEvent()))); err == nil {
		t.Fatal("expected a cancel error from Work")
	}
}

func TestWorker_NoWebhookOnlyLogs(t *testing.T) {
	if err := NewWorker("", nil).Work(context.Background(), newJob(ArgsFromEvent(sampleEvent()))); err != nil {
		t.Fatalf("Work: %v", err)
	}
}
