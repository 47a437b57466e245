package events

import (
	"sort"

	"github.com/google/uuid"

	"github.com/memefactory/backend/internal/models"
)

// TaskState is the projected state of one task within one application.
type TaskState string

const (
	TaskNone      TaskState = "none"
	TaskSubmitted TaskState = "submitted"
	TaskApproved  TaskState = "approved"
	TaskRejected  TaskState = "rejected"
)

// CanSubmit reports whether a new TASK_SUBMIT is allowed from this state.
func (s TaskState) CanSubmit() bool {
	return s == TaskNone || s == TaskRejected
}

// next applies one task event. Approval is terminal.
func (s TaskState) next(t models.EventType) TaskState {
	if s == TaskApproved {
		return s
	}
	switch t {
	case models.EventTaskSubmit:
		return TaskSubmitted
	case models.EventTaskCompleted:
		return TaskApproved
	case models.EventTaskRejected:
		return TaskRejected
	}
	return s
}

// ordered returns a copy sorted by creation time, then sequence.
func ordered(events []*models.Event) []*models.Event {
	out := make([]*models.Event, 0, len(events))
	for _, e := range events {
		if e != nil {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// StateOf replays an application's history and returns the state of taskID.
func StateOf(events []*models.Event, taskID uuid.UUID) TaskState {
	state := TaskNone
	for _, e := range ordered(events) {
		if id, ok := e.TaskID(); ok && id == taskID {
			state = state.next(e.EventType)
		}
	}
	return state
}

// OpenSubmission returns the TASK_SUBMIT for taskID that no review has answered yet,
// or nil.
func OpenSubmission(events []*models.Event, taskID uuid.UUID) *models.Event {
	var open *models.Event
	for _, e := range ordered(events) {
		if id, ok := e.TaskID(); !ok || id != taskID {
			continue
		}
		switch e.EventType {
		case models.EventTaskSubmit:
			open = e
		case models.EventTaskCompleted, models.EventTaskRejected:
			open = nil
		}
	}
	return open
}

// States replays the history once and returns the state of every referenced task.
func States(events []*models.Event) map[uuid.UUID]TaskState {
	states := make(map[uuid.UUID]TaskState)
	for _, e := range ordered(events) {
		id, ok := e.TaskID()
		if !ok {
			continue
		}
		prev, seen := states[id]
		if !seen {
			prev = TaskNone
		}
		states[id] = prev.next(e.EventType)
	}
	return states
}

// Summary groups task ids by projected state, in order of first appearance.
type Summary struct {
	AppliedTasks  []uuid.UUID `json:"applied_tasks"`
	ApprovedTasks []uuid.UUID `json:"approved_tasks"`
	RejectedTasks []uuid.UUID `json:"rejected_tasks"`
}

func Summarize(events []*models.Event) Summary {
	states := States(events)
	s := Summary{AppliedTasks: []uuid.UUID{}, ApprovedTasks: []uuid.UUID{}, RejectedTasks: []uuid.UUID{}}
	seen := make(map[uuid.UUID]bool, len(states))
	for _, e := range ordered(events) {
		id, ok := e.TaskID()
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		switch states[id] {
		case TaskSubmitted:
			s.AppliedTasks = append(s.AppliedTasks, id)
		case TaskApproved:
			s.ApprovedTasks = append(s.ApprovedTasks, id)
		case TaskRejected:
			s.RejectedTasks = append(s.RejectedTasks, id)
		}
	}
	return s
}
