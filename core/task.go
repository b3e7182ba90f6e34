package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is a position in the task lifecycle.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusAssigned   TaskStatus = "assigned"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// rank orders the non-terminal states. Terminal states share the top rank.
func (s TaskStatus) rank() int {
	switch s {
	case TaskStatusPending:
		return 0
	case TaskStatusAssigned:
		return 1
	case TaskStatusInProgress:
		return 2
	default:
		return 3
	}
}

// Terminal reports whether no further transition is allowed.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// Task is a unit of work handed to an agent. After assignment only the
// assigned agent mutates it.
type Task struct {
	ID                   string         `json:"id"`
	Type                 string         `json:"type"`
	Priority             Priority       `json:"priority"`
	Status               TaskStatus     `json:"status"`
	RequiredCapabilities []string       `json:"requiredCapabilities,omitempty"`
	AssignedAgent        string         `json:"assignedAgent,omitempty"`
	Data                 map[string]any `json:"data,omitempty"`
	Result               any            `json:"result,omitempty"`
	Error                string         `json:"error,omitempty"`
	CreatedAt            time.Time      `json:"createdAt"`
	StartedAt            time.Time      `json:"startedAt,omitzero"`
	CompletedAt          time.Time      `json:"completedAt,omitzero"`
}

// NewTask creates a pending task with a fresh id and MEDIUM priority.
func NewTask(taskType string, data map[string]any, optFns ...func(t *Task)) *Task {
	t := &Task{
		ID:        uuid.NewString(),
		Type:      taskType,
		Priority:  PriorityMedium,
		Status:    TaskStatusPending,
		Data:      data,
		CreatedAt: time.Now(),
	}
	for _, fn := range optFns {
		fn(t)
	}
	return t
}

// Transition moves the task forward. Transitions to the current state are
// rejected as well as any move out of a terminal state.
func (t *Task) Transition(to TaskStatus) error {
	if t.Status.Terminal() || to.rank() <= t.Status.rank() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}
	t.Status = to
	return nil
}

// Assign records the assigned agent. A task is never reassigned.
func (t *Task) Assign(agent string) error {
	if t.AssignedAgent != "" && t.AssignedAgent != agent {
		return fmt.Errorf("%w: task %s held by %s", ErrAlreadyAssigned, t.ID, t.AssignedAgent)
	}
	if t.Status != TaskStatusAssigned {
		if err := t.Transition(TaskStatusAssigned); err != nil {
			return err
		}
	}
	t.AssignedAgent = agent
	return nil
}

// WithPriority sets the task priority.
func WithPriority(p Priority) func(t *Task) {
	return func(t *Task) { t.Priority = p }
}

// WithCapabilities sets the capabilities an agent needs to take the task.
func WithCapabilities(names ...string) func(t *Task) {
	return func(t *Task) { t.RequiredCapabilities = names }
}
