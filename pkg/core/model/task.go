package model

import (
	"maps"
	"slices"
	"time"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskOverdue    TaskStatus = "overdue"
)

// IsStored reports whether the status may be persisted; overdue is only ever derived
func (s TaskStatus) IsStored() bool {
	return s == TaskPending || s == TaskInProgress || s == TaskCompleted
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

type TaskFrequency string

const (
	FrequencyNone    TaskFrequency = ""
	FrequencyDaily   TaskFrequency = "daily"
	FrequencyWeekly  TaskFrequency = "weekly"
	FrequencyMonthly TaskFrequency = "monthly"
)

type FormFieldType string

const (
	FieldText     FormFieldType = "text"
	FieldTextarea FormFieldType = "textarea"
	FieldNumber   FormFieldType = "number"
	FieldDate     FormFieldType = "date"
	FieldSelect   FormFieldType = "select"
	FieldCheckbox FormFieldType = "checkbox"
)

// TaskFormField describes one input in a task's custom form
type TaskFormField struct {
	ID       string        `json:"id" validate:"required"`
	Label    string        `json:"label" validate:"required"`
	Type     FormFieldType `json:"type" validate:"required,oneof=text textarea number date select checkbox"`
	Required bool          `json:"required"`
	Options  []string      `json:"options,omitempty"`
}

// Task is a unit of work assigned from one user to another
type Task struct {
	ID            string            `json:"id"`
	Title         string            `json:"title" validate:"required"`
	Description   string            `json:"description,omitempty"`
	AssignedTo    string            `json:"assignedTo" validate:"required"`
	AssignedBy    string            `json:"assignedBy" validate:"required"`
	ParticipantID string            `json:"participantId,omitempty"`
	Status        TaskStatus        `json:"status"`
	Priority      TaskPriority      `json:"priority" validate:"required,oneof=low medium high urgent"`
	DueDate       *time.Time        `json:"dueDate,omitempty"`
	FormSchema    []TaskFormField   `json:"formSchema,omitempty" validate:"dive"`
	FormResponse  map[string]string `json:"formResponse,omitempty"`
	Frequency     TaskFrequency     `json:"frequency,omitempty" validate:"omitempty,oneof=daily weekly monthly"`
	CreatedAt     time.Time         `json:"createdAt"`
	CompletedAt   *time.Time        `json:"completedAt,omitempty"`
	Version       int64             `json:"version"`
}

// EffectiveStatus derives overdue from the due date; the stored status is never overdue
func (t Task) EffectiveStatus(now time.Time) TaskStatus {
	if t.Status != TaskCompleted && t.DueDate != nil && t.DueDate.Before(now) {
		return TaskOverdue
	}
	return t.Status
}

// Clone returns a deep copy
func (t Task) Clone() Task {
	c := t
	c.DueDate = cloneTime(t.DueDate)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.FormSchema = slices.Clone(t.FormSchema)
	for i, f := range c.FormSchema {
		c.FormSchema[i].Options = slices.Clone(f.Options)
	}
	c.FormResponse = maps.Clone(t.FormResponse)
	return c
}

// TaskView is the serialised form of a task with its status derived at a point in time.
// Status shadows the stored status so overdue tasks read as overdue.
type TaskView struct {
	Task
	Status TaskStatus `json:"status"`
}

// View computes the effective status as of now
func (t Task) View(now time.Time) TaskView {
	return TaskView{Task: t, Status: t.EffectiveStatus(now)}
}
