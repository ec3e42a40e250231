// Package tasks holds task progression, form validation and recurrence rules.
package tasks

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"github.com/jakechorley/mentor-bridge/pkg/core/model"
)

var (
	ErrInvalidStatusChange = errors.New("invalid task status change")
	ErrNoForm              = errors.New("task has no form")
)

// FormError lists the fields of a form response that failed validation, keyed by field id
type FormError struct {
	Fields map[string]string
}

func (e *FormError) Error() string {
	ids := make([]string, 0, len(e.Fields))
	for id := range e.Fields {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s: %s", id, e.Fields[id])
	}
	return "invalid form response: " + strings.Join(parts, "; ")
}

var forward = map[model.TaskStatus][]model.TaskStatus{
	model.TaskPending:    {model.TaskInProgress, model.TaskCompleted},
	model.TaskInProgress: {model.TaskCompleted},
}

// CanChangeStatus reports whether from → to is a forward move between stored statuses
func CanChangeStatus(from, to model.TaskStatus) bool {
	for _, s := range forward[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ChangeStatus returns a copy of t moved to status to. Overdue is derived and cannot be set.
func ChangeStatus(t model.Task, to model.TaskStatus, now time.Time) (model.Task, error) {
	if !to.IsStored() {
		return t, fmt.Errorf("%w: %s is derived from the due date", ErrInvalidStatusChange, to)
	}
	if !CanChangeStatus(t.Status, to) {
		return t, fmt.Errorf("%w: %s to %s", ErrInvalidStatusChange, t.Status, to)
	}
	next := t.Clone()
	next.Status = to
	if to == model.TaskCompleted {
		at := now.UTC()
		next.CompletedAt = &at
	}
	return next, nil
}

// ValidateResponse checks response against schema. Unknown keys are rejected.
func ValidateResponse(schema []model.TaskFormField, response map[string]string) error {
	errs := make(map[string]string)
	known := make(map[string]bool, len(schema))

	for _, field := range schema {
		known[field.ID] = true
		value := strings.TrimSpace(response[field.ID])
		if value == "" {
			if field.Required {
				errs[field.ID] = "is required"
			}
			continue
		}

		switch field.Type {
		case model.FieldNumber:
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				errs[field.ID] = "must be a number"
			}
		case model.FieldDate:
			if _, err := time.Parse(model.DateLayout, value); err != nil {
				errs[field.ID] = "must be a date (YYYY-MM-DD)"
			}
		case model.FieldCheckbox:
			if _, err := strconv.ParseBool(value); err != nil {
				errs[field.ID] = "must be true or false"
			}
		case model.FieldSelect:
			found := false
			for _, opt := range field.Options {
				if opt == value {
					found = true
					break
				}
			}
			if !found {
				errs[field.ID] = fmt.Sprintf("must be one of %s", strings.Join(field.Options, ", "))
			}
		}
	}

	for id := range response {
		if !known[id] {
			errs[id] = "is not a field of this form"
		}
	}

	if len(errs) > 0 {
		return &FormError{Fields: errs}
	}
	return nil
}

// SubmitForm validates and stores a form response, completing the task
func SubmitForm(t model.Task, response map[string]string, now time.Time) (model.Task, error) {
	if len(t.FormSchema) == 0 {
		return t, ErrNoForm
	}
	if t.Status == model.TaskCompleted {
		return t, fmt.Errorf("%w: task is already completed", ErrInvalidStatusChange)
	}
	if err := ValidateResponse(t.FormSchema, response); err != nil {
		return t, err
	}

	next, err := ChangeStatus(t, model.TaskCompleted, now)
	if err != nil {
		return t, err
	}
	next.FormResponse = make(map[string]string, len(response))
	for k, v := range response {
		next.FormResponse[k] = strings.TrimSpace(v)
	}
	return next, nil
}

var frequencies = map[model.TaskFrequency]rrule.Frequency{
	model.FrequencyDaily:   rrule.DAILY,
	model.FrequencyWeekly:  rrule.WEEKLY,
	model.FrequencyMonthly: rrule.MONTHLY,
}

// NextDueDate advances due by one period of freq, skipping periods already before now.
// With no due date the next instance is due one period after now.
func NextDueDate(freq model.TaskFrequency, due *time.Time, now time.Time) (time.Time, error) {
	f, ok := frequencies[freq]
	if !ok {
		return time.Time{}, fmt.Errorf("task frequency %q does not recur", freq)
	}

	base := now.UTC()
	if due != nil {
		base = due.UTC()
	}
	r, err := rrule.NewRRule(rrule.ROption{Freq: f, Dtstart: base})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to build recurrence: %w", err)
	}

	next := r.After(base, false)
	if next.Before(now) {
		next = r.After(now, false)
	}
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("no further occurrence for frequency %q", freq)
	}
	return next, nil
}

// NextInstance builds the follow-up of a completed recurring task, or nil if t does not recur
func NextInstance(t model.Task, now time.Time) (*model.Task, error) {
	if t.Frequency == model.FrequencyNone {
		return nil, nil
	}
	due, err := NextDueDate(t.Frequency, t.DueDate, now)
	if err != nil {
		return nil, err
	}

	next := t.Clone()
	next.ID = uuid.New().String()
	next.Status = model.TaskPending
	next.DueDate = &due
	next.FormResponse = nil
	next.CompletedAt = nil
	next.CreatedAt = now.UTC()
	next.Version = 0
	return &next, nil
}

// CountByStatus tallies tasks by effective status at now
func CountByStatus(tasks []model.Task, now time.Time) map[model.TaskStatus]int {
	counts := map[model.TaskStatus]int{
		model.TaskPending:    0,
		model.TaskInProgress: 0,
		model.TaskCompleted:  0,
		model.TaskOverdue:    0,
	}
	for _, t := range tasks {
		counts[t.EffectiveStatus(now)]++
	}
	return counts
}
