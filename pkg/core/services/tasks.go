package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/mentor-bridge/internal/config"
	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/core/tasks"
	"github.com/jakechorley/mentor-bridge/pkg/core/visibility"
	"github.com/jakechorley/mentor-bridge/pkg/db"
)

// TaskStore defines the database operations needed by the task services
type TaskStore interface {
	db.TaskStore
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUsers(ctx context.Context) ([]model.User, error)
}

// TaskInput holds the fields of a new task
type TaskInput struct {
	Title         string
	Description   string
	AssignedTo    string
	ParticipantID string
	Priority      model.TaskPriority
	DueDate       *time.Time
	FormSchema    []model.TaskFormField
	Frequency     model.TaskFrequency
}

// TaskUpdate holds the fields to change on a task; nil fields are left as they are
type TaskUpdate struct {
	Title       *string
	Description *string
	AssignedTo  *string
	Priority    *model.TaskPriority
	DueDate     *time.Time
	ClearDue    bool
	Frequency   *model.TaskFrequency
}

func validateFormSchema(schema []model.TaskFormField) error {
	seen := make(map[string]bool, len(schema))
	for _, f := range schema {
		if seen[f.ID] {
			return invalid("duplicate form field %q", f.ID)
		}
		seen[f.ID] = true
		if f.Type == model.FieldSelect && len(f.Options) == 0 {
			return invalid("select field %q needs options", f.ID)
		}
	}
	return nil
}

// canManageTask reports whether actor may edit t: admins, or whoever assigned it
func canManageTask(actor model.User, t model.Task) bool {
	return visibility.UserCan(actor, visibility.ActionManageAllTasks) || t.AssignedBy == actor.ID
}

// canProgressTask reports whether actor may move t forward: its assignee, assigner or an admin
func canProgressTask(actor model.User, t model.Task) bool {
	return t.AssignedTo == actor.ID || canManageTask(actor, t)
}

// CreateTask assigns a new task. Assigning to yourself needs no permission; assigning to
// anyone else needs assign_tasks.
func CreateTask(ctx context.Context, database TaskStore, logger *zap.Logger, actor model.User, input TaskInput) (*model.Task, error) {
	if input.AssignedTo == "" {
		input.AssignedTo = actor.ID
	}
	if input.AssignedTo != actor.ID {
		if err := requirePermission(actor, visibility.ActionAssignTasks); err != nil {
			return nil, err
		}
	}
	if input.Priority == "" {
		input.Priority = model.PriorityMedium
	}

	if _, err := database.GetUser(ctx, input.AssignedTo); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, &ValidationError{Message: fmt.Sprintf("assignee %s does not exist", input.AssignedTo), Err: err}
		}
		return nil, fmt.Errorf("failed to load assignee: %w", err)
	}

	task := model.Task{
		ID:            uuid.New().String(),
		Title:         strings.TrimSpace(input.Title),
		Description:   strings.TrimSpace(input.Description),
		AssignedTo:    input.AssignedTo,
		AssignedBy:    actor.ID,
		ParticipantID: input.ParticipantID,
		Status:        model.TaskPending,
		Priority:      input.Priority,
		FormSchema:    input.FormSchema,
		Frequency:     input.Frequency,
		CreatedAt:     clock(),
	}
	if input.DueDate != nil {
		due := input.DueDate.UTC()
		task.DueDate = &due
	}
	if err := validateEntity("task", task); err != nil {
		return nil, err
	}
	if err := validateFormSchema(task.FormSchema); err != nil {
		return nil, err
	}

	if err := database.InsertTask(ctx, &task); err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}

	logger.Info("Task created",
		zap.String("task_id", task.ID),
		zap.String("assigned_to", task.AssignedTo),
		zap.String("actor_id", actor.ID))

	return &task, nil
}

// mutateTask loads id, checks allowed, applies mutate and writes with compare-and-swap
func mutateTask(
	ctx context.Context,
	database db.TaskStore,
	cfg *config.Config,
	logger *zap.Logger,
	operation string,
	id string,
	allowed func(model.Task) bool,
	mutate func(model.Task) (model.Task, error),
) (*model.Task, error) {
	var result *model.Task

	err := retryOnConflict(ctx, cfg, logger, operation, id, func() error {
		current, err := database.GetTask(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load task: %w", err)
		}
		if !allowed(*current) {
			return fmt.Errorf("%w: not permitted to %s task %s", ErrForbidden, operation, id)
		}

		next, err := mutate(current.Clone())
		if err != nil {
			return err
		}

		if err := database.UpdateTask(ctx, &next); err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}

		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// spawnNext inserts the follow-up of a completed recurring task
func spawnNext(ctx context.Context, database db.TaskStore, logger *zap.Logger, completed model.Task) (*model.Task, error) {
	next, err := tasks.NextInstance(completed, clock())
	if err != nil {
		return nil, fmt.Errorf("failed to schedule next occurrence: %w", err)
	}
	if next == nil {
		return nil, nil
	}

	if err := database.InsertTask(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to insert next occurrence: %w", err)
	}

	logger.Info("Recurring task rescheduled",
		zap.String("task_id", completed.ID),
		zap.String("next_task_id", next.ID),
		zap.Time("due", *next.DueDate))
	return next, nil
}

func asValidation(err error) error {
	var formErr *tasks.FormError
	if errors.As(err, &formErr) || errors.Is(err, tasks.ErrInvalidStatusChange) || errors.Is(err, tasks.ErrNoForm) {
		return &ValidationError{Message: "task update rejected", Err: err}
	}
	return err
}

// UpdateTaskStatus moves a task forward. Completing a recurring task also creates its next
// occurrence, returned as the second value.
func UpdateTaskStatus(ctx context.Context, database db.TaskStore, cfg *config.Config, logger *zap.Logger, actor model.User, id string, status model.TaskStatus) (*model.Task, *model.Task, error) {
	allowed := func(t model.Task) bool { return canProgressTask(actor, t) }

	task, err := mutateTask(ctx, database, cfg, logger, "update_status", id, allowed, func(t model.Task) (model.Task, error) {
		next, err := tasks.ChangeStatus(t, status, clock())
		return next, asValidation(err)
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info("Task status changed",
		zap.String("task_id", id),
		zap.String("status", string(task.Status)),
		zap.String("actor_id", actor.ID))

	if task.Status != model.TaskCompleted {
		return task, nil, nil
	}
	spawned, err := spawnNext(ctx, database, logger, *task)
	return task, spawned, err
}

// SubmitTaskForm validates and stores the assignee's form response, completing the task
func SubmitTaskForm(ctx context.Context, database db.TaskStore, cfg *config.Config, logger *zap.Logger, actor model.User, id string, response map[string]string) (*model.Task, *model.Task, error) {
	allowed := func(t model.Task) bool {
		return t.AssignedTo == actor.ID || visibility.UserCan(actor, visibility.ActionManageAllTasks)
	}

	task, err := mutateTask(ctx, database, cfg, logger, "submit_form", id, allowed, func(t model.Task) (model.Task, error) {
		next, err := tasks.SubmitForm(t, response, clock())
		return next, asValidation(err)
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info("Task form submitted", zap.String("task_id", id), zap.String("actor_id", actor.ID))

	spawned, err := spawnNext(ctx, database, logger, *task)
	return task, spawned, err
}

// UpdateTask edits a task's details; allowed for admins and the assigner
func UpdateTask(ctx context.Context, database TaskStore, cfg *config.Config, logger *zap.Logger, actor model.User, id string, update TaskUpdate) (*model.Task, error) {
	if update.AssignedTo != nil {
		if _, err := database.GetUser(ctx, *update.AssignedTo); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return nil, &ValidationError{Message: fmt.Sprintf("assignee %s does not exist", *update.AssignedTo), Err: err}
			}
			return nil, fmt.Errorf("failed to load assignee: %w", err)
		}
	}

	allowed := func(t model.Task) bool { return canManageTask(actor, t) }

	task, err := mutateTask(ctx, database, cfg, logger, "update", id, allowed, func(t model.Task) (model.Task, error) {
		if update.Title != nil {
			t.Title = strings.TrimSpace(*update.Title)
		}
		if update.Description != nil {
			t.Description = strings.TrimSpace(*update.Description)
		}
		if update.AssignedTo != nil {
			t.AssignedTo = *update.AssignedTo
		}
		if update.Priority != nil {
			t.Priority = *update.Priority
		}
		if update.DueDate != nil {
			due := update.DueDate.UTC()
			t.DueDate = &due
		}
		if update.ClearDue {
			t.DueDate = nil
		}
		if update.Frequency != nil {
			t.Frequency = *update.Frequency
		}
		return t, validateEntity("task", t)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Task updated", zap.String("task_id", id), zap.String("actor_id", actor.ID))
	return task, nil
}

// DeleteTask removes a task; admins only
func DeleteTask(ctx context.Context, database db.TaskStore, logger *zap.Logger, actor model.User, id string) error {
	if err := requirePermission(actor, visibility.ActionManageAllTasks); err != nil {
		return err
	}
	if err := database.DeleteTask(ctx, id); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	logger.Info("Task deleted", zap.String("task_id", id), zap.String("actor_id", actor.ID))
	return nil
}

// ListTasksFor returns the tasks user may see with their effective status at now
func ListTasksFor(ctx context.Context, database TaskStore, logger *zap.Logger, user model.User, now time.Time) ([]model.TaskView, error) {
	all, err := database.GetTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tasks: %w", err)
	}
	users, err := database.GetUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}

	visible := visibility.VisibleTasksForUser(all, users, user)
	logger.Debug("Listing tasks",
		zap.String("user_id", user.ID),
		zap.Int("total", len(all)),
		zap.Int("visible", len(visible)))

	views := make([]model.TaskView, len(visible))
	for i, t := range visible {
		views[i] = t.View(now)
	}
	return views, nil
}
