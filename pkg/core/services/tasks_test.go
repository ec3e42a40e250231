package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/core/tasks"
	"github.com/jakechorley/mentor-bridge/pkg/db"
)

var taskNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestCreateTask_Permissions(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	volunteer := seedUser(t, store, "vol-1", model.RoleVolunteer)
	leader := seedUser(t, store, "leader-1", model.RoleMentorshipLeader)
	mentor := seedUser(t, store, "mentor-1", model.RoleMentor)

	own, err := CreateTask(ctx, store, zap.NewNop(), volunteer, TaskInput{Title: "Read the handbook"})
	require.NoError(t, err)
	assert.Equal(t, volunteer.ID, own.AssignedTo)
	assert.Equal(t, volunteer.ID, own.AssignedBy)
	assert.Equal(t, model.PriorityMedium, own.Priority)
	assert.Equal(t, model.TaskPending, own.Status)

	_, err = CreateTask(ctx, store, zap.NewNop(), volunteer, TaskInput{Title: "Do my job", AssignedTo: mentor.ID})
	assert.ErrorIs(t, err, ErrForbidden)

	assigned, err := CreateTask(ctx, store, zap.NewNop(), leader, TaskInput{
		Title:      "Weekly check-in",
		AssignedTo: mentor.ID,
		Priority:   model.PriorityHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, mentor.ID, assigned.AssignedTo)
	assert.Equal(t, leader.ID, assigned.AssignedBy)

	_, err = CreateTask(ctx, store, zap.NewNop(), leader, TaskInput{Title: "Ghost", AssignedTo: "nobody"})
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestCreateTask_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input TaskInput
	}{
		{"missing title", TaskInput{Title: "  "}},
		{"unknown priority", TaskInput{Title: "x", Priority: "whenever"}},
		{"unknown frequency", TaskInput{Title: "x", Frequency: "hourly"}},
		{"bad field type", TaskInput{Title: "x", FormSchema: []model.TaskFormField{{ID: "a", Label: "A", Type: "slider"}}}},
		{"select without options", TaskInput{Title: "x", FormSchema: []model.TaskFormField{{ID: "a", Label: "A", Type: model.FieldSelect}}}},
		{"duplicate field id", TaskInput{Title: "x", FormSchema: []model.TaskFormField{
			{ID: "a", Label: "A", Type: model.FieldText},
			{ID: "a", Label: "Again", Type: model.FieldText},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore()
			actor := seedUser(t, store, "u-1", model.RoleAdmin)

			_, err := CreateTask(context.Background(), store, zap.NewNop(), actor, tt.input)
			var vErr *ValidationError
			assert.ErrorAs(t, err, &vErr)
		})
	}
}

func TestUpdateTaskStatus(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	leader := seedUser(t, store, "leader-1", model.RoleMentorshipLeader)
	mentor := seedUser(t, store, "mentor-1", model.RoleMentor)
	stranger := seedUser(t, store, "mentor-2", model.RoleMentor)

	task, err := CreateTask(ctx, store, zap.NewNop(), leader, TaskInput{Title: "Call probation", AssignedTo: mentor.ID})
	require.NoError(t, err)

	_, _, err = UpdateTaskStatus(ctx, store, testCfg, zap.NewNop(), stranger, task.ID, model.TaskInProgress)
	assert.ErrorIs(t, err, ErrForbidden)

	started, spawned, err := UpdateTaskStatus(ctx, store, testCfg, zap.NewNop(), mentor, task.ID, model.TaskInProgress)
	require.NoError(t, err)
	assert.Nil(t, spawned)
	assert.Equal(t, model.TaskInProgress, started.Status)

	_, _, err = UpdateTaskStatus(ctx, store, testCfg, zap.NewNop(), mentor, task.ID, model.TaskPending)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.ErrorIs(t, err, tasks.ErrInvalidStatusChange)

	_, _, err = UpdateTaskStatus(ctx, store, testCfg, zap.NewNop(), mentor, task.ID, model.TaskOverdue)
	assert.ErrorIs(t, err, tasks.ErrInvalidStatusChange)

	done, spawned, err := UpdateTaskStatus(ctx, store, testCfg, zap.NewNop(), leader, task.ID, model.TaskCompleted)
	require.NoError(t, err)
	assert.Nil(t, spawned, "one-off tasks do not recur")
	assert.Equal(t, model.TaskCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
}

func TestUpdateTaskStatus_RecurringTaskSpawnsNext(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	fixClock(t, taskNow)
	leader := seedUser(t, store, "leader-1", model.RoleBridgeTeamLeader)
	member := seedUser(t, store, "bt-1", model.RoleBridgeTeam)

	due := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	task, err := CreateTask(ctx, store, zap.NewNop(), leader, TaskInput{
		Title:      "Update contact log",
		AssignedTo: member.ID,
		DueDate:    &due,
		Frequency:  model.FrequencyWeekly,
	})
	require.NoError(t, err)

	done, next, err := UpdateTaskStatus(ctx, store, testCfg, zap.NewNop(), member, task.ID, model.TaskCompleted)
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, done.Status)
	require.NotNil(t, next)

	assert.NotEqual(t, task.ID, next.ID)
	assert.Equal(t, model.TaskPending, next.Status)
	assert.Equal(t, member.ID, next.AssignedTo)
	assert.Equal(t, model.FrequencyWeekly, next.Frequency)
	assert.Equal(t, time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC), *next.DueDate)
	assert.Nil(t, next.CompletedAt)

	all, err := store.GetTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSubmitTaskForm(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	fixClock(t, taskNow)
	leader := seedUser(t, store, "leader-1", model.RoleMentorshipLeader)
	mentor := seedUser(t, store, "mentor-1", model.RoleMentor)

	schema := []model.TaskFormField{
		{ID: "hours", Label: "Hours spent", Type: model.FieldNumber, Required: true},
		{ID: "outcome", Label: "Outcome", Type: model.FieldSelect, Options: []string{"positive", "neutral", "negative"}},
	}
	task, err := CreateTask(ctx, store, zap.NewNop(), leader, TaskInput{Title: "Session report", AssignedTo: mentor.ID, FormSchema: schema})
	require.NoError(t, err)

	_, _, err = SubmitTaskForm(ctx, store, testCfg, zap.NewNop(), mentor, task.ID, map[string]string{"outcome": "great"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	var formErr *tasks.FormError
	require.ErrorAs(t, err, &formErr)
	assert.Contains(t, formErr.Fields, "hours")
	assert.Contains(t, formErr.Fields, "outcome")

	_, _, err = SubmitTaskForm(ctx, store, testCfg, zap.NewNop(), leader, task.ID, map[string]string{"hours": "2"})
	assert.ErrorIs(t, err, ErrForbidden, "only the assignee or an admin submits the form")

	done, next, err := SubmitTaskForm(ctx, store, testCfg, zap.NewNop(), mentor, task.ID, map[string]string{"hours": " 1.5 ", "outcome": "positive"})
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.Equal(t, model.TaskCompleted, done.Status)
	assert.Equal(t, map[string]string{"hours": "1.5", "outcome": "positive"}, done.FormResponse)

	_, _, err = SubmitTaskForm(ctx, store, testCfg, zap.NewNop(), mentor, task.ID, map[string]string{"hours": "3"})
	assert.ErrorIs(t, err, tasks.ErrInvalidStatusChange)
}

func TestSubmitTaskForm_NoForm(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	mentor := seedUser(t, store, "mentor-1", model.RoleMentor)

	task, err := CreateTask(ctx, store, zap.NewNop(), mentor, TaskInput{Title: "Plain task"})
	require.NoError(t, err)

	_, _, err = SubmitTaskForm(ctx, store, testCfg, zap.NewNop(), mentor, task.ID, map[string]string{})
	assert.ErrorIs(t, err, tasks.ErrNoForm)
}

func TestUpdateTask(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	leader := seedUser(t, store, "leader-1", model.RoleMentorshipLeader)
	mentor := seedUser(t, store, "mentor-1", model.RoleMentor)
	other := seedUser(t, store, "mentor-2", model.RoleMentor)

	due := taskNow.Add(48 * time.Hour)
	task, err := CreateTask(ctx, store, zap.NewNop(), leader, TaskInput{Title: "Draft plan", AssignedTo: mentor.ID, DueDate: &due})
	require.NoError(t, err)

	_, err = UpdateTask(ctx, store, testCfg, zap.NewNop(), mentor, task.ID, TaskUpdate{Title: strPtr("Mine now")})
	assert.ErrorIs(t, err, ErrForbidden, "assignees cannot edit the task details")

	updated, err := UpdateTask(ctx, store, testCfg, zap.NewNop(), leader, task.ID, TaskUpdate{
		Title:      strPtr("Draft release plan"),
		AssignedTo: &other.ID,
		ClearDue:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Draft release plan", updated.Title)
	assert.Equal(t, other.ID, updated.AssignedTo)
	assert.Nil(t, updated.DueDate)

	_, err = UpdateTask(ctx, store, testCfg, zap.NewNop(), leader, task.ID, TaskUpdate{AssignedTo: strPtr("nobody")})
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestDeleteTask(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	admin := seedUser(t, store, "admin-1", model.RoleAdmin)
	leader := seedUser(t, store, "leader-1", model.RoleMentorshipLeader)

	task, err := CreateTask(ctx, store, zap.NewNop(), leader, TaskInput{Title: "Temporary"})
	require.NoError(t, err)

	assert.ErrorIs(t, DeleteTask(ctx, store, zap.NewNop(), leader, task.ID), ErrForbidden)
	require.NoError(t, DeleteTask(ctx, store, zap.NewNop(), admin, task.ID))

	_, err = store.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestListTasksFor(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	admin := seedUser(t, store, "admin-1", model.RoleAdmin)
	leader := seedUser(t, store, "leader-1", model.RoleMentorshipLeader)
	mentor := seedUser(t, store, "mentor-1", model.RoleMentor)
	member := seedUser(t, store, "bt-1", model.RoleBridgeTeam)

	past := taskNow.Add(-time.Hour)
	_, err := CreateTask(ctx, store, zap.NewNop(), admin, TaskInput{Title: "Late", AssignedTo: mentor.ID, DueDate: &past})
	require.NoError(t, err)
	_, err = CreateTask(ctx, store, zap.NewNop(), admin, TaskInput{Title: "Bridge work", AssignedTo: member.ID})
	require.NoError(t, err)

	views, err := ListTasksFor(ctx, store, zap.NewNop(), leader, taskNow)
	require.NoError(t, err)
	require.Len(t, views, 1, "mentorship leaders see tasks assigned to mentors")
	assert.Equal(t, "Late", views[0].Title)
	assert.Equal(t, model.TaskOverdue, views[0].Status)
	assert.Equal(t, model.TaskPending, views[0].Task.Status)

	views, err = ListTasksFor(ctx, store, zap.NewNop(), member, taskNow)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Bridge work", views[0].Title)

	views, err = ListTasksFor(ctx, store, zap.NewNop(), admin, taskNow)
	require.NoError(t, err)
	assert.Len(t, views, 2)
}
