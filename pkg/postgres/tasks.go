package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/db"
)

const taskColumns = `
	id, title, description, assigned_to, assigned_by, participant_id, status, priority, due_date,
	form_schema, form_response, frequency, created_at, completed_at, version`

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	var status, priority, frequency string
	if err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&t.AssignedTo,
		&t.AssignedBy,
		&t.ParticipantID,
		&status,
		&priority,
		&t.DueDate,
		&t.FormSchema,
		&t.FormResponse,
		&frequency,
		&t.CreatedAt,
		&t.CompletedAt,
		&t.Version,
	); err != nil {
		return nil, err
	}
	t.Status = model.TaskStatus(status)
	t.Priority = model.TaskPriority(priority)
	t.Frequency = model.TaskFrequency(frequency)
	return &t, nil
}

// GetTasks retrieves all tasks in creation order
func (d *DB) GetTasks(ctx context.Context) ([]model.Task, error) {
	rows, err := d.pool.Query(ctx, `SELECT `+taskColumns+` FROM task ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

func (d *DB) GetTask(ctx context.Context, id string) (*model.Task, error) {
	t, err := scanTask(d.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM task WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

func (d *DB) InsertTask(ctx context.Context, task *model.Task) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO task (
			id, title, description, assigned_to, assigned_by, participant_id, status, priority,
			due_date, form_schema, form_response, frequency, created_at, completed_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1)
	`,
		task.ID,
		task.Title,
		task.Description,
		task.AssignedTo,
		task.AssignedBy,
		task.ParticipantID,
		string(task.Status),
		string(task.Priority),
		utcPtr(task.DueDate),
		task.FormSchema,
		task.FormResponse,
		string(task.Frequency),
		task.CreatedAt.UTC(),
		utcPtr(task.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	task.Version = 1
	return nil
}

func (d *DB) UpdateTask(ctx context.Context, task *model.Task) error {
	tag, err := d.pool.Exec(ctx, `
		UPDATE task SET
			title = $3, description = $4, assigned_to = $5, assigned_by = $6, participant_id = $7,
			status = $8, priority = $9, due_date = $10, form_schema = $11, form_response = $12,
			frequency = $13, completed_at = $14, version = version + 1
		WHERE id = $1 AND version = $2
	`,
		task.ID,
		task.Version,
		task.Title,
		task.Description,
		task.AssignedTo,
		task.AssignedBy,
		task.ParticipantID,
		string(task.Status),
		string(task.Priority),
		utcPtr(task.DueDate),
		task.FormSchema,
		task.FormResponse,
		string(task.Frequency),
		utcPtr(task.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return d.casFailure(ctx, "task", task.ID, task.Version)
	}

	task.Version++
	return nil
}

func (d *DB) DeleteTask(ctx context.Context, id string) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM task WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", id, db.ErrNotFound)
	}
	return nil
}
