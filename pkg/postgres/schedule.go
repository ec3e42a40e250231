package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/db"
)

const shiftColumns = `
	id, title, description, start_at, end_at, location, max_volunteers, allowed_roles,
	assigned_users, recurring_group_id, created_by, version`

const meetingColumns = `
	id, title, description, start_at, end_at, location, allowed_roles, invitees,
	recurring_group_id, created_by, version`

func scanShift(row pgx.Row) (*model.Shift, error) {
	var s model.Shift
	var roles []string
	if err := row.Scan(
		&s.ID,
		&s.Title,
		&s.Description,
		&s.Start,
		&s.End,
		&s.Location,
		&s.MaxVolunteers,
		&roles,
		&s.AssignedUsers,
		&s.RecurringGroupID,
		&s.CreatedBy,
		&s.Version,
	); err != nil {
		return nil, err
	}
	s.AllowedRoles = stringsToRoles(roles)
	return &s, nil
}

func scanMeeting(row pgx.Row) (*model.Meeting, error) {
	var m model.Meeting
	var roles []string
	if err := row.Scan(
		&m.ID,
		&m.Title,
		&m.Description,
		&m.Start,
		&m.End,
		&m.Location,
		&roles,
		&m.Invitees,
		&m.RecurringGroupID,
		&m.CreatedBy,
		&m.Version,
	); err != nil {
		return nil, err
	}
	m.AllowedRoles = stringsToRoles(roles)
	return &m, nil
}

// GetShifts retrieves all shifts ordered by start time
func (d *DB) GetShifts(ctx context.Context) ([]model.Shift, error) {
	rows, err := d.pool.Query(ctx, `SELECT `+shiftColumns+` FROM shift ORDER BY start_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}
	defer rows.Close()

	var shifts []model.Shift
	for rows.Next() {
		s, err := scanShift(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shift: %w", err)
		}
		shifts = append(shifts, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shifts: %w", err)
	}

	return shifts, nil
}

func (d *DB) GetShift(ctx context.Context, id string) (*model.Shift, error) {
	s, err := scanShift(d.pool.QueryRow(ctx, `SELECT `+shiftColumns+` FROM shift WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("shift %s: %w", id, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shift: %w", err)
	}
	return s, nil
}

// InsertShifts inserts a batch of shifts in a single transaction
func (d *DB) InsertShifts(ctx context.Context, shifts []*model.Shift) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, s := range shifts {
		batch.Queue(`
			INSERT INTO shift (
				id, title, description, start_at, end_at, location, max_volunteers, allowed_roles,
				assigned_users, recurring_group_id, created_by, version
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)
		`,
			s.ID,
			s.Title,
			s.Description,
			s.Start.UTC(),
			s.End.UTC(),
			s.Location,
			s.MaxVolunteers,
			rolesToStrings(s.AllowedRoles),
			s.AssignedUsers,
			s.RecurringGroupID,
			s.CreatedBy,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert shifts: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit shifts: %w", err)
	}

	for _, s := range shifts {
		s.Version = 1
	}
	return nil
}

func (d *DB) UpdateShift(ctx context.Context, shift *model.Shift) error {
	tag, err := d.pool.Exec(ctx, `
		UPDATE shift SET
			title = $3, description = $4, start_at = $5, end_at = $6, location = $7,
			max_volunteers = $8, allowed_roles = $9, assigned_users = $10, recurring_group_id = $11,
			version = version + 1
		WHERE id = $1 AND version = $2
	`,
		shift.ID,
		shift.Version,
		shift.Title,
		shift.Description,
		shift.Start.UTC(),
		shift.End.UTC(),
		shift.Location,
		shift.MaxVolunteers,
		rolesToStrings(shift.AllowedRoles),
		shift.AssignedUsers,
		shift.RecurringGroupID,
	)
	if err != nil {
		return fmt.Errorf("failed to update shift: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return d.casFailure(ctx, "shift", shift.ID, shift.Version)
	}

	shift.Version++
	return nil
}

func (d *DB) DeleteShift(ctx context.Context, id string) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM shift WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete shift: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("shift %s: %w", id, db.ErrNotFound)
	}
	return nil
}

// GetMeetings retrieves all meetings ordered by start time
func (d *DB) GetMeetings(ctx context.Context) ([]model.Meeting, error) {
	rows, err := d.pool.Query(ctx, `SELECT `+meetingColumns+` FROM meeting ORDER BY start_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query meetings: %w", err)
	}
	defer rows.Close()

	var meetings []model.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meeting: %w", err)
		}
		meetings = append(meetings, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating meetings: %w", err)
	}

	return meetings, nil
}

func (d *DB) GetMeeting(ctx context.Context, id string) (*model.Meeting, error) {
	m, err := scanMeeting(d.pool.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meeting WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("meeting %s: %w", id, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meeting: %w", err)
	}
	return m, nil
}

// InsertMeetings inserts a batch of meetings in a single transaction
func (d *DB) InsertMeetings(ctx context.Context, meetings []*model.Meeting) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, m := range meetings {
		batch.Queue(`
			INSERT INTO meeting (
				id, title, description, start_at, end_at, location, allowed_roles, invitees,
				recurring_group_id, created_by, version
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
		`,
			m.ID,
			m.Title,
			m.Description,
			m.Start.UTC(),
			m.End.UTC(),
			m.Location,
			rolesToStrings(m.AllowedRoles),
			m.Invitees,
			m.RecurringGroupID,
			m.CreatedBy,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert meetings: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit meetings: %w", err)
	}

	for _, m := range meetings {
		m.Version = 1
	}
	return nil
}

func (d *DB) UpdateMeeting(ctx context.Context, meeting *model.Meeting) error {
	tag, err := d.pool.Exec(ctx, `
		UPDATE meeting SET
			title = $3, description = $4, start_at = $5, end_at = $6, location = $7,
			allowed_roles = $8, invitees = $9, recurring_group_id = $10, version = version + 1
		WHERE id = $1 AND version = $2
	`,
		meeting.ID,
		meeting.Version,
		meeting.Title,
		meeting.Description,
		meeting.Start.UTC(),
		meeting.End.UTC(),
		meeting.Location,
		rolesToStrings(meeting.AllowedRoles),
		meeting.Invitees,
		meeting.RecurringGroupID,
	)
	if err != nil {
		return fmt.Errorf("failed to update meeting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return d.casFailure(ctx, "meeting", meeting.ID, meeting.Version)
	}

	meeting.Version++
	return nil
}

func (d *DB) DeleteMeeting(ctx context.Context, id string) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM meeting WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete meeting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("meeting %s: %w", id, db.ErrNotFound)
	}
	return nil
}
