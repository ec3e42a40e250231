package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/db"
)

const participantColumns = `
	id, participant_number, first_name, last_name, date_of_birth, gender, phone_number, email,
	release_date, released_from, status, submitted_at, moved_to_bridge_at, moved_to_mentorship_at,
	assigned_to_mentor_at, assigned_mentor, completed_graduation_steps, notes, history, version`

func scanParticipant(row pgx.Row) (*model.Participant, error) {
	var p model.Participant
	var dob, release *time.Time
	var status string
	if err := row.Scan(
		&p.ID,
		&p.ParticipantNumber,
		&p.FirstName,
		&p.LastName,
		&dob,
		&p.Gender,
		&p.PhoneNumber,
		&p.Email,
		&release,
		&p.ReleasedFrom,
		&status,
		&p.SubmittedAt,
		&p.MovedToBridgeAt,
		&p.MovedToMentorshipAt,
		&p.AssignedToMentorAt,
		&p.AssignedMentor,
		&p.CompletedGraduationSteps,
		&p.Notes,
		&p.History,
		&p.Version,
	); err != nil {
		return nil, err
	}
	p.DateOfBirth = formatDate(dob)
	p.ReleaseDate = formatDate(release)
	p.Status = model.Status(status)
	return &p, nil
}

// GetParticipants retrieves all participants ordered by participant number
func (d *DB) GetParticipants(ctx context.Context) ([]model.Participant, error) {
	rows, err := d.pool.Query(ctx, `SELECT `+participantColumns+` FROM participant ORDER BY participant_number`)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	var participants []model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}

	return participants, nil
}

// GetParticipant retrieves one participant by id
func (d *DB) GetParticipant(ctx context.Context, id string) (*model.Participant, error) {
	p, err := scanParticipant(d.pool.QueryRow(ctx, `SELECT `+participantColumns+` FROM participant WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("participant %s: %w", id, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

// InsertParticipant inserts a new participant, drawing the participant number from a sequence when unset
func (d *DB) InsertParticipant(ctx context.Context, participant *model.Participant) error {
	dob, err := dateParam(participant.DateOfBirth)
	if err != nil {
		return err
	}
	release, err := dateParam(participant.ReleaseDate)
	if err != nil {
		return err
	}

	var number *int
	if participant.ParticipantNumber != 0 {
		number = &participant.ParticipantNumber
	}

	err = d.pool.QueryRow(ctx, `
		INSERT INTO participant (
			id, participant_number, first_name, last_name, date_of_birth, gender, phone_number, email,
			release_date, released_from, status, submitted_at, moved_to_bridge_at, moved_to_mentorship_at,
			assigned_to_mentor_at, assigned_mentor, completed_graduation_steps, notes, history, version
		) VALUES (
			$1, COALESCE($2, nextval('participant_number_seq')), $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, 1
		)
		RETURNING participant_number
	`,
		participant.ID,
		number,
		participant.FirstName,
		participant.LastName,
		dob,
		participant.Gender,
		participant.PhoneNumber,
		participant.Email,
		release,
		participant.ReleasedFrom,
		string(participant.Status),
		participant.SubmittedAt.UTC(),
		utcPtr(participant.MovedToBridgeAt),
		utcPtr(participant.MovedToMentorshipAt),
		utcPtr(participant.AssignedToMentorAt),
		participant.AssignedMentor,
		participant.CompletedGraduationSteps,
		participant.Notes,
		participant.History,
	).Scan(&participant.ParticipantNumber)
	if err != nil {
		return fmt.Errorf("failed to insert participant: %w", err)
	}

	participant.Version = 1
	return nil
}

// UpdateParticipant writes the participant only if the stored version still matches
func (d *DB) UpdateParticipant(ctx context.Context, participant *model.Participant) error {
	dob, err := dateParam(participant.DateOfBirth)
	if err != nil {
		return err
	}
	release, err := dateParam(participant.ReleaseDate)
	if err != nil {
		return err
	}

	tag, err := d.pool.Exec(ctx, `
		UPDATE participant SET
			first_name = $3, last_name = $4, date_of_birth = $5, gender = $6, phone_number = $7,
			email = $8, release_date = $9, released_from = $10, status = $11, submitted_at = $12,
			moved_to_bridge_at = $13, moved_to_mentorship_at = $14, assigned_to_mentor_at = $15,
			assigned_mentor = $16, completed_graduation_steps = $17, notes = $18, history = $19,
			version = version + 1
		WHERE id = $1 AND version = $2
	`,
		participant.ID,
		participant.Version,
		participant.FirstName,
		participant.LastName,
		dob,
		participant.Gender,
		participant.PhoneNumber,
		participant.Email,
		release,
		participant.ReleasedFrom,
		string(participant.Status),
		participant.SubmittedAt.UTC(),
		utcPtr(participant.MovedToBridgeAt),
		utcPtr(participant.MovedToMentorshipAt),
		utcPtr(participant.AssignedToMentorAt),
		participant.AssignedMentor,
		participant.CompletedGraduationSteps,
		participant.Notes,
		participant.History,
	)
	if err != nil {
		return fmt.Errorf("failed to update participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return d.casFailure(ctx, "participant", participant.ID, participant.Version)
	}

	participant.Version++
	return nil
}
