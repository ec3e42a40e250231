package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/mentor-bridge/internal/config"
	"github.com/jakechorley/mentor-bridge/pkg/core/lifecycle"
	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/core/visibility"
	"github.com/jakechorley/mentor-bridge/pkg/db"
)

// BulkResult is the per-record result of a bulk operation
type BulkResult string

const (
	BulkMoved   BulkResult = "moved"
	BulkSkipped BulkResult = "skipped"
	BulkFailed  BulkResult = "failed"
)

// BulkOutcome reports what happened to one id of a bulk request
type BulkOutcome struct {
	ID     string
	Result BulkResult
	Err    error
}

// CountResults tallies outcomes by result
func CountResults(outcomes []BulkOutcome) map[BulkResult]int {
	counts := map[BulkResult]int{BulkMoved: 0, BulkSkipped: 0, BulkFailed: 0}
	for _, o := range outcomes {
		counts[o.Result]++
	}
	return counts
}

// ParticipantInput is the intake form for a new participant
type ParticipantInput struct {
	FirstName    string
	LastName     string
	DateOfBirth  string
	Gender       string
	PhoneNumber  string
	Email        string
	ReleaseDate  string
	ReleasedFrom string
}

// CreateParticipant validates intake data and stores a new participant in pending_bridge
func CreateParticipant(ctx context.Context, database db.ParticipantStore, logger *zap.Logger, input ParticipantInput, actor lifecycle.Actor) (*model.Participant, error) {
	p := model.Participant{
		ID:           uuid.New().String(),
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		DateOfBirth:  strings.TrimSpace(input.DateOfBirth),
		Gender:       strings.TrimSpace(input.Gender),
		PhoneNumber:  strings.TrimSpace(input.PhoneNumber),
		Email:        strings.TrimSpace(input.Email),
		ReleaseDate:  strings.TrimSpace(input.ReleaseDate),
		ReleasedFrom: strings.TrimSpace(input.ReleasedFrom),
	}
	if err := validateEntity("participant", p); err != nil {
		return nil, err
	}

	p = lifecycle.New(p, actor, clock())

	if err := database.InsertParticipant(ctx, &p); err != nil {
		return nil, fmt.Errorf("failed to insert participant: %w", err)
	}

	logger.Info("Participant created",
		zap.String("participant_id", p.ID),
		zap.Int("participant_number", p.ParticipantNumber),
		zap.String("actor_id", actor.ID))

	return &p, nil
}

// mutateParticipant loads id, applies mutate and writes the result with compare-and-swap,
// retrying from a fresh read on version conflicts. A mutate returning errUnchanged skips the write.
func mutateParticipant(
	ctx context.Context,
	database db.ParticipantStore,
	cfg *config.Config,
	logger *zap.Logger,
	operation string,
	id string,
	mutate func(model.Participant) (model.Participant, error),
) (*model.Participant, error) {
	var result *model.Participant

	err := retryOnConflict(ctx, cfg, logger, operation, id, func() error {
		current, err := database.GetParticipant(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load participant: %w", err)
		}

		next, err := mutate(*current)
		if errors.Is(err, errUnchanged) {
			result = current
			return nil
		}
		if err != nil {
			return err
		}

		if err := lifecycle.CheckInvariants(next); err != nil {
			return fmt.Errorf("refusing to write participant %s: %w", id, err)
		}

		if err := database.UpdateParticipant(ctx, &next); err != nil {
			return fmt.Errorf("failed to update participant: %w", err)
		}

		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

var transitionActions = map[lifecycle.Transition]visibility.Action{
	lifecycle.RecordContact:    visibility.ActionRecordBridgeContact,
	lifecycle.RecordAttempt:    visibility.ActionRecordBridgeContact,
	lifecycle.MarkUnable:       visibility.ActionRecordBridgeContact,
	lifecycle.MoveToMentorship: visibility.ActionBulkMoveToMentorship,
	lifecycle.ReturnToBridge:   visibility.ActionAssignMentor,
	lifecycle.AssignMentor:     visibility.ActionAssignMentor,
	lifecycle.ReassignMentor:   visibility.ActionAssignMentor,
	lifecycle.Graduate:         visibility.ActionGraduate,
	lifecycle.CeaseContact:     visibility.ActionGraduate,
}

// TransitionPermission returns the action a user must hold to apply t
func TransitionPermission(t lifecycle.Transition) visibility.Action {
	return transitionActions[t]
}

// TransitionParticipant applies a single status transition to one participant
func TransitionParticipant(
	ctx context.Context,
	database db.Database,
	cfg *config.Config,
	logger *zap.Logger,
	id string,
	transition lifecycle.Transition,
	mentorID string,
	actor lifecycle.Actor,
) (*model.Participant, error) {
	logger.Debug("Transitioning participant",
		zap.String("participant_id", id),
		zap.String("transition", string(transition)),
		zap.String("actor_id", actor.ID))

	req := lifecycle.Request{Transition: transition, Actor: actor}

	if transition == lifecycle.AssignMentor || transition == lifecycle.ReassignMentor {
		mentor, err := loadMentor(ctx, database, mentorID)
		if err != nil {
			return nil, err
		}
		req.MentorID = mentor.ID
		req.MentorName = mentor.DisplayName()
	}

	p, err := mutateParticipant(ctx, database, cfg, logger, string(transition), id, func(current model.Participant) (model.Participant, error) {
		req.At = clock()
		return lifecycle.Apply(current, req)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Participant transitioned",
		zap.String("participant_id", p.ID),
		zap.String("transition", string(transition)),
		zap.String("status", string(p.Status)),
		zap.String("actor_id", actor.ID))

	return p, nil
}

// IsMentorEligible reports whether u can be assigned mentees
func IsMentorEligible(u model.User) bool {
	return u.HasRole(model.RoleMentor) || u.HasRole(model.RoleMentorshipLeader) || u.HasRole(model.RoleAdmin)
}

func loadMentor(ctx context.Context, users db.UserStore, mentorID string) (*model.User, error) {
	if mentorID == "" {
		return nil, invalid("mentor id is required")
	}
	mentor, err := users.GetUser(ctx, mentorID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, &ValidationError{Message: fmt.Sprintf("mentor %s does not exist", mentorID), Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load mentor: %w", err)
	}
	if !IsMentorEligible(*mentor) {
		return nil, invalid("user %s does not hold the mentor role", mentorID)
	}
	return mentor, nil
}

// outcomeFor classifies the error of one record in a bulk request
func outcomeFor(id string, err error) BulkOutcome {
	switch {
	case err == nil:
		return BulkOutcome{ID: id, Result: BulkMoved}
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return BulkOutcome{ID: id, Result: BulkSkipped, Err: err}
	default:
		return BulkOutcome{ID: id, Result: BulkFailed, Err: err}
	}
}

// BulkMoveToMentorship moves each bridge-stage participant to pending_mentor. Ids are processed
// independently: participants in any other status are skipped, store errors fail only that id.
func BulkMoveToMentorship(
	ctx context.Context,
	database db.ParticipantStore,
	cfg *config.Config,
	logger *zap.Logger,
	ids []string,
	actor lifecycle.Actor,
) []BulkOutcome {
	logger.Info("Bulk moving participants to mentorship", zap.Int("count", len(ids)), zap.String("actor_id", actor.ID))

	outcomes := make([]BulkOutcome, 0, len(ids))
	for _, id := range ids {
		_, err := mutateParticipant(ctx, database, cfg, logger, string(lifecycle.MoveToMentorship), id, func(current model.Participant) (model.Participant, error) {
			return lifecycle.Apply(current, lifecycle.Request{
				Transition: lifecycle.MoveToMentorship,
				Actor:      actor,
				At:         clock(),
			})
		})

		outcome := outcomeFor(id, err)
		if outcome.Result == BulkFailed {
			logger.Warn("Failed to move participant", zap.String("participant_id", id), zap.Error(err))
		}
		outcomes = append(outcomes, outcome)
	}

	counts := CountResults(outcomes)
	logger.Info("Bulk move complete",
		zap.Int("moved", counts[BulkMoved]),
		zap.Int("skipped", counts[BulkSkipped]),
		zap.Int("failed", counts[BulkFailed]))

	return outcomes
}

// BulkAssignToMentor assigns each pending_mentor participant to mentorID and moves it to
// active_mentorship. Participants in any other status, including active mentees, are skipped
// untouched; reassignment goes through TransitionParticipant. An unknown or ineligible mentor
// fails the whole request before any write.
func BulkAssignToMentor(
	ctx context.Context,
	database db.Database,
	cfg *config.Config,
	logger *zap.Logger,
	ids []string,
	mentorID string,
	actor lifecycle.Actor,
) ([]BulkOutcome, error) {
	mentor, err := loadMentor(ctx, database, mentorID)
	if err != nil {
		return nil, err
	}

	logger.Info("Bulk assigning participants to mentor",
		zap.Int("count", len(ids)),
		zap.String("mentor_id", mentor.ID),
		zap.String("actor_id", actor.ID))

	outcomes := make([]BulkOutcome, 0, len(ids))
	for _, id := range ids {
		_, err := mutateParticipant(ctx, database, cfg, logger, string(lifecycle.AssignMentor), id, func(current model.Participant) (model.Participant, error) {
			return lifecycle.Apply(current, lifecycle.Request{
				Transition: lifecycle.AssignMentor,
				Actor:      actor,
				At:         clock(),
				MentorID:   mentor.ID,
				MentorName: mentor.DisplayName(),
			})
		})

		outcome := outcomeFor(id, err)
		if outcome.Result == BulkFailed {
			logger.Warn("Failed to assign participant", zap.String("participant_id", id), zap.Error(err))
		}
		outcomes = append(outcomes, outcome)
	}

	counts := CountResults(outcomes)
	logger.Info("Bulk assign complete",
		zap.Int("moved", counts[BulkMoved]),
		zap.Int("skipped", counts[BulkSkipped]),
		zap.Int("failed", counts[BulkFailed]))

	return outcomes, nil
}

// AddNote appends a free-text note to a participant
func AddNote(ctx context.Context, database db.ParticipantStore, cfg *config.Config, logger *zap.Logger, id, note string, actor lifecycle.Actor) (*model.Participant, error) {
	p, err := mutateParticipant(ctx, database, cfg, logger, "add_note", id, func(current model.Participant) (model.Participant, error) {
		next, err := lifecycle.AddNote(current, note, actor, clock())
		if errors.Is(err, lifecycle.ErrEmptyNote) {
			return current, &ValidationError{Message: "note is required", Err: err}
		}
		return next, err
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Note added", zap.String("participant_id", id), zap.String("actor_id", actor.ID))
	return p, nil
}

// CompleteGraduationStep records a configured graduation step. Repeating a step is a no-op.
func CompleteGraduationStep(ctx context.Context, database db.ParticipantStore, cfg *config.Config, logger *zap.Logger, id, step string, actor lifecycle.Actor) (*model.Participant, error) {
	allowed := config.DefaultGraduationSteps
	if cfg != nil && len(cfg.GraduationSteps) > 0 {
		allowed = cfg.GraduationSteps
	}

	p, err := mutateParticipant(ctx, database, cfg, logger, "graduation_step", id, func(current model.Participant) (model.Participant, error) {
		next, changed, err := lifecycle.CompleteGraduationStep(current, step, allowed, actor, clock())
		if errors.Is(err, lifecycle.ErrUnknownStep) {
			return current, &ValidationError{Message: "unknown graduation step", Err: err}
		}
		if err != nil {
			return current, err
		}
		if !changed {
			return current, errUnchanged
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Graduation step recorded",
		zap.String("participant_id", id),
		zap.String("step", step),
		zap.String("actor_id", actor.ID))
	return p, nil
}
