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
	"github.com/jakechorley/mentor-bridge/pkg/core/scheduling"
	"github.com/jakechorley/mentor-bridge/pkg/core/visibility"
	"github.com/jakechorley/mentor-bridge/pkg/db"
)

// ErrSignUpRefused is returned when a sign-up rule vetoes joining a shift
var ErrSignUpRefused = errors.New("sign-up refused")

// ShiftScheduleStore defines the database operations needed by the shift services
type ShiftScheduleStore interface {
	db.ShiftStore
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUsers(ctx context.Context) ([]model.User, error)
}

// MeetingScheduleStore defines the database operations needed by the meeting services
type MeetingScheduleStore interface {
	db.MeetingStore
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUsers(ctx context.Context) ([]model.User, error)
}

// ShiftInput holds the fields of a new shift. A non-empty RRule creates one shift per occurrence.
type ShiftInput struct {
	Title         string
	Description   string
	Start         time.Time
	End           time.Time
	Location      string
	MaxVolunteers *int
	AllowedRoles  []model.Role
	RRule         string
}

// ShiftUpdate holds the fields to change on a shift; nil fields are left as they are
type ShiftUpdate struct {
	Title         *string
	Description   *string
	Start         *time.Time
	End           *time.Time
	Location      *string
	MaxVolunteers *int
	ClearMax      bool
	AllowedRoles  *[]model.Role
}

// MeetingInput holds the fields of a new meeting. InviteeIDs, when set, replaces role-based invitation.
type MeetingInput struct {
	Title        string
	Description  string
	Start        time.Time
	End          time.Time
	Location     string
	AllowedRoles []model.Role
	InviteeIDs   []string
	RRule        string
}

func maxOccurrences(cfg *config.Config) int {
	if cfg == nil || cfg.MaxRecurrenceOccurrences <= 0 {
		return config.DefaultMaxRecurrenceOccurrences
	}
	return cfg.MaxRecurrenceOccurrences
}

// windows expands an optional rrule into occurrence windows, returning the group id to share
func windows(cfg *config.Config, start, end time.Time, rule string) ([]scheduling.Occurrence, string, error) {
	if strings.TrimSpace(rule) == "" {
		return []scheduling.Occurrence{{Start: start.UTC(), End: end.UTC()}}, "", nil
	}

	occurrences, err := scheduling.ExpandRecurrence(start.UTC(), end.UTC(), rule, maxOccurrences(cfg))
	if err != nil {
		return nil, "", &ValidationError{Message: "invalid recurrence", Err: err}
	}
	if len(occurrences) == 0 {
		return nil, "", invalid("recurrence rule %q produces no occurrences", rule)
	}
	return occurrences, uuid.New().String(), nil
}

func validateRoleList(roles []model.Role) error {
	for _, r := range roles {
		if !r.IsValid() {
			return invalid("unknown role %q", r)
		}
	}
	return nil
}

// CreateShifts creates one shift, or one per occurrence of input.RRule sharing a recurring group id
func CreateShifts(ctx context.Context, database db.ShiftStore, cfg *config.Config, logger *zap.Logger, actor model.User, input ShiftInput) ([]model.Shift, error) {
	if err := requirePermission(actor, visibility.ActionManageShifts); err != nil {
		return nil, err
	}
	if err := validateRoleList(input.AllowedRoles); err != nil {
		return nil, err
	}

	template := model.Shift{
		Title:         strings.TrimSpace(input.Title),
		Description:   strings.TrimSpace(input.Description),
		Start:         input.Start.UTC(),
		End:           input.End.UTC(),
		Location:      strings.TrimSpace(input.Location),
		MaxVolunteers: input.MaxVolunteers,
		AllowedRoles:  input.AllowedRoles,
		AssignedUsers: []model.ShiftAssignment{},
		CreatedBy:     actor.ID,
	}
	if err := validateEntity("shift", template); err != nil {
		return nil, err
	}

	occurrences, groupID, err := windows(cfg, template.Start, template.End, input.RRule)
	if err != nil {
		return nil, err
	}

	shifts := make([]*model.Shift, len(occurrences))
	for i, occ := range occurrences {
		s := template.Clone()
		s.ID = uuid.New().String()
		s.Start = occ.Start
		s.End = occ.End
		s.RecurringGroupID = groupID
		s.AssignedUsers = []model.ShiftAssignment{}
		shifts[i] = &s
	}

	if err := database.InsertShifts(ctx, shifts); err != nil {
		return nil, fmt.Errorf("failed to insert shifts: %w", err)
	}

	logger.Info("Shifts created",
		zap.Int("count", len(shifts)),
		zap.String("recurring_group_id", groupID),
		zap.String("actor_id", actor.ID))

	result := make([]model.Shift, len(shifts))
	for i, s := range shifts {
		result[i] = *s
	}
	return result, nil
}

// mutateShift loads id, applies mutate and writes with compare-and-swap, retrying on conflicts
func mutateShift(
	ctx context.Context,
	database db.ShiftStore,
	cfg *config.Config,
	logger *zap.Logger,
	operation string,
	id string,
	mutate func(*model.Shift) error,
) (*model.Shift, error) {
	var result *model.Shift

	err := retryOnConflict(ctx, cfg, logger, operation, id, func() error {
		current, err := database.GetShift(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load shift: %w", err)
		}

		next := current.Clone()
		err = mutate(&next)
		if errors.Is(err, errUnchanged) {
			result = current
			return nil
		}
		if err != nil {
			return err
		}

		if err := database.UpdateShift(ctx, &next); err != nil {
			return fmt.Errorf("failed to update shift: %w", err)
		}

		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// UpdateShift edits a shift's details. Capacity cannot drop below the current roster size.
func UpdateShift(ctx context.Context, database db.ShiftStore, cfg *config.Config, logger *zap.Logger, actor model.User, id string, update ShiftUpdate) (*model.Shift, error) {
	if err := requirePermission(actor, visibility.ActionManageShifts); err != nil {
		return nil, err
	}
	if update.AllowedRoles != nil {
		if err := validateRoleList(*update.AllowedRoles); err != nil {
			return nil, err
		}
	}

	shift, err := mutateShift(ctx, database, cfg, logger, "update_shift", id, func(s *model.Shift) error {
		if update.Title != nil {
			s.Title = strings.TrimSpace(*update.Title)
		}
		if update.Description != nil {
			s.Description = strings.TrimSpace(*update.Description)
		}
		if update.Start != nil {
			s.Start = update.Start.UTC()
		}
		if update.End != nil {
			s.End = update.End.UTC()
		}
		if update.Location != nil {
			s.Location = strings.TrimSpace(*update.Location)
		}
		if update.MaxVolunteers != nil {
			max := *update.MaxVolunteers
			s.MaxVolunteers = &max
		}
		if update.ClearMax {
			s.MaxVolunteers = nil
		}
		if update.AllowedRoles != nil {
			s.AllowedRoles = append([]model.Role(nil), (*update.AllowedRoles)...)
		}

		if s.MaxVolunteers != nil && len(s.AssignedUsers) > *s.MaxVolunteers {
			return invalid("shift has %d volunteers signed up, more than the new limit of %d", len(s.AssignedUsers), *s.MaxVolunteers)
		}
		return validateEntity("shift", *s)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Shift updated", zap.String("shift_id", id), zap.String("actor_id", actor.ID))
	return shift, nil
}

// DeleteShift removes one shift
func DeleteShift(ctx context.Context, database db.ShiftStore, logger *zap.Logger, actor model.User, id string) error {
	if err := requirePermission(actor, visibility.ActionManageShifts); err != nil {
		return err
	}
	if err := database.DeleteShift(ctx, id); err != nil {
		return fmt.Errorf("failed to delete shift: %w", err)
	}

	logger.Info("Shift deleted", zap.String("shift_id", id), zap.String("actor_id", actor.ID))
	return nil
}

// DeleteShiftSeries removes every shift of a recurring group starting at or after from.
// A zero from deletes the whole series. Returns the number deleted.
func DeleteShiftSeries(ctx context.Context, database db.ShiftStore, logger *zap.Logger, actor model.User, groupID string, from time.Time) (int, error) {
	if err := requirePermission(actor, visibility.ActionManageShifts); err != nil {
		return 0, err
	}
	if groupID == "" {
		return 0, invalid("recurring group id is required")
	}

	shifts, err := database.GetShifts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch shifts: %w", err)
	}

	deleted := 0
	for _, s := range shifts {
		if s.RecurringGroupID != groupID || s.Start.Before(from) {
			continue
		}
		if err := database.DeleteShift(ctx, s.ID); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				continue
			}
			return deleted, fmt.Errorf("failed to delete shift %s: %w", s.ID, err)
		}
		deleted++
	}

	if deleted == 0 {
		return 0, fmt.Errorf("recurring group %s: %w", groupID, db.ErrNotFound)
	}

	logger.Info("Shift series deleted",
		zap.String("recurring_group_id", groupID),
		zap.Int("count", deleted),
		zap.String("actor_id", actor.ID))
	return deleted, nil
}

// SignUpForShift adds user to a shift's roster when every sign-up rule allows it
func SignUpForShift(ctx context.Context, database db.ShiftStore, cfg *config.Config, logger *zap.Logger, user model.User, shiftID string) (*model.Shift, error) {
	shift, err := mutateShift(ctx, database, cfg, logger, "sign_up", shiftID, func(s *model.Shift) error {
		if ok, reason := scheduling.SignUpForShift(s, user, clock(), nil); !ok {
			return fmt.Errorf("%w: %s", ErrSignUpRefused, reason)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Signed up for shift", zap.String("shift_id", shiftID), zap.String("user_id", user.ID))
	return shift, nil
}

// CancelShiftSignUp removes userID from a shift. Users may remove themselves; removing
// anyone else needs manage_shifts. Removing someone not on the roster is a no-op.
func CancelShiftSignUp(ctx context.Context, database db.ShiftStore, cfg *config.Config, logger *zap.Logger, actor model.User, shiftID, userID string) (*model.Shift, error) {
	if userID == "" {
		userID = actor.ID
	}
	if userID != actor.ID {
		if err := requirePermission(actor, visibility.ActionManageShifts); err != nil {
			return nil, err
		}
	}

	shift, err := mutateShift(ctx, database, cfg, logger, "cancel_sign_up", shiftID, func(s *model.Shift) error {
		if !scheduling.CancelSignUp(s, userID) {
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Shift sign-up cancelled",
		zap.String("shift_id", shiftID),
		zap.String("user_id", userID),
		zap.String("actor_id", actor.ID))
	return shift, nil
}

// AssignShiftUsers adds users to a roster on an admin's behalf, applying the sign-up rules to
// each. Users the rules refuse are reported and the rest are still added.
func AssignShiftUsers(ctx context.Context, database ShiftScheduleStore, cfg *config.Config, logger *zap.Logger, actor model.User, shiftID string, userIDs []string) (*model.Shift, []scheduling.Rejection, error) {
	if err := requirePermission(actor, visibility.ActionManageShifts); err != nil {
		return nil, nil, err
	}

	users := make([]model.User, 0, len(userIDs))
	for _, id := range userIDs {
		u, err := database.GetUser(ctx, id)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return nil, nil, &ValidationError{Message: fmt.Sprintf("user %s does not exist", id), Err: err}
			}
			return nil, nil, fmt.Errorf("failed to load user: %w", err)
		}
		users = append(users, *u)
	}

	var rejections []scheduling.Rejection
	shift, err := mutateShift(ctx, database, cfg, logger, "assign_users", shiftID, func(s *model.Shift) error {
		rejections = scheduling.AssignUsers(s, users, clock(), nil)
		if len(rejections) == len(users) {
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info("Shift roster edited",
		zap.String("shift_id", shiftID),
		zap.Int("requested", len(userIDs)),
		zap.Int("rejected", len(rejections)),
		zap.String("actor_id", actor.ID))
	return shift, rejections, nil
}

// ValidateShiftRosters reports rule violations across every stored shift
func ValidateShiftRosters(ctx context.Context, database ShiftScheduleStore, logger *zap.Logger) ([]scheduling.Violation, error) {
	shifts, err := database.GetShifts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch shifts: %w", err)
	}
	users, err := database.GetUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}

	var violations []scheduling.Violation
	for _, s := range shifts {
		violations = append(violations, scheduling.ValidateRoster(s, users, nil)...)
	}

	logger.Debug("Validated shift rosters", zap.Int("shifts", len(shifts)), zap.Int("violations", len(violations)))
	return violations, nil
}

// CreateMeetings creates one meeting, or one per occurrence of input.RRule sharing a recurring group id
func CreateMeetings(ctx context.Context, database MeetingScheduleStore, cfg *config.Config, logger *zap.Logger, actor model.User, input MeetingInput) ([]model.Meeting, error) {
	if err := requirePermission(actor, visibility.ActionManageMeetings); err != nil {
		return nil, err
	}
	if err := validateRoleList(input.AllowedRoles); err != nil {
		return nil, err
	}

	template := model.Meeting{
		Title:        strings.TrimSpace(input.Title),
		Description:  strings.TrimSpace(input.Description),
		Start:        input.Start.UTC(),
		End:          input.End.UTC(),
		Location:     strings.TrimSpace(input.Location),
		AllowedRoles: input.AllowedRoles,
		Invitees:     []model.MeetingInvitee{},
		CreatedBy:    actor.ID,
	}
	if err := validateEntity("meeting", template); err != nil {
		return nil, err
	}

	if len(input.InviteeIDs) > 0 {
		for _, id := range input.InviteeIDs {
			u, err := database.GetUser(ctx, id)
			if err != nil {
				if errors.Is(err, db.ErrNotFound) {
					return nil, &ValidationError{Message: fmt.Sprintf("invitee %s does not exist", id), Err: err}
				}
				return nil, fmt.Errorf("failed to load invitee: %w", err)
			}
			template.Invitees = append(template.Invitees, model.MeetingInvitee{
				UserID:   u.ID,
				UserName: u.DisplayName(),
				RSVP:     model.RSVPPending,
			})
		}
	} else {
		users, err := database.GetUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch users: %w", err)
		}
		scheduling.InviteByRoles(&template, users)
	}

	occurrences, groupID, err := windows(cfg, template.Start, template.End, input.RRule)
	if err != nil {
		return nil, err
	}

	meetings := make([]*model.Meeting, len(occurrences))
	for i, occ := range occurrences {
		m := template.Clone()
		m.ID = uuid.New().String()
		m.Start = occ.Start
		m.End = occ.End
		m.RecurringGroupID = groupID
		meetings[i] = &m
	}

	if err := database.InsertMeetings(ctx, meetings); err != nil {
		return nil, fmt.Errorf("failed to insert meetings: %w", err)
	}

	logger.Info("Meetings created",
		zap.Int("count", len(meetings)),
		zap.Int("invitees", len(template.Invitees)),
		zap.String("recurring_group_id", groupID),
		zap.String("actor_id", actor.ID))

	result := make([]model.Meeting, len(meetings))
	for i, m := range meetings {
		result[i] = *m
	}
	return result, nil
}

// RespondToMeeting records user's RSVP on a meeting they are invited to
func RespondToMeeting(ctx context.Context, database db.MeetingStore, cfg *config.Config, logger *zap.Logger, user model.User, meetingID string, rsvp model.RSVP) (*model.Meeting, error) {
	var result *model.Meeting

	err := retryOnConflict(ctx, cfg, logger, "respond_to_meeting", meetingID, func() error {
		current, err := database.GetMeeting(ctx, meetingID)
		if err != nil {
			return fmt.Errorf("failed to load meeting: %w", err)
		}

		next := current.Clone()
		if err := scheduling.RespondToMeeting(&next, user.ID, rsvp, clock()); err != nil {
			if errors.Is(err, scheduling.ErrNotInvited) {
				return fmt.Errorf("%w: %v", ErrForbidden, err)
			}
			return &ValidationError{Message: "invalid response", Err: err}
		}

		if err := database.UpdateMeeting(ctx, &next); err != nil {
			return fmt.Errorf("failed to update meeting: %w", err)
		}
		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Meeting response recorded",
		zap.String("meeting_id", meetingID),
		zap.String("user_id", user.ID),
		zap.String("rsvp", string(rsvp)))
	return result, nil
}

// DeleteMeeting removes one meeting
func DeleteMeeting(ctx context.Context, database db.MeetingStore, logger *zap.Logger, actor model.User, id string) error {
	if err := requirePermission(actor, visibility.ActionManageMeetings); err != nil {
		return err
	}
	if err := database.DeleteMeeting(ctx, id); err != nil {
		return fmt.Errorf("failed to delete meeting: %w", err)
	}

	logger.Info("Meeting deleted", zap.String("meeting_id", id), zap.String("actor_id", actor.ID))
	return nil
}

// ListMeetingsFor returns meetings user created or is invited to; admins see all
func ListMeetingsFor(ctx context.Context, database db.MeetingStore, user model.User) ([]model.Meeting, error) {
	all, err := database.GetMeetings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch meetings: %w", err)
	}
	if user.HasRole(model.RoleAdmin) {
		return all, nil
	}

	result := make([]model.Meeting, 0, len(all))
	for _, m := range all {
		if m.CreatedBy == user.ID {
			result = append(result, m)
			continue
		}
		for _, inv := range m.Invitees {
			if inv.UserID == user.ID {
				result = append(result, m)
				break
			}
		}
	}
	return result, nil
}
