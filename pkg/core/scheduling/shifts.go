// Package scheduling holds the rules for shift rosters, meeting invitations and recurrence.
package scheduling

import (
	"errors"
	"fmt"
	"time"

	"github.com/jakechorley/mentor-bridge/pkg/core/model"
)

var (
	ErrNotInvited  = errors.New("user is not invited to this meeting")
	ErrInvalidRSVP = errors.New("invalid rsvp")
)

// SignUpForShift adds user to the roster if every rule allows it. On refusal the shift is not
// modified and the reason is returned. nil rules means DefaultRules.
func SignUpForShift(shift *model.Shift, user model.User, now time.Time, rules []SignUpRule) (bool, string) {
	if rules == nil {
		rules = DefaultRules()
	}
	for _, rule := range rules {
		if ok, reason := rule.Allows(*shift, user); !ok {
			return false, reason
		}
	}
	shift.AssignedUsers = append(shift.AssignedUsers, model.ShiftAssignment{
		UserID:     user.ID,
		UserName:   user.DisplayName(),
		AssignedAt: now.UTC(),
	})
	return true, ""
}

// CancelSignUp removes userID from the roster, reporting whether they were on it
func CancelSignUp(shift *model.Shift, userID string) bool {
	for i, a := range shift.AssignedUsers {
		if a.UserID == userID {
			shift.AssignedUsers = append(shift.AssignedUsers[:i:i], shift.AssignedUsers[i+1:]...)
			return true
		}
	}
	return false
}

// Rejection records a user an admin roster edit could not add
type Rejection struct {
	UserID string
	Reason string
}

// AssignUsers signs each user up in order, applying the same rules as self sign-up
func AssignUsers(shift *model.Shift, users []model.User, now time.Time, rules []SignUpRule) []Rejection {
	var rejections []Rejection
	for _, u := range users {
		if ok, reason := SignUpForShift(shift, u, now, rules); !ok {
			rejections = append(rejections, Rejection{UserID: u.ID, Reason: reason})
		}
	}
	return rejections
}

// ValidateRoster reports rule violations on an existing roster
func ValidateRoster(shift model.Shift, users []model.User, rules []SignUpRule) []Violation {
	if rules == nil {
		rules = DefaultRules()
	}
	byID := make(map[string]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	var violations []Violation
	for _, rule := range rules {
		violations = append(violations, rule.ValidateRoster(shift, byID)...)
	}
	return violations
}

// ShiftsBetween returns shifts starting in [from, to), in input order
func ShiftsBetween(shifts []model.Shift, from, to time.Time) []model.Shift {
	var result []model.Shift
	for _, s := range shifts {
		if !s.Start.Before(from) && s.Start.Before(to) {
			result = append(result, s.Clone())
		}
	}
	return result
}

// ShiftsForUser returns shifts userID is assigned to
func ShiftsForUser(shifts []model.Shift, userID string) []model.Shift {
	var result []model.Shift
	for _, s := range shifts {
		if s.IsAssigned(userID) {
			result = append(result, s.Clone())
		}
	}
	return result
}

// InviteByRoles invites every user holding one of the meeting's allowed roles who is not
// already invited. An empty allowed list invites everyone. Returns the number added.
func InviteByRoles(meeting *model.Meeting, users []model.User) int {
	invited := make(map[string]bool, len(meeting.Invitees))
	for _, inv := range meeting.Invitees {
		invited[inv.UserID] = true
	}

	added := 0
	for _, u := range users {
		if invited[u.ID] {
			continue
		}
		if len(meeting.AllowedRoles) > 0 && !hasAnyRole(u, meeting.AllowedRoles) {
			continue
		}
		meeting.Invitees = append(meeting.Invitees, model.MeetingInvitee{
			UserID:   u.ID,
			UserName: u.DisplayName(),
			RSVP:     model.RSVPPending,
		})
		invited[u.ID] = true
		added++
	}
	return added
}

func hasAnyRole(u model.User, roles []model.Role) bool {
	for _, r := range roles {
		if u.HasRole(r) {
			return true
		}
	}
	return false
}

// RespondToMeeting records an invitee's answer
func RespondToMeeting(meeting *model.Meeting, userID string, rsvp model.RSVP, now time.Time) error {
	if !rsvp.IsValid() || rsvp == model.RSVPPending {
		return fmt.Errorf("%w: %q", ErrInvalidRSVP, rsvp)
	}
	for i := range meeting.Invitees {
		if meeting.Invitees[i].UserID == userID {
			at := now.UTC()
			meeting.Invitees[i].RSVP = rsvp
			meeting.Invitees[i].RespondedAt = &at
			return nil
		}
	}
	return ErrNotInvited
}

// RSVPCounts tallies invitee responses
func RSVPCounts(meeting model.Meeting) map[model.RSVP]int {
	counts := map[model.RSVP]int{
		model.RSVPPending: 0,
		model.RSVPYes:     0,
		model.RSVPNo:      0,
		model.RSVPMaybe:   0,
	}
	for _, inv := range meeting.Invitees {
		counts[inv.RSVP]++
	}
	return counts
}
