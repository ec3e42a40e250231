package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/mentor-bridge/pkg/core/model"
)

var shiftStart = time.Date(2025, 4, 6, 18, 0, 0, 0, time.UTC)

func intPtr(i int) *int { return &i }

func shiftWith(max *int, assigned ...string) model.Shift {
	s := model.Shift{
		ID:            "s-1",
		Title:         "Evening drop-in",
		Start:         shiftStart,
		End:           shiftStart.Add(3 * time.Hour),
		MaxVolunteers: max,
	}
	for _, id := range assigned {
		s.AssignedUsers = append(s.AssignedUsers, model.ShiftAssignment{UserID: id, UserName: id, AssignedAt: shiftStart.Add(-time.Hour)})
	}
	return s
}

func volunteer(id string) model.User {
	return model.User{ID: id, Name: "Vol " + id, Role: model.RoleVolunteer}
}

func TestSignUpForShift_FullShiftRefusesThirdUser(t *testing.T) {
	shift := shiftWith(intPtr(2), "u-1", "u-2")

	ok, reason := SignUpForShift(&shift, volunteer("u-3"), shiftStart, nil)

	assert.False(t, ok)
	assert.Contains(t, reason, "full")
	assert.Len(t, shift.AssignedUsers, 2)
}

func TestSignUpForShift_Succeeds(t *testing.T) {
	shift := shiftWith(intPtr(2), "u-1")
	user := model.User{ID: "u-2", Name: "Robin Smith", Nickname: "Rob", Role: model.RoleVolunteer}
	now := shiftStart.Add(-48 * time.Hour)

	ok, reason := SignUpForShift(&shift, user, now, nil)

	require.True(t, ok, reason)
	require.Len(t, shift.AssignedUsers, 2)
	assert.Equal(t, "u-2", shift.AssignedUsers[1].UserID)
	assert.Equal(t, "Rob", shift.AssignedUsers[1].UserName)
	assert.Equal(t, now, shift.AssignedUsers[1].AssignedAt)
}

func TestSignUpForShift_Unbounded(t *testing.T) {
	shift := shiftWith(nil, "u-1", "u-2", "u-3")
	ok, _ := SignUpForShift(&shift, volunteer("u-4"), shiftStart, nil)
	assert.True(t, ok)
	assert.Len(t, shift.AssignedUsers, 4)
}

func TestSignUpForShift_NoDoubleAssignment(t *testing.T) {
	shift := shiftWith(intPtr(5), "u-1")
	ok, reason := SignUpForShift(&shift, volunteer("u-1"), shiftStart, nil)
	assert.False(t, ok)
	assert.Contains(t, reason, "already")
	assert.Len(t, shift.AssignedUsers, 1)
}

func TestSignUpForShift_AllowedRoles(t *testing.T) {
	shift := shiftWith(nil)
	shift.AllowedRoles = []model.Role{model.RoleVolunteerSupport}

	ok, reason := SignUpForShift(&shift, volunteer("u-1"), shiftStart, nil)
	assert.False(t, ok)
	assert.Contains(t, reason, "volunteer_support")

	secondary := model.User{ID: "u-2", Role: model.RoleMentor, Roles: []model.Role{model.RoleVolunteerSupport}}
	ok, _ = SignUpForShift(&shift, secondary, shiftStart, nil)
	assert.True(t, ok)
}

func TestCancelSignUp(t *testing.T) {
	shift := shiftWith(intPtr(3), "u-1", "u-2", "u-3")
	original := shift.AssignedUsers

	assert.True(t, CancelSignUp(&shift, "u-2"))
	require.Len(t, shift.AssignedUsers, 2)
	assert.Equal(t, "u-1", shift.AssignedUsers[0].UserID)
	assert.Equal(t, "u-3", shift.AssignedUsers[1].UserID)
	// The original backing array is left alone
	assert.Equal(t, "u-2", original[1].UserID)

	assert.False(t, CancelSignUp(&shift, "u-2"))
}

func TestAssignUsers(t *testing.T) {
	shift := shiftWith(intPtr(2), "u-1")
	rejections := AssignUsers(&shift, []model.User{volunteer("u-1"), volunteer("u-2"), volunteer("u-3")}, shiftStart, nil)

	require.Len(t, rejections, 2)
	assert.Equal(t, "u-1", rejections[0].UserID)
	assert.Equal(t, "u-3", rejections[1].UserID)
	assert.Len(t, shift.AssignedUsers, 2)
}

func TestValidateRoster(t *testing.T) {
	shift := shiftWith(intPtr(2), "u-1", "u-2", "u-1")
	shift.AllowedRoles = []model.Role{model.RoleVolunteer}
	users := []model.User{volunteer("u-1"), {ID: "u-2", Name: "Mentor", Role: model.RoleMentor}}

	violations := ValidateRoster(shift, users, nil)

	names := make([]string, len(violations))
	for i, v := range violations {
		names[i] = v.RuleName
	}
	assert.ElementsMatch(t, []string{"NoDoubleAssignment", "Capacity", "AllowedRoles"}, names)

	clean := shiftWith(intPtr(2), "u-1")
	assert.Empty(t, ValidateRoster(clean, users, nil))
}

func TestShiftsBetweenAndForUser(t *testing.T) {
	a := shiftWith(nil, "u-1")
	a.ID = "a"
	b := shiftWith(nil)
	b.ID = "b"
	b.Start = shiftStart.AddDate(0, 0, 7)
	b.End = b.Start.Add(time.Hour)

	between := ShiftsBetween([]model.Shift{a, b}, shiftStart, shiftStart.AddDate(0, 0, 7))
	require.Len(t, between, 1)
	assert.Equal(t, "a", between[0].ID)

	mine := ShiftsForUser([]model.Shift{a, b}, "u-1")
	require.Len(t, mine, 1)
	assert.Equal(t, "a", mine[0].ID)
}

func TestInviteByRoles(t *testing.T) {
	meeting := model.Meeting{
		ID:           "m-1",
		AllowedRoles: []model.Role{model.RoleMentor},
		Invitees:     []model.MeetingInvitee{{UserID: "u-1", UserName: "Existing", RSVP: model.RSVPYes}},
	}
	users := []model.User{
		{ID: "u-1", Name: "Existing", Role: model.RoleMentor},
		{ID: "u-2", Name: "New Mentor", Role: model.RoleMentor},
		{ID: "u-3", Name: "Volunteer", Role: model.RoleVolunteer},
		{ID: "u-4", Name: "Leader", Role: model.RoleMentorshipLeader, Roles: []model.Role{model.RoleMentor}},
	}

	added := InviteByRoles(&meeting, users)

	assert.Equal(t, 2, added)
	require.Len(t, meeting.Invitees, 3)
	assert.Equal(t, model.RSVPYes, meeting.Invitees[0].RSVP)
	assert.Equal(t, "u-2", meeting.Invitees[1].UserID)
	assert.Equal(t, model.RSVPPending, meeting.Invitees[1].RSVP)
	assert.Equal(t, "u-4", meeting.Invitees[2].UserID)

	open := model.Meeting{ID: "m-2"}
	assert.Equal(t, 4, InviteByRoles(&open, users))
}

func TestRespondToMeeting(t *testing.T) {
	meeting := model.Meeting{Invitees: []model.MeetingInvitee{{UserID: "u-1", RSVP: model.RSVPPending}}}
	now := shiftStart

	assert.ErrorIs(t, RespondToMeeting(&meeting, "u-1", "perhaps", now), ErrInvalidRSVP)
	assert.ErrorIs(t, RespondToMeeting(&meeting, "u-1", model.RSVPPending, now), ErrInvalidRSVP)
	assert.ErrorIs(t, RespondToMeeting(&meeting, "u-9", model.RSVPYes, now), ErrNotInvited)

	require.NoError(t, RespondToMeeting(&meeting, "u-1", model.RSVPMaybe, now))
	assert.Equal(t, model.RSVPMaybe, meeting.Invitees[0].RSVP)
	require.NotNil(t, meeting.Invitees[0].RespondedAt)
	assert.Equal(t, now, *meeting.Invitees[0].RespondedAt)

	counts := RSVPCounts(meeting)
	assert.Equal(t, 1, counts[model.RSVPMaybe])
	assert.Equal(t, 0, counts[model.RSVPPending])
}
