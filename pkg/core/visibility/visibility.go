// Package visibility decides which participants, tasks and users a role may see.
// Every function is pure: inputs are never modified and output keeps input order.
package visibility

import (
	"github.com/jakechorley/mentor-bridge/pkg/core/model"
)

type participantRule func(p model.Participant, selfID string) bool

func seesNothing(model.Participant, string) bool { return false }

var participantRules = map[model.Role]participantRule{
	model.RoleAdmin: func(model.Participant, string) bool { return true },
	model.RoleBridgeTeamLeader: func(p model.Participant, _ string) bool {
		return p.Status.IsBridgeStage()
	},
	model.RoleBridgeTeam: func(p model.Participant, _ string) bool {
		return p.Status.IsBridgeStage()
	},
	model.RoleMentorshipLeader: func(p model.Participant, selfID string) bool {
		return p.Status == model.StatusPendingMentor || (selfID != "" && p.AssignedMentor == selfID)
	},
	model.RoleMentor: func(p model.Participant, selfID string) bool {
		return selfID != "" && p.AssignedMentor == selfID
	},
	model.RoleVolunteer:        seesNothing,
	model.RoleVolunteerSupport: seesNothing,
}

func ruleFor(role model.Role) participantRule {
	if rule, ok := participantRules[role]; ok {
		return rule
	}
	return seesNothing
}

// ComputeVisibleParticipants returns the participants role may see, deep-copied, in input order
func ComputeVisibleParticipants(all []model.Participant, role model.Role, selfID string) []model.Participant {
	return filterParticipants(all, []model.Role{role}, selfID)
}

// VisibleParticipantsForUser unions the visibility of every role the user holds
func VisibleParticipantsForUser(all []model.Participant, user model.User) []model.Participant {
	return filterParticipants(all, user.EffectiveRoles(), user.ID)
}

// ParticipantVisible reports whether any of roles may see p
func ParticipantVisible(p model.Participant, roles []model.Role, selfID string) bool {
	for _, role := range roles {
		if ruleFor(role)(p, selfID) {
			return true
		}
	}
	return false
}

func filterParticipants(all []model.Participant, roles []model.Role, selfID string) []model.Participant {
	result := make([]model.Participant, 0, len(all))
	for _, p := range all {
		if ParticipantVisible(p, roles, selfID) {
			result = append(result, p.Clone())
		}
	}
	return result
}

// VisibleTasks returns the tasks role may see. users resolves assignee roles.
func VisibleTasks(tasks []model.Task, users []model.User, role model.Role, selfID string) []model.Task {
	return filterTasks(tasks, users, []model.Role{role}, selfID)
}

// VisibleTasksForUser unions the task visibility of every role the user holds
func VisibleTasksForUser(tasks []model.Task, users []model.User, user model.User) []model.Task {
	return filterTasks(tasks, users, user.EffectiveRoles(), user.ID)
}

// TaskVisible reports whether any of roles may see t
func TaskVisible(t model.Task, assignee *model.User, roles []model.Role, selfID string) bool {
	if IsOwnTask(t, selfID) {
		return true
	}
	for _, role := range roles {
		switch role {
		case model.RoleAdmin:
			return true
		case model.RoleBridgeTeamLeader:
			if assignee != nil && (assignee.HasRole(model.RoleBridgeTeam) || assignee.HasRole(model.RoleBridgeTeamLeader)) {
				return true
			}
		case model.RoleMentorshipLeader:
			if assignee != nil && assignee.HasRole(model.RoleMentor) {
				return true
			}
		}
	}
	return false
}

// IsOwnTask reports whether selfID assigned or was assigned t
func IsOwnTask(t model.Task, selfID string) bool {
	return selfID != "" && (t.AssignedTo == selfID || t.AssignedBy == selfID)
}

func filterTasks(tasks []model.Task, users []model.User, roles []model.Role, selfID string) []model.Task {
	byID := make(map[string]*model.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	result := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if TaskVisible(t, byID[t.AssignedTo], roles, selfID) {
			result = append(result, t.Clone())
		}
	}
	return result
}

// VisibleUsers returns the user accounts role may see
func VisibleUsers(users []model.User, role model.Role, selfID string) []model.User {
	return filterUsers(users, []model.Role{role}, selfID)
}

// VisibleUsersForUser unions the user visibility of every role the user holds
func VisibleUsersForUser(users []model.User, user model.User) []model.User {
	return filterUsers(users, user.EffectiveRoles(), user.ID)
}

// UserVisible reports whether any of roles may see u
func UserVisible(u model.User, roles []model.Role, selfID string) bool {
	if u.ID == selfID {
		return true
	}
	for _, role := range roles {
		switch role {
		case model.RoleAdmin:
			return true
		case model.RoleBridgeTeamLeader:
			if u.HasRole(model.RoleBridgeTeam) || u.HasRole(model.RoleBridgeTeamLeader) {
				return true
			}
		case model.RoleMentorshipLeader:
			if u.HasRole(model.RoleMentor) {
				return true
			}
		}
	}
	return false
}

func filterUsers(users []model.User, roles []model.Role, selfID string) []model.User {
	result := make([]model.User, 0, len(users))
	for _, u := range users {
		if UserVisible(u, roles, selfID) {
			result = append(result, u.Clone())
		}
	}
	return result
}
