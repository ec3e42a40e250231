package visibility

import "github.com/jakechorley/mentor-bridge/pkg/core/model"

// Action is something a user may be authorized to do
type Action string

const (
	ActionBulkMoveToMentorship Action = "bulk_move_to_mentorship"
	ActionAssignMentor         Action = "assign_mentor"
	ActionRecordBridgeContact  Action = "record_bridge_contact"
	ActionGraduate             Action = "graduate"
	ActionRecordGraduationStep Action = "record_graduation_step"
	ActionAddNote              Action = "add_note"
	ActionManageUsers          Action = "manage_users"
	ActionManageShifts         Action = "manage_shifts"
	ActionManageMeetings       Action = "manage_meetings"
	ActionAssignTasks          Action = "assign_tasks"
	ActionManageAllTasks       Action = "manage_all_tasks"
	ActionImpersonate          Action = "impersonate"
	ActionCreateParticipant    Action = "create_participant"
	ActionViewStats            Action = "view_stats"
	ActionPublishSchedule      Action = "publish_schedule"
)

// AllActions lists every action, admins hold all of them
var AllActions = []Action{
	ActionBulkMoveToMentorship,
	ActionAssignMentor,
	ActionRecordBridgeContact,
	ActionGraduate,
	ActionRecordGraduationStep,
	ActionAddNote,
	ActionManageUsers,
	ActionManageShifts,
	ActionManageMeetings,
	ActionAssignTasks,
	ActionManageAllTasks,
	ActionImpersonate,
	ActionCreateParticipant,
	ActionViewStats,
	ActionPublishSchedule,
}

var permissions = map[model.Role][]Action{
	model.RoleAdmin: AllActions,
	model.RoleBridgeTeamLeader: {
		ActionBulkMoveToMentorship,
		ActionRecordBridgeContact,
		ActionAddNote,
		ActionAssignTasks,
		ActionCreateParticipant,
		ActionViewStats,
		ActionManageMeetings,
	},
	model.RoleBridgeTeam: {
		ActionRecordBridgeContact,
		ActionAddNote,
		ActionCreateParticipant,
	},
	model.RoleMentorshipLeader: {
		ActionAssignMentor,
		ActionGraduate,
		ActionRecordGraduationStep,
		ActionAddNote,
		ActionAssignTasks,
		ActionViewStats,
		ActionManageMeetings,
	},
	model.RoleMentor: {
		ActionRecordGraduationStep,
		ActionAddNote,
	},
	model.RoleVolunteerSupport: {
		ActionManageShifts,
		ActionPublishSchedule,
	},
	model.RoleVolunteer: {},
}

// Can reports whether any of roles grants action
func Can(roles []model.Role, action Action) bool {
	for _, role := range roles {
		for _, a := range permissions[role] {
			if a == action {
				return true
			}
		}
	}
	return false
}

// UserCan checks action against the user's effective roles
func UserCan(user model.User, action Action) bool {
	return Can(user.EffectiveRoles(), action)
}

// Permissions lists the actions granted to roles, in AllActions order
func Permissions(roles []model.Role) []Action {
	var granted []Action
	for _, a := range AllActions {
		if Can(roles, a) {
			granted = append(granted, a)
		}
	}
	return granted
}
