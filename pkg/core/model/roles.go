package model

type Role string

const (
	RoleAdmin            Role = "admin"
	RoleBridgeTeamLeader Role = "bridge_team_leader"
	RoleBridgeTeam       Role = "bridge_team"
	RoleMentorshipLeader Role = "mentorship_leader"
	RoleMentor           Role = "mentor"
	RoleVolunteer        Role = "volunteer"
	RoleVolunteerSupport Role = "volunteer_support"
)

// AllRoles lists every role in display order
var AllRoles = []Role{
	RoleAdmin,
	RoleBridgeTeamLeader,
	RoleBridgeTeam,
	RoleMentorshipLeader,
	RoleMentor,
	RoleVolunteer,
	RoleVolunteerSupport,
}

func (r Role) IsValid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// IsBridge reports whether the role belongs to the bridge team track
func (r Role) IsBridge() bool {
	return r == RoleBridgeTeam || r == RoleBridgeTeamLeader
}

// HasRole reports whether role appears in roles
func HasRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
