package scheduling

import (
	"fmt"
	"strings"

	"github.com/jakechorley/mentor-bridge/pkg/core/model"
)

// Violation describes an existing roster that breaks a rule
type Violation struct {
	ShiftID     string
	ShiftStart  string
	RuleName    string
	Description string
}

// SignUpRule decides whether a user may join a shift's roster
type SignUpRule interface {
	// Name returns a human-readable identifier for this rule
	Name() string

	// Allows acts as a veto: if ANY rule returns false the sign-up is refused.
	// The string explains the refusal.
	Allows(shift model.Shift, user model.User) (bool, string)

	// ValidateRoster checks an existing roster, for data written before the rule applied.
	// users resolves assigned user ids; unknown ids are skipped.
	ValidateRoster(shift model.Shift, users map[string]model.User) []Violation
}

// DefaultRules are applied when a caller passes no rules
func DefaultRules() []SignUpRule {
	return []SignUpRule{
		NoDoubleAssignmentRule{},
		CapacityRule{},
		AllowedRolesRule{},
	}
}

func violation(shift model.Shift, rule SignUpRule, description string) Violation {
	return Violation{
		ShiftID:     shift.ID,
		ShiftStart:  shift.Start.Format("2006-01-02 15:04"),
		RuleName:    rule.Name(),
		Description: description,
	}
}

// CapacityRule prevents overfilling a shift with maxVolunteers set
type CapacityRule struct{}

func (CapacityRule) Name() string {
	return "Capacity"
}

func (CapacityRule) Allows(shift model.Shift, user model.User) (bool, string) {
	if shift.RemainingCapacity() == 0 {
		return false, fmt.Sprintf("shift is full (%d/%d)", len(shift.AssignedUsers), *shift.MaxVolunteers)
	}
	return true, ""
}

func (r CapacityRule) ValidateRoster(shift model.Shift, users map[string]model.User) []Violation {
	if shift.MaxVolunteers == nil || len(shift.AssignedUsers) <= *shift.MaxVolunteers {
		return nil
	}
	return []Violation{violation(shift, r, fmt.Sprintf("%d volunteers assigned, maximum is %d", len(shift.AssignedUsers), *shift.MaxVolunteers))}
}

// NoDoubleAssignmentRule prevents a user appearing twice on one roster
type NoDoubleAssignmentRule struct{}

func (NoDoubleAssignmentRule) Name() string {
	return "NoDoubleAssignment"
}

func (NoDoubleAssignmentRule) Allows(shift model.Shift, user model.User) (bool, string) {
	if shift.IsAssigned(user.ID) {
		return false, "already signed up for this shift"
	}
	return true, ""
}

func (r NoDoubleAssignmentRule) ValidateRoster(shift model.Shift, users map[string]model.User) []Violation {
	var violations []Violation
	seen := make(map[string]bool, len(shift.AssignedUsers))
	for _, a := range shift.AssignedUsers {
		if seen[a.UserID] {
			violations = append(violations, violation(shift, r, fmt.Sprintf("%s is assigned more than once", a.UserID)))
		}
		seen[a.UserID] = true
	}
	return violations
}

// AllowedRolesRule limits a shift to users holding one of its allowedRoles. An empty list allows everyone.
type AllowedRolesRule struct{}

func (AllowedRolesRule) Name() string {
	return "AllowedRoles"
}

func roleAllowed(shift model.Shift, user model.User) bool {
	if len(shift.AllowedRoles) == 0 {
		return true
	}
	for _, role := range shift.AllowedRoles {
		if user.HasRole(role) {
			return true
		}
	}
	return false
}

func joinRoles(roles []model.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}

func (AllowedRolesRule) Allows(shift model.Shift, user model.User) (bool, string) {
	if !roleAllowed(shift, user) {
		return false, fmt.Sprintf("shift is limited to %s", joinRoles(shift.AllowedRoles))
	}
	return true, ""
}

func (r AllowedRolesRule) ValidateRoster(shift model.Shift, users map[string]model.User) []Violation {
	var violations []Violation
	for _, a := range shift.AssignedUsers {
		user, ok := users[a.UserID]
		if !ok {
			continue
		}
		if !roleAllowed(shift, user) {
			violations = append(violations, violation(shift, r, fmt.Sprintf("%s does not hold an allowed role", user.Name)))
		}
	}
	return violations
}
