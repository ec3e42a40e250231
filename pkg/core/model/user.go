package model

import (
	"slices"
	"strings"
	"time"
)

// User is a staff or volunteer account
type User struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name" validate:"required"`
	Nickname               string    `json:"nickname,omitempty"`
	Email                  string    `json:"email" validate:"required,email"`
	Role                   Role      `json:"role" validate:"required"`
	Roles                  []Role    `json:"roles,omitempty"`
	Phone                  string    `json:"phone,omitempty"`
	PasswordHash           string    `json:"-"`
	RequiresPasswordChange bool      `json:"requiresPasswordChange"`
	CreatedAt              time.Time `json:"createdAt"`
	Version                int64     `json:"version"`
}

// EffectiveRoles returns the primary role followed by any distinct secondary grants
func (u User) EffectiveRoles() []Role {
	roles := []Role{u.Role}
	for _, r := range u.Roles {
		if !HasRole(roles, r) {
			roles = append(roles, r)
		}
	}
	return roles
}

// HasRole reports whether the user holds role as primary or secondary grant
func (u User) HasRole(role Role) bool {
	return HasRole(u.EffectiveRoles(), role)
}

// DisplayName prefers the nickname when one is set
func (u User) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Name
}

// Clone returns a deep copy
func (u User) Clone() User {
	c := u
	c.Roles = slices.Clone(u.Roles)
	return c
}

// NormalizeEmail lower-cases and trims an email so lookups are case-insensitive
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
