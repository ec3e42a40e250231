package model

import (
	"slices"
	"time"
)

// ShiftAssignment records one user on a shift roster
type ShiftAssignment struct {
	UserID     string    `json:"userId"`
	UserName   string    `json:"userName"`
	AssignedAt time.Time `json:"assignedAt"`
}

// Shift is a schedulable time slot volunteers sign up for
type Shift struct {
	ID               string            `json:"id"`
	Title            string            `json:"title" validate:"required"`
	Description      string            `json:"description,omitempty"`
	Start            time.Time         `json:"start" validate:"required"`
	End              time.Time         `json:"end" validate:"required,gtfield=Start"`
	Location         string            `json:"location,omitempty"`
	MaxVolunteers    *int              `json:"maxVolunteers,omitempty" validate:"omitempty,min=1"`
	AllowedRoles     []Role            `json:"allowedRoles,omitempty"`
	AssignedUsers    []ShiftAssignment `json:"assignedUsers"`
	RecurringGroupID string            `json:"recurringGroupId,omitempty"`
	CreatedBy        string            `json:"createdBy"`
	Version          int64             `json:"version"`
}

// IsAssigned reports whether userID is already on the roster
func (s Shift) IsAssigned(userID string) bool {
	for _, a := range s.AssignedUsers {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

// RemainingCapacity returns free places, or -1 when the shift is unbounded
func (s Shift) RemainingCapacity() int {
	if s.MaxVolunteers == nil {
		return -1
	}
	remaining := *s.MaxVolunteers - len(s.AssignedUsers)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clone returns a deep copy
func (s Shift) Clone() Shift {
	c := s
	if s.MaxVolunteers != nil {
		max := *s.MaxVolunteers
		c.MaxVolunteers = &max
	}
	c.AllowedRoles = slices.Clone(s.AllowedRoles)
	c.AssignedUsers = slices.Clone(s.AssignedUsers)
	return c
}

type RSVP string

const (
	RSVPPending RSVP = "pending"
	RSVPYes     RSVP = "yes"
	RSVPNo      RSVP = "no"
	RSVPMaybe   RSVP = "maybe"
)

func (r RSVP) IsValid() bool {
	return r == RSVPPending || r == RSVPYes || r == RSVPNo || r == RSVPMaybe
}

// MeetingInvitee is a user invited to a meeting with their response
type MeetingInvitee struct {
	UserID      string     `json:"userId"`
	UserName    string     `json:"userName"`
	RSVP        RSVP       `json:"rsvp"`
	RespondedAt *time.Time `json:"respondedAt,omitempty"`
}

// Meeting is a scheduled gathering with an invitee list
type Meeting struct {
	ID               string           `json:"id"`
	Title            string           `json:"title" validate:"required"`
	Description      string           `json:"description,omitempty"`
	Start            time.Time        `json:"start" validate:"required"`
	End              time.Time        `json:"end" validate:"required,gtfield=Start"`
	Location         string           `json:"location,omitempty"`
	AllowedRoles     []Role           `json:"allowedRoles,omitempty"`
	Invitees         []MeetingInvitee `json:"invitees"`
	RecurringGroupID string           `json:"recurringGroupId,omitempty"`
	CreatedBy        string           `json:"createdBy"`
	Version          int64            `json:"version"`
}

// Clone returns a deep copy
func (m Meeting) Clone() Meeting {
	c := m
	c.AllowedRoles = slices.Clone(m.AllowedRoles)
	c.Invitees = slices.Clone(m.Invitees)
	for i, inv := range c.Invitees {
		c.Invitees[i].RespondedAt = cloneTime(inv.RespondedAt)
	}
	return c
}
