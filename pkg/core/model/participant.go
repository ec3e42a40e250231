package model

import (
	"slices"
	"time"
)

// DateLayout is the storage format for date-only fields
const DateLayout = "2006-01-02"

type Status string

const (
	StatusPendingBridge    Status = "pending_bridge"
	StatusBridgeContacted  Status = "bridge_contacted"
	StatusBridgeAttempted  Status = "bridge_attempted"
	StatusBridgeUnable     Status = "bridge_unable"
	StatusPendingMentor    Status = "pending_mentor"
	StatusActiveMentorship Status = "active_mentorship"
	StatusGraduated        Status = "graduated"
	StatusCeasedContact    Status = "ceased_contact"
)

// AllStatuses lists every participant status in pipeline order
var AllStatuses = []Status{
	StatusPendingBridge,
	StatusBridgeContacted,
	StatusBridgeAttempted,
	StatusBridgeUnable,
	StatusPendingMentor,
	StatusActiveMentorship,
	StatusGraduated,
	StatusCeasedContact,
}

// BridgeStatuses are the statuses handled by the bridge team
var BridgeStatuses = []Status{
	StatusPendingBridge,
	StatusBridgeContacted,
	StatusBridgeAttempted,
	StatusBridgeUnable,
}

func (s Status) IsValid() bool {
	for _, status := range AllStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsBridgeStage reports whether the status is one of the bridge team statuses
func (s Status) IsBridgeStage() bool {
	for _, status := range BridgeStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// HasStatus reports whether status appears in statuses
func HasStatus(statuses []Status, status Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// RequiresMentor reports whether a participant in this status must have an assigned mentor
func (s Status) RequiresMentor() bool {
	return s == StatusActiveMentorship || s == StatusGraduated
}

// IsTerminal reports whether no further transitions leave this status
func (s Status) IsTerminal() bool {
	return s == StatusGraduated || s == StatusCeasedContact
}

type HistoryType string

const (
	HistoryCreated        HistoryType = "created"
	HistoryStatusChange   HistoryType = "status_change"
	HistoryMentorAssigned HistoryType = "mentor_assigned"
	HistoryNoteAdded      HistoryType = "note_added"
	HistoryContactAttempt HistoryType = "contact_attempt"
	HistoryGraduationStep HistoryType = "graduation_step"
)

// HistoryEntry is a single append-only audit record on a participant
type HistoryEntry struct {
	ID          string      `json:"id"`
	Type        HistoryType `json:"type"`
	Description string      `json:"description"`
	CreatedAt   time.Time   `json:"createdAt"`
	ActorID     string      `json:"actorId,omitempty"`
	ActorName   string      `json:"actorName,omitempty"`
}

// Participant is a program client moving through the bridge and mentorship pipeline
type Participant struct {
	ID                       string         `json:"id"`
	ParticipantNumber        int            `json:"participantNumber"`
	FirstName                string         `json:"firstName" validate:"required"`
	LastName                 string         `json:"lastName" validate:"required"`
	DateOfBirth              string         `json:"dateOfBirth" validate:"required,datetime=2006-01-02"`
	Gender                   string         `json:"gender"`
	PhoneNumber              string         `json:"phoneNumber,omitempty"`
	Email                    string         `json:"email,omitempty" validate:"omitempty,email"`
	ReleaseDate              string         `json:"releaseDate" validate:"required,datetime=2006-01-02"`
	ReleasedFrom             string         `json:"releasedFrom" validate:"required"`
	Status                   Status         `json:"status"`
	SubmittedAt              time.Time      `json:"submittedAt"`
	MovedToBridgeAt          *time.Time     `json:"movedToBridgeAt,omitempty"`
	MovedToMentorshipAt      *time.Time     `json:"movedToMentorshipAt,omitempty"`
	AssignedToMentorAt       *time.Time     `json:"assignedToMentorAt,omitempty"`
	AssignedMentor           string         `json:"assignedMentor,omitempty"`
	CompletedGraduationSteps []string       `json:"completedGraduationSteps"`
	Notes                    []string       `json:"notes"`
	History                  []HistoryEntry `json:"history"`
	Version                  int64          `json:"version"`
}

// Clone returns a deep copy so callers can mutate without touching shared snapshots
func (p Participant) Clone() Participant {
	c := p
	c.MovedToBridgeAt = cloneTime(p.MovedToBridgeAt)
	c.MovedToMentorshipAt = cloneTime(p.MovedToMentorshipAt)
	c.AssignedToMentorAt = cloneTime(p.AssignedToMentorAt)
	c.CompletedGraduationSteps = slices.Clone(p.CompletedGraduationSteps)
	c.Notes = slices.Clone(p.Notes)
	c.History = slices.Clone(p.History)
	return c
}

// FullName joins first and last name
func (p Participant) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// Age returns whole years since date of birth, or 0 if the date cannot be parsed
func (p Participant) Age(now time.Time) int {
	dob, err := time.Parse(DateLayout, p.DateOfBirth)
	if err != nil {
		return 0
	}
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// TimeOut returns whole days since release, or 0 if the release date is unknown or in the future
func (p Participant) TimeOut(now time.Time) int {
	released, err := time.Parse(DateLayout, p.ReleaseDate)
	if err != nil {
		return 0
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	days := int(today.Sub(released).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// ParticipantView is the serialised form of a participant with derived fields computed at a point in time
type ParticipantView struct {
	Participant
	Age     int `json:"age"`
	TimeOut int `json:"timeOut"`
}

// View computes the derived fields as of now
func (p Participant) View(now time.Time) ParticipantView {
	return ParticipantView{
		Participant: p,
		Age:         p.Age(now),
		TimeOut:     p.TimeOut(now),
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
