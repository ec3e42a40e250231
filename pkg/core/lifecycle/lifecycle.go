// Package lifecycle holds the participant status transition rules. Functions here are pure:
// they take a participant value and return an updated copy, never touching storage.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jakechorley/mentor-bridge/pkg/core/model"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrMentorRequired    = errors.New("mentor is required")
	ErrUnknownStep       = errors.New("unknown graduation step")
	ErrEmptyNote         = errors.New("note is empty")
)

type Transition string

const (
	RecordContact    Transition = "record_contact"
	RecordAttempt    Transition = "record_attempt"
	MarkUnable       Transition = "mark_unable"
	MoveToMentorship Transition = "move_to_mentorship"
	ReturnToBridge   Transition = "return_to_bridge"
	AssignMentor     Transition = "assign_mentor"
	ReassignMentor   Transition = "reassign_mentor"
	Graduate         Transition = "graduate"
	CeaseContact     Transition = "cease_contact"
)

// Actor identifies who performed a change, for the history trail
type Actor struct {
	ID   string
	Name string
}

// Request describes one transition to apply
type Request struct {
	Transition Transition
	Actor      Actor
	At         time.Time
	// MentorID and MentorName are required by AssignMentor and ReassignMentor
	MentorID   string
	MentorName string
}

type rule struct {
	from    []model.Status
	to      model.Status
	history model.HistoryType
}

var rules = map[Transition]rule{
	RecordContact: {
		from:    []model.Status{model.StatusPendingBridge, model.StatusBridgeAttempted},
		to:      model.StatusBridgeContacted,
		history: model.HistoryStatusChange,
	},
	RecordAttempt: {
		from:    []model.Status{model.StatusPendingBridge, model.StatusBridgeContacted, model.StatusBridgeAttempted},
		to:      model.StatusBridgeAttempted,
		history: model.HistoryContactAttempt,
	},
	MarkUnable: {
		from:    []model.Status{model.StatusPendingBridge, model.StatusBridgeContacted, model.StatusBridgeAttempted},
		to:      model.StatusBridgeUnable,
		history: model.HistoryStatusChange,
	},
	MoveToMentorship: {
		from:    model.BridgeStatuses,
		to:      model.StatusPendingMentor,
		history: model.HistoryStatusChange,
	},
	ReturnToBridge: {
		from:    []model.Status{model.StatusPendingMentor},
		to:      model.StatusPendingBridge,
		history: model.HistoryStatusChange,
	},
	AssignMentor: {
		from:    []model.Status{model.StatusPendingMentor},
		to:      model.StatusActiveMentorship,
		history: model.HistoryStatusChange,
	},
	ReassignMentor: {
		from:    []model.Status{model.StatusActiveMentorship},
		to:      model.StatusActiveMentorship,
		history: model.HistoryMentorAssigned,
	},
	Graduate: {
		from:    []model.Status{model.StatusActiveMentorship},
		to:      model.StatusGraduated,
		history: model.HistoryStatusChange,
	},
	CeaseContact: {
		from:    model.BridgeStatuses,
		to:      model.StatusCeasedContact,
		history: model.HistoryStatusChange,
	},
}

// Transitions lists every known transition
func Transitions() []Transition {
	return []Transition{
		RecordContact, RecordAttempt, MarkUnable, MoveToMentorship, ReturnToBridge,
		AssignMentor, ReassignMentor, Graduate, CeaseContact,
	}
}

// ParseTransition validates a transition name from user input
func ParseTransition(s string) (Transition, error) {
	t := Transition(strings.TrimSpace(strings.ToLower(s)))
	if _, ok := rules[t]; !ok {
		return "", fmt.Errorf("unknown transition %q", s)
	}
	return t, nil
}

// CanApply reports whether t is allowed from status
func CanApply(t Transition, from model.Status) bool {
	r, ok := rules[t]
	if !ok {
		return false
	}
	for _, s := range r.from {
		if s == from {
			return true
		}
	}
	return false
}

// Target returns the status a transition ends in
func Target(t Transition) (model.Status, bool) {
	r, ok := rules[t]
	return r.to, ok
}

// Apply returns a copy of p with the transition applied and exactly one history entry appended.
// On error p is returned unchanged.
func Apply(p model.Participant, req Request) (model.Participant, error) {
	r, ok := rules[req.Transition]
	if !ok {
		return p, fmt.Errorf("%w: unknown transition %q", ErrInvalidTransition, req.Transition)
	}
	if !CanApply(req.Transition, p.Status) {
		return p, fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, req.Transition, p.Status)
	}

	needsMentor := req.Transition == AssignMentor || req.Transition == ReassignMentor
	if needsMentor && req.MentorID == "" {
		return p, ErrMentorRequired
	}
	if req.Transition == ReassignMentor && req.MentorID == p.AssignedMentor {
		return p, fmt.Errorf("%w: participant is already assigned to %s", ErrInvalidTransition, req.MentorID)
	}

	at := req.At.UTC()
	next := p.Clone()
	from := next.Status
	next.Status = r.to

	var description string
	switch req.Transition {
	case MoveToMentorship:
		next.MovedToMentorshipAt = &at
		description = statusChangeDescription(from, r.to)
	case ReturnToBridge:
		next.MovedToBridgeAt = &at
		description = statusChangeDescription(from, r.to)
	case AssignMentor:
		next.AssignedMentor = req.MentorID
		next.AssignedToMentorAt = &at
		description = fmt.Sprintf("%s; assigned to mentor %s", statusChangeDescription(from, r.to), mentorLabel(req))
	case ReassignMentor:
		previous := next.AssignedMentor
		next.AssignedMentor = req.MentorID
		next.AssignedToMentorAt = &at
		description = fmt.Sprintf("Mentor changed from %s to %s", previous, mentorLabel(req))
	case RecordAttempt:
		description = "Contact attempted"
		if from != r.to {
			description = fmt.Sprintf("Contact attempted; %s", statusChangeDescription(from, r.to))
		}
	default:
		description = statusChangeDescription(from, r.to)
	}

	appendHistory(&next, r.history, description, req.Actor, at)

	if err := CheckInvariants(next); err != nil {
		return p, err
	}
	return next, nil
}

// New prepares a freshly submitted participant: status pending_bridge with a created entry
func New(p model.Participant, actor Actor, at time.Time) model.Participant {
	at = at.UTC()
	next := p.Clone()
	next.Status = model.StatusPendingBridge
	next.AssignedMentor = ""
	next.SubmittedAt = at
	next.MovedToBridgeAt = &at
	next.History = nil
	if next.CompletedGraduationSteps == nil {
		next.CompletedGraduationSteps = []string{}
	}
	if next.Notes == nil {
		next.Notes = []string{}
	}
	appendHistory(&next, model.HistoryCreated, "Participant submitted", actor, at)
	return next
}

// AddNote appends a note and a note_added history entry
func AddNote(p model.Participant, note string, actor Actor, at time.Time) (model.Participant, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return p, ErrEmptyNote
	}
	next := p.Clone()
	next.Notes = append(next.Notes, note)
	appendHistory(&next, model.HistoryNoteAdded, note, actor, at.UTC())
	return next, nil
}

// CompleteGraduationStep records step for a participant in active mentorship.
// Completing an already-completed step returns p unchanged with changed=false.
func CompleteGraduationStep(p model.Participant, step string, allowed []string, actor Actor, at time.Time) (next model.Participant, changed bool, err error) {
	known := false
	for _, s := range allowed {
		if s == step {
			known = true
			break
		}
	}
	if !known {
		return p, false, fmt.Errorf("%w: %q", ErrUnknownStep, step)
	}
	if p.Status != model.StatusActiveMentorship {
		return p, false, fmt.Errorf("%w: graduation steps require active mentorship, participant is %s", ErrInvalidTransition, p.Status)
	}
	for _, s := range p.CompletedGraduationSteps {
		if s == step {
			return p, false, nil
		}
	}

	next = p.Clone()
	next.CompletedGraduationSteps = append(next.CompletedGraduationSteps, step)
	appendHistory(&next, model.HistoryGraduationStep, fmt.Sprintf("Completed graduation step: %s", step), actor, at.UTC())
	return next, true, nil
}

// CheckInvariants validates the status/mentor pairing
func CheckInvariants(p model.Participant) error {
	if !p.Status.IsValid() {
		return fmt.Errorf("invalid status %q", p.Status)
	}
	if p.Status.RequiresMentor() && p.AssignedMentor == "" {
		return fmt.Errorf("status %s requires an assigned mentor", p.Status)
	}
	if !p.Status.RequiresMentor() && p.AssignedMentor != "" {
		return fmt.Errorf("status %s must not have an assigned mentor", p.Status)
	}
	return nil
}

// appendHistory adds an entry whose createdAt is strictly after every earlier entry
func appendHistory(p *model.Participant, t model.HistoryType, description string, actor Actor, at time.Time) {
	if n := len(p.History); n > 0 {
		last := p.History[n-1].CreatedAt
		if !at.After(last) {
			at = last.Add(time.Millisecond)
		}
	}
	p.History = append(p.History, model.HistoryEntry{
		ID:          uuid.New().String(),
		Type:        t,
		Description: description,
		CreatedAt:   at,
		ActorID:     actor.ID,
		ActorName:   actor.Name,
	})
}

func statusChangeDescription(from, to model.Status) string {
	return fmt.Sprintf("Status changed from %s to %s", StatusLabel(from), StatusLabel(to))
}

func mentorLabel(req Request) string {
	if req.MentorName != "" {
		return req.MentorName
	}
	return req.MentorID
}

// StatusLabel renders a status for people, e.g. "Pending Mentor"
func StatusLabel(s model.Status) string {
	words := strings.Split(string(s), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
