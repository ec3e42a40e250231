package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/mentor-bridge/pkg/core/model"
)

var (
	t0    = time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)
	admin = Actor{ID: "admin-1", Name: "Alex Admin"}
)

func participantIn(status model.Status) model.Participant {
	p := model.Participant{
		ID:          "p-1",
		FirstName:   "Sam",
		LastName:    "Jones",
		Status:      status,
		SubmittedAt: t0,
		History: []model.HistoryEntry{
			{ID: "h-0", Type: model.HistoryCreated, Description: "Participant submitted", CreatedAt: t0},
		},
	}
	if status.RequiresMentor() {
		p.AssignedMentor = "mentor-1"
	}
	return p
}

func TestCanApply_Table(t *testing.T) {
	tests := []struct {
		transition Transition
		allowed    []model.Status
	}{
		{RecordContact, []model.Status{model.StatusPendingBridge, model.StatusBridgeAttempted}},
		{RecordAttempt, []model.Status{model.StatusPendingBridge, model.StatusBridgeContacted, model.StatusBridgeAttempted}},
		{MarkUnable, []model.Status{model.StatusPendingBridge, model.StatusBridgeContacted, model.StatusBridgeAttempted}},
		{MoveToMentorship, model.BridgeStatuses},
		{ReturnToBridge, []model.Status{model.StatusPendingMentor}},
		{AssignMentor, []model.Status{model.StatusPendingMentor}},
		{ReassignMentor, []model.Status{model.StatusActiveMentorship}},
		{Graduate, []model.Status{model.StatusActiveMentorship}},
		{CeaseContact, model.BridgeStatuses},
	}

	for _, tt := range tests {
		t.Run(string(tt.transition), func(t *testing.T) {
			for _, status := range model.AllStatuses {
				assert.Equal(t, model.HasStatus(tt.allowed, status), CanApply(tt.transition, status), "from %s", status)
			}
		})
	}

	assert.False(t, CanApply("teleport", model.StatusPendingBridge))
}

func TestApply_MoveToMentorship(t *testing.T) {
	for _, from := range model.BridgeStatuses {
		t.Run(string(from), func(t *testing.T) {
			p := participantIn(from)
			next, err := Apply(p, Request{Transition: MoveToMentorship, Actor: admin, At: t0.Add(time.Hour)})
			require.NoError(t, err)

			assert.Equal(t, model.StatusPendingMentor, next.Status)
			require.NotNil(t, next.MovedToMentorshipAt)
			assert.Equal(t, t0.Add(time.Hour), *next.MovedToMentorshipAt)
			require.Len(t, next.History, len(p.History)+1)

			entry := next.History[len(next.History)-1]
			assert.Equal(t, model.HistoryStatusChange, entry.Type)
			assert.Equal(t, "admin-1", entry.ActorID)
			assert.Equal(t, "Alex Admin", entry.ActorName)
			assert.NotEmpty(t, entry.ID)
		})
	}
}

func TestApply_InvalidSourceLeavesRecordUntouched(t *testing.T) {
	for _, from := range []model.Status{model.StatusPendingMentor, model.StatusActiveMentorship, model.StatusGraduated, model.StatusCeasedContact} {
		t.Run(string(from), func(t *testing.T) {
			p := participantIn(from)
			before := p.Clone()

			next, err := Apply(p, Request{Transition: MoveToMentorship, Actor: admin, At: t0})
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, before, next)
			assert.Equal(t, before, p)
		})
	}
}

func TestApply_AssignMentor(t *testing.T) {
	p := participantIn(model.StatusPendingMentor)

	_, err := Apply(p, Request{Transition: AssignMentor, Actor: admin, At: t0})
	assert.ErrorIs(t, err, ErrMentorRequired)

	next, err := Apply(p, Request{Transition: AssignMentor, Actor: admin, At: t0.Add(time.Minute), MentorID: "m-7", MentorName: "Morgan"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusActiveMentorship, next.Status)
	assert.Equal(t, "m-7", next.AssignedMentor)
	require.NotNil(t, next.AssignedToMentorAt)
	assert.Contains(t, next.History[len(next.History)-1].Description, "Morgan")
	assert.Empty(t, p.AssignedMentor)
}

func TestApply_ReassignMentor(t *testing.T) {
	p := participantIn(model.StatusActiveMentorship)

	_, err := Apply(p, Request{Transition: ReassignMentor, Actor: admin, At: t0, MentorID: "mentor-1"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	next, err := Apply(p, Request{Transition: ReassignMentor, Actor: admin, At: t0.Add(time.Hour), MentorID: "mentor-2"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusActiveMentorship, next.Status)
	assert.Equal(t, "mentor-2", next.AssignedMentor)
	assert.Equal(t, model.HistoryMentorAssigned, next.History[len(next.History)-1].Type)
}

func TestApply_RecordAttemptUsesContactAttemptEntry(t *testing.T) {
	p := participantIn(model.StatusBridgeAttempted)
	next, err := Apply(p, Request{Transition: RecordAttempt, Actor: admin, At: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, model.StatusBridgeAttempted, next.Status)
	assert.Equal(t, model.HistoryContactAttempt, next.History[len(next.History)-1].Type)
}

func TestApply_GraduateKeepsMentor(t *testing.T) {
	p := participantIn(model.StatusActiveMentorship)
	next, err := Apply(p, Request{Transition: Graduate, Actor: admin, At: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, model.StatusGraduated, next.Status)
	assert.Equal(t, "mentor-1", next.AssignedMentor)
	assert.NoError(t, CheckInvariants(next))
}

func TestApply_HistoryTimestampsStrictlyIncrease(t *testing.T) {
	p := participantIn(model.StatusPendingBridge)

	// Same instant as the created entry, and then again for the next transition
	moved, err := Apply(p, Request{Transition: MoveToMentorship, Actor: admin, At: t0})
	require.NoError(t, err)
	assigned, err := Apply(moved, Request{Transition: AssignMentor, Actor: admin, At: t0, MentorID: "m-1"})
	require.NoError(t, err)

	require.Len(t, assigned.History, 3)
	for i := 1; i < len(assigned.History); i++ {
		assert.True(t, assigned.History[i].CreatedAt.After(assigned.History[i-1].CreatedAt),
			"entry %d not after entry %d", i, i-1)
	}
}

func TestNew(t *testing.T) {
	p := New(model.Participant{ID: "p-9", FirstName: "Jo", Status: model.StatusGraduated, AssignedMentor: "x"}, admin, t0)

	assert.Equal(t, model.StatusPendingBridge, p.Status)
	assert.Empty(t, p.AssignedMentor)
	assert.Equal(t, t0, p.SubmittedAt)
	require.NotNil(t, p.MovedToBridgeAt)
	require.Len(t, p.History, 1)
	assert.Equal(t, model.HistoryCreated, p.History[0].Type)
	assert.NotNil(t, p.Notes)
	assert.NotNil(t, p.CompletedGraduationSteps)
}

func TestAddNote(t *testing.T) {
	p := participantIn(model.StatusBridgeContacted)

	_, err := AddNote(p, "   ", admin, t0)
	assert.ErrorIs(t, err, ErrEmptyNote)

	next, err := AddNote(p, "Called probation officer", admin, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"Called probation officer"}, next.Notes)
	assert.Equal(t, model.HistoryNoteAdded, next.History[len(next.History)-1].Type)
	assert.Empty(t, p.Notes)
}

func TestCompleteGraduationStep(t *testing.T) {
	steps := []string{"housing", "employment"}
	p := participantIn(model.StatusActiveMentorship)

	_, _, err := CompleteGraduationStep(p, "lottery", steps, admin, t0)
	assert.ErrorIs(t, err, ErrUnknownStep)

	_, _, err = CompleteGraduationStep(participantIn(model.StatusPendingMentor), "housing", steps, admin, t0)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	next, changed, err := CompleteGraduationStep(p, "housing", steps, admin, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"housing"}, next.CompletedGraduationSteps)

	again, changed, err := CompleteGraduationStep(next, "housing", steps, admin, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, len(next.History), len(again.History))
}

func TestParseTransition(t *testing.T) {
	tr, err := ParseTransition(" Move_To_Mentorship ")
	require.NoError(t, err)
	assert.Equal(t, MoveToMentorship, tr)

	_, err = ParseTransition("promote")
	assert.Error(t, err)
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "Pending Mentor", StatusLabel(model.StatusPendingMentor))
	assert.Equal(t, "Graduated", StatusLabel(model.StatusGraduated))
}
