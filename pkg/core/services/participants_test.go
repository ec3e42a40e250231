package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/mentor-bridge/internal/config"
	"github.com/jakechorley/mentor-bridge/pkg/core/lifecycle"
	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/core/visibility"
	"github.com/jakechorley/mentor-bridge/pkg/db"
	"github.com/jakechorley/mentor-bridge/pkg/memdb"
)

func validIntake() ParticipantInput {
	return ParticipantInput{
		FirstName:    " Alex ",
		LastName:     "Smith",
		DateOfBirth:  "1988-02-14",
		Gender:       "male",
		ReleaseDate:  "2025-02-01",
		ReleasedFrom: "HMP Brixton",
	}
}

func TestCreateParticipant(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	staff := seedUser(t, store, "bt-1", model.RoleBridgeTeam)

	p, err := CreateParticipant(ctx, store, zap.NewNop(), validIntake(), actorOf(staff))
	require.NoError(t, err)

	assert.Equal(t, "Alex", p.FirstName)
	assert.Equal(t, model.StatusPendingBridge, p.Status)
	assert.Equal(t, 1, p.ParticipantNumber)
	assert.Empty(t, p.AssignedMentor)
	require.Len(t, p.History, 1)
	assert.Equal(t, model.HistoryCreated, p.History[0].Type)
	assert.Equal(t, staff.ID, p.History[0].ActorID)

	stored, err := store.GetParticipant(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, stored.ID)
}

func TestCreateParticipant_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*ParticipantInput)
	}{
		{"missing first name", func(in *ParticipantInput) { in.FirstName = "  " }},
		{"bad date of birth", func(in *ParticipantInput) { in.DateOfBirth = "14/02/1988" }},
		{"missing release date", func(in *ParticipantInput) { in.ReleaseDate = "" }},
		{"bad email", func(in *ParticipantInput) { in.Email = "not-an-email" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore()
			input := validIntake()
			tt.modify(&input)

			_, err := CreateParticipant(ctx, store, zap.NewNop(), input, lifecycle.Actor{ID: "u-1"})
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)

			all, err := store.GetParticipants(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestBulkMoveToMentorship(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	mentor := seedUser(t, store, "mentor-1", model.RoleMentor)

	seeded := map[string]model.Participant{}
	for _, status := range model.AllStatuses {
		mentorID := ""
		if status.RequiresMentor() {
			mentorID = mentor.ID
		}
		seeded[string(status)] = seedParticipant(t, store, string(status), status, mentorID)
	}

	ids := make([]string, 0, len(model.AllStatuses)+1)
	for _, status := range model.AllStatuses {
		ids = append(ids, string(status))
	}
	ids = append(ids, "missing")

	outcomes := BulkMoveToMentorship(ctx, store, testCfg, zap.NewNop(), ids, lifecycle.Actor{ID: "leader-1"})
	require.Len(t, outcomes, len(ids))

	for i, outcome := range outcomes {
		assert.Equal(t, ids[i], outcome.ID)
	}

	for _, status := range model.AllStatuses {
		outcome := outcomes[indexOf(ids, string(status))]
		stored, err := store.GetParticipant(ctx, string(status))
		require.NoError(t, err)

		if status.IsBridgeStage() {
			assert.Equal(t, BulkMoved, outcome.Result, status)
			assert.Equal(t, model.StatusPendingMentor, stored.Status)
			assert.NotNil(t, stored.MovedToMentorshipAt)
			assert.Len(t, stored.History, len(seeded[string(status)].History)+1)
		} else {
			assert.Equal(t, BulkSkipped, outcome.Result, status)
			assert.ErrorIs(t, outcome.Err, lifecycle.ErrInvalidTransition)
			assert.Equal(t, seeded[string(status)].Version, stored.Version, "skipped participants are not written")
			assert.Equal(t, status, stored.Status)
		}
	}

	missing := outcomes[len(outcomes)-1]
	assert.Equal(t, BulkFailed, missing.Result)
	assert.ErrorIs(t, missing.Err, db.ErrNotFound)

	counts := CountResults(outcomes)
	assert.Equal(t, 4, counts[BulkMoved])
	assert.Equal(t, 4, counts[BulkSkipped])
	assert.Equal(t, 1, counts[BulkFailed])
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func TestBulkAssignToMentor(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	oldMentor := seedUser(t, store, "mentor-old", model.RoleMentor)
	newMentor := seedUser(t, store, "mentor-new", model.RoleVolunteer, model.RoleMentor)

	seedParticipant(t, store, "waiting", model.StatusPendingMentor, "")
	activeOld := seedParticipant(t, store, "active-old", model.StatusActiveMentorship, oldMentor.ID)
	seedParticipant(t, store, "active-same", model.StatusActiveMentorship, newMentor.ID)
	seedParticipant(t, store, "bridge", model.StatusPendingBridge, "")

	ids := []string{"waiting", "active-old", "active-same", "bridge", "missing"}
	outcomes, err := BulkAssignToMentor(ctx, store, testCfg, zap.NewNop(), ids, newMentor.ID, lifecycle.Actor{ID: "leader-1"})
	require.NoError(t, err)
	require.Len(t, outcomes, 5)

	assert.Equal(t, BulkMoved, outcomes[0].Result)
	for _, i := range []int{1, 2, 3} {
		assert.Equal(t, BulkSkipped, outcomes[i].Result, ids[i])
		assert.ErrorIs(t, outcomes[i].Err, lifecycle.ErrInvalidTransition, ids[i])
	}
	assert.Equal(t, BulkFailed, outcomes[4].Result)
	assert.ErrorIs(t, outcomes[4].Err, db.ErrNotFound)

	waiting, err := store.GetParticipant(ctx, "waiting")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActiveMentorship, waiting.Status)
	assert.Equal(t, newMentor.ID, waiting.AssignedMentor)
	assert.NotNil(t, waiting.AssignedToMentorAt)

	untouched, err := store.GetParticipant(ctx, "active-old")
	require.NoError(t, err)
	assert.Equal(t, oldMentor.ID, untouched.AssignedMentor)
	assert.Equal(t, activeOld.Version, untouched.Version)
	assert.Len(t, untouched.History, len(activeOld.History))

	bridge, err := store.GetParticipant(ctx, "bridge")
	require.NoError(t, err)
	assert.Empty(t, bridge.AssignedMentor)
}

func TestBulkAssignToMentor_IneligibleMentorWritesNothing(t *testing.T) {
	tests := []struct {
		name     string
		mentorID string
	}{
		{"unknown mentor", "nobody"},
		{"volunteer is not a mentor", "vol-1"},
		{"empty mentor id", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore()
			seedUser(t, store, "vol-1", model.RoleVolunteer)
			seedParticipant(t, store, "waiting", model.StatusPendingMentor, "")

			outcomes, err := BulkAssignToMentor(ctx, store, testCfg, zap.NewNop(), []string{"waiting"}, tt.mentorID, lifecycle.Actor{ID: "leader-1"})
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Nil(t, outcomes)

			stored, err := store.GetParticipant(ctx, "waiting")
			require.NoError(t, err)
			assert.Equal(t, model.StatusPendingMentor, stored.Status)
			assert.Equal(t, int64(1), stored.Version)
		})
	}
}

func TestIsMentorEligible(t *testing.T) {
	assert.True(t, IsMentorEligible(model.User{Role: model.RoleMentor}))
	assert.True(t, IsMentorEligible(model.User{Role: model.RoleMentorshipLeader}))
	assert.True(t, IsMentorEligible(model.User{Role: model.RoleAdmin}))
	assert.True(t, IsMentorEligible(model.User{Role: model.RoleBridgeTeam, Roles: []model.Role{model.RoleMentor}}))
	assert.False(t, IsMentorEligible(model.User{Role: model.RoleBridgeTeam}))
	assert.False(t, IsMentorEligible(model.User{Role: model.RoleVolunteer}))
}

func TestParticipantJourney_HistoryGrowsInOrder(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	fixClock(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))

	mentor := seedUser(t, store, "mentor-1", model.RoleMentor)
	leader := seedUser(t, store, "leader-1", model.RoleMentorshipLeader)

	p, err := CreateParticipant(ctx, store, zap.NewNop(), validIntake(), actorOf(leader))
	require.NoError(t, err)

	outcomes := BulkMoveToMentorship(ctx, store, testCfg, zap.NewNop(), []string{p.ID}, actorOf(leader))
	require.Equal(t, BulkMoved, outcomes[0].Result)

	_, err = BulkAssignToMentor(ctx, store, testCfg, zap.NewNop(), []string{p.ID}, mentor.ID, actorOf(leader))
	require.NoError(t, err)

	final, err := store.GetParticipant(ctx, p.ID)
	require.NoError(t, err)

	assert.Equal(t, model.StatusActiveMentorship, final.Status)
	assert.Equal(t, mentor.ID, final.AssignedMentor)
	require.Len(t, final.History, 3)
	for i := 1; i < len(final.History); i++ {
		assert.True(t, final.History[i].CreatedAt.After(final.History[i-1].CreatedAt),
			"entry %d must be after entry %d even with a frozen clock", i, i-1)
	}
	assert.Contains(t, final.History[2].Description, mentor.DisplayName())
}

func TestMentorAssignedOnlyInMentorStatuses(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	mentor := seedUser(t, store, "mentor-1", model.RoleMentor)
	leader := seedUser(t, store, "leader-1", model.RoleAdmin)
	actor := actorOf(leader)

	var ids []string
	for i := 0; i < 6; i++ {
		p, err := CreateParticipant(ctx, store, zap.NewNop(), validIntake(), actor)
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	_, err := TransitionParticipant(ctx, store, testCfg, zap.NewNop(), ids[0], lifecycle.RecordContact, "", actor)
	require.NoError(t, err)
	_, err = TransitionParticipant(ctx, store, testCfg, zap.NewNop(), ids[1], lifecycle.CeaseContact, "", actor)
	require.NoError(t, err)

	BulkMoveToMentorship(ctx, store, testCfg, zap.NewNop(), ids, actor)
	_, err = BulkAssignToMentor(ctx, store, testCfg, zap.NewNop(), ids[:4], mentor.ID, actor)
	require.NoError(t, err)
	_, err = TransitionParticipant(ctx, store, testCfg, zap.NewNop(), ids[2], lifecycle.Graduate, "", actor)
	require.NoError(t, err)
	_, err = TransitionParticipant(ctx, store, testCfg, zap.NewNop(), ids[5], lifecycle.ReturnToBridge, "", actor)
	require.NoError(t, err)

	all, err := store.GetParticipants(ctx)
	require.NoError(t, err)
	for _, p := range all {
		hasMentor := p.AssignedMentor != ""
		assert.Equal(t, p.Status.RequiresMentor(), hasMentor, "participant %s in %s", p.ID, p.Status)
	}
}

func TestTransitionParticipant_InvalidTransitionLeavesRecord(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	seedParticipant(t, store, "p-1", model.StatusPendingBridge, "")

	_, err := TransitionParticipant(ctx, store, testCfg, zap.NewNop(), "p-1", lifecycle.Graduate, "", lifecycle.Actor{ID: "u-1"})
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	stored, err := store.GetParticipant(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.Empty(t, stored.History)
}

func TestTransitionParticipant_AssignRequiresEligibleMentor(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	seedUser(t, store, "bt-1", model.RoleBridgeTeam)
	seedParticipant(t, store, "p-1", model.StatusPendingMentor, "")

	_, err := TransitionParticipant(ctx, store, testCfg, zap.NewNop(), "p-1", lifecycle.AssignMentor, "bt-1", lifecycle.Actor{ID: "u-1"})
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

// racingStore lets another writer update the participant between the first read and write
type racingStore struct {
	*memdb.MemDB
	raced bool
	reads int
}

func (s *racingStore) GetParticipant(ctx context.Context, id string) (*model.Participant, error) {
	s.reads++
	p, err := s.MemDB.GetParticipant(ctx, id)
	if err != nil || s.raced {
		return p, err
	}
	s.raced = true

	other := p.Clone()
	other.Notes = append(other.Notes, "written concurrently")
	if err := s.MemDB.UpdateParticipant(ctx, &other); err != nil {
		return nil, err
	}
	return p, nil
}

func TestAddNote_RetriesAfterConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{MemDB: newStore()}
	seedParticipant(t, store.MemDB, "p-1", model.StatusPendingBridge, "")

	p, err := AddNote(ctx, store, testCfg, zap.NewNop(), "p-1", "called on Tuesday", lifecycle.Actor{ID: "u-1"})
	require.NoError(t, err)

	assert.Equal(t, 2, store.reads)
	assert.Equal(t, []string{"written concurrently", "called on Tuesday"}, p.Notes)
	assert.Equal(t, int64(3), p.Version)
}

// conflictingStore fails the first n updates with a version conflict
type conflictingStore struct {
	*memdb.MemDB
	conflicts int
	updates   int
}

func (s *conflictingStore) UpdateParticipant(ctx context.Context, p *model.Participant) error {
	s.updates++
	if s.conflicts > 0 {
		s.conflicts--
		return fmt.Errorf("participant %s: %w", p.ID, db.ErrVersionConflict)
	}
	return s.MemDB.UpdateParticipant(ctx, p)
}

func TestMutateParticipant_GivesUpAfterConfiguredAttempts(t *testing.T) {
	ctx := context.Background()
	store := &conflictingStore{MemDB: newStore(), conflicts: 10}
	seedParticipant(t, store.MemDB, "p-1", model.StatusPendingBridge, "")

	cfg := &config.Config{ConflictRetries: 2}
	_, err := AddNote(ctx, store, cfg, zap.NewNop(), "p-1", "note", lifecycle.Actor{ID: "u-1"})
	assert.ErrorIs(t, err, db.ErrVersionConflict)
	assert.Equal(t, 2, store.updates)

	stored, err := store.GetParticipant(ctx, "p-1")
	require.NoError(t, err)
	assert.Empty(t, stored.Notes)
}

func TestBulkMoveToMentorship_ConflictFailsOnlyThatID(t *testing.T) {
	ctx := context.Background()
	store := &conflictingStore{MemDB: newStore(), conflicts: 3}
	seedParticipant(t, store.MemDB, "p-1", model.StatusPendingBridge, "")
	seedParticipant(t, store.MemDB, "p-2", model.StatusBridgeContacted, "")

	outcomes := BulkMoveToMentorship(ctx, store, testCfg, zap.NewNop(), []string{"p-1", "p-2"}, lifecycle.Actor{ID: "u-1"})
	require.Len(t, outcomes, 2)

	assert.Equal(t, BulkFailed, outcomes[0].Result)
	assert.True(t, errors.Is(outcomes[0].Err, db.ErrVersionConflict))
	assert.Equal(t, BulkMoved, outcomes[1].Result)
}

func TestAddNote_EmptyIsRejected(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	seedParticipant(t, store, "p-1", model.StatusPendingBridge, "")

	_, err := AddNote(ctx, store, testCfg, zap.NewNop(), "p-1", "   ", lifecycle.Actor{ID: "u-1"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.ErrorIs(t, err, lifecycle.ErrEmptyNote)
}

func TestCompleteGraduationStep(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	seedParticipant(t, store, "p-1", model.StatusActiveMentorship, "mentor-1")
	actor := lifecycle.Actor{ID: "mentor-1"}

	p, err := CompleteGraduationStep(ctx, store, testCfg, zap.NewNop(), "p-1", "housing_secured", actor)
	require.NoError(t, err)
	assert.Equal(t, []string{"housing_secured"}, p.CompletedGraduationSteps)
	assert.Equal(t, int64(2), p.Version)

	again, err := CompleteGraduationStep(ctx, store, testCfg, zap.NewNop(), "p-1", "housing_secured", actor)
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Version, "repeating a step does not write")
	assert.Len(t, again.History, 1)

	_, err = CompleteGraduationStep(ctx, store, testCfg, zap.NewNop(), "p-1", "won_the_lottery", actor)
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestCompleteGraduationStep_UsesConfiguredSteps(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	seedParticipant(t, store, "p-1", model.StatusActiveMentorship, "mentor-1")
	cfg := &config.Config{GraduationSteps: []string{"bank_account"}}

	_, err := CompleteGraduationStep(ctx, store, cfg, zap.NewNop(), "p-1", "bank_account", lifecycle.Actor{ID: "mentor-1"})
	require.NoError(t, err)

	_, err = CompleteGraduationStep(ctx, store, cfg, zap.NewNop(), "p-1", "housing_secured", lifecycle.Actor{ID: "mentor-1"})
	assert.ErrorIs(t, err, lifecycle.ErrUnknownStep)
}

func TestCompleteGraduationStep_RequiresActiveMentorship(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	seedParticipant(t, store, "p-1", model.StatusPendingMentor, "")

	_, err := CompleteGraduationStep(ctx, store, testCfg, zap.NewNop(), "p-1", "housing_secured", lifecycle.Actor{ID: "u-1"})
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
}

func TestTransitionPermission(t *testing.T) {
	for _, tr := range lifecycle.Transitions() {
		assert.NotEmpty(t, TransitionPermission(tr), "transition %s has no permission", tr)
	}
	assert.Equal(t, visibility.ActionAssignMentor, TransitionPermission(lifecycle.ReassignMentor))
	assert.Equal(t, visibility.ActionRecordBridgeContact, TransitionPermission(lifecycle.MarkUnable))
}
