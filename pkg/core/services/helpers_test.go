package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/mentor-bridge/internal/config"
	"github.com/jakechorley/mentor-bridge/pkg/core/lifecycle"
	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/memdb"
	"github.com/jakechorley/mentor-bridge/pkg/password"
)

func init() {
	hashParams = &password.Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

var testCfg = &config.Config{ConflictRetries: 3, MaxRecurrenceOccurrences: 10}

func newStore() *memdb.MemDB {
	return memdb.New(nil, nil, zap.NewNop())
}

// fixClock pins the service clock to at for the duration of the test
func fixClock(t *testing.T, at time.Time) {
	t.Helper()
	previous := clock
	clock = func() time.Time { return at }
	t.Cleanup(func() { clock = previous })
}

func seedUser(t *testing.T, store *memdb.MemDB, id string, role model.Role, extra ...model.Role) model.User {
	t.Helper()
	u := model.User{
		ID:        id,
		Name:      "User " + id,
		Email:     id + "@example.org",
		Role:      role,
		Roles:     extra,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.InsertUser(context.Background(), &u))
	return u
}

// seedParticipant stores a participant directly in status, bypassing the lifecycle
func seedParticipant(t *testing.T, store *memdb.MemDB, id string, status model.Status, mentorID string) model.Participant {
	t.Helper()
	p := model.Participant{
		ID:                       id,
		FirstName:                "Sam",
		LastName:                 "Jones",
		DateOfBirth:              "1990-04-01",
		ReleaseDate:              "2025-01-10",
		ReleasedFrom:             "HMP Pentonville",
		Status:                   status,
		AssignedMentor:           mentorID,
		SubmittedAt:              time.Date(2025, 1, 11, 9, 0, 0, 0, time.UTC),
		CompletedGraduationSteps: []string{},
		Notes:                    []string{},
	}
	require.NoError(t, store.InsertParticipant(context.Background(), &p))
	return p
}

func actorOf(u model.User) lifecycle.Actor {
	return lifecycle.Actor{ID: u.ID, Name: u.DisplayName()}
}
