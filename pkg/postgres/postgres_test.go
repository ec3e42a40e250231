package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/db"
)

func TestPendingMigrations(t *testing.T) {
	all, err := PendingMigrations(nil)
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, "001_initial_schema.sql", all[0])

	rest, err := PendingMigrations(map[string]bool{"001_initial_schema.sql": true})
	require.NoError(t, err)
	assert.NotContains(t, rest, "001_initial_schema.sql")
}

func TestDateParam(t *testing.T) {
	got, err := dateParam("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = dateParam("1990-04-01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "1990-04-01", formatDate(got))

	_, err = dateParam("01/04/1990")
	assert.Error(t, err)
}

func TestRoleConversion(t *testing.T) {
	assert.Nil(t, rolesToStrings(nil))
	assert.Nil(t, stringsToRoles(nil))

	roles := []model.Role{model.RoleMentor, model.RoleVolunteer}
	assert.Equal(t, roles, stringsToRoles(rolesToStrings(roles)))
}

// openTestDB connects to MENTOR_TEST_DATABASE_URL, skipping when it is unset
func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("MENTOR_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("MENTOR_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	d, err := NewDB(ctx, url)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	require.NoError(t, d.RunMigrations(ctx))
	return d
}

func TestIntegration_ParticipantCompareAndSwap(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	p := &model.Participant{
		ID:           uuid.New().String(),
		FirstName:    "Sam",
		LastName:     "Jones",
		DateOfBirth:  "1990-04-01",
		ReleaseDate:  "2025-01-10",
		ReleasedFrom: "HMP Example",
		Status:       model.StatusPendingBridge,
		SubmittedAt:  time.Now().UTC().Truncate(time.Microsecond),
		History: []model.HistoryEntry{
			{ID: uuid.New().String(), Type: model.HistoryCreated, Description: "Created", CreatedAt: time.Now().UTC()},
		},
	}
	require.NoError(t, d.InsertParticipant(ctx, p))
	assert.NotZero(t, p.ParticipantNumber)
	assert.Equal(t, int64(1), p.Version)

	stale, err := d.GetParticipant(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "1990-04-01", stale.DateOfBirth)
	require.Len(t, stale.History, 1)

	p.Status = model.StatusBridgeContacted
	require.NoError(t, d.UpdateParticipant(ctx, p))
	assert.Equal(t, int64(2), p.Version)

	stale.Status = model.StatusCeasedContact
	assert.ErrorIs(t, d.UpdateParticipant(ctx, stale), db.ErrVersionConflict)

	missing := &model.Participant{ID: uuid.New().String(), Status: model.StatusPendingBridge, Version: 1}
	assert.ErrorIs(t, d.UpdateParticipant(ctx, missing), db.ErrNotFound)
}

func TestIntegration_UserEmailUnique(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	email := uuid.New().String() + "@Example.org"
	u := &model.User{ID: uuid.New().String(), Name: "A", Email: email, Role: model.RoleMentor, CreatedAt: time.Now()}
	require.NoError(t, d.InsertUser(ctx, u))
	t.Cleanup(func() { d.DeleteUser(context.Background(), u.ID) })

	found, err := d.GetUserByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	dup := &model.User{ID: uuid.New().String(), Name: "B", Email: email, Role: model.RoleMentor, CreatedAt: time.Now()}
	assert.ErrorIs(t, d.InsertUser(ctx, dup), db.ErrDuplicateEmail)
}
