package participants

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/mentor-bridge/pkg/changefeed"
	"github.com/jakechorley/mentor-bridge/pkg/core/model"
)

// mockSource implements Source
type mockSource struct {
	mu           sync.Mutex
	participants []model.Participant
	err          error
	calls        int
}

func (m *mockSource) GetParticipants(ctx context.Context) ([]model.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.participants, nil
}

func (m *mockSource) set(participants []model.Participant, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.participants = participants
	m.err = err
}

func sample() []model.Participant {
	return []model.Participant{
		{ID: "p-1", ParticipantNumber: 1, Status: model.StatusPendingBridge},
		{ID: "p-2", ParticipantNumber: 2, Status: model.StatusPendingMentor},
		{ID: "p-3", ParticipantNumber: 3, Status: model.StatusActiveMentorship, AssignedMentor: "m-1"},
		{ID: "p-4", ParticipantNumber: 4, Status: model.StatusBridgeContacted, Notes: []string{"called"}},
	}
}

func TestStore_RefreshAndViews(t *testing.T) {
	source := &mockSource{participants: sample()}
	store := NewStore(source, zap.NewNop())

	assert.Empty(t, store.ListAll())
	assert.True(t, store.Stale(time.Hour))

	require.NoError(t, store.Refresh(context.Background()))
	assert.False(t, store.Stale(time.Hour))
	assert.NoError(t, store.LastError())

	all := store.ListAll()
	require.Len(t, all, 4)
	assert.Equal(t, "p-1", all[0].ID)
	assert.Equal(t, "p-4", all[3].ID)

	bridge := store.FilterByStatus(model.StatusPendingBridge, model.StatusBridgeContacted)
	require.Len(t, bridge, 2)
	assert.Equal(t, "p-1", bridge[0].ID)
	assert.Equal(t, "p-4", bridge[1].ID)

	assert.Empty(t, store.FilterByStatus(model.StatusGraduated))

	mine := store.FilterVisibleTo(model.RoleMentor, "m-1")
	require.Len(t, mine, 1)
	assert.Equal(t, "p-3", mine[0].ID)

	leader := store.FilterVisibleToUser(model.User{ID: "m-1", Role: model.RoleMentorshipLeader})
	require.Len(t, leader, 2)

	p, ok := store.Get("p-2")
	require.True(t, ok)
	assert.Equal(t, model.StatusPendingMentor, p.Status)
	_, ok = store.Get("missing")
	assert.False(t, ok)
}

func TestStore_ReturnsCopies(t *testing.T) {
	store := NewStore(&mockSource{participants: sample()}, zap.NewNop())
	require.NoError(t, store.Refresh(context.Background()))

	all := store.ListAll()
	all[3].Notes[0] = "changed"
	all[0].Status = model.StatusGraduated

	again := store.ListAll()
	assert.Equal(t, "called", again[3].Notes[0])
	assert.Equal(t, model.StatusPendingBridge, again[0].Status)
}

func TestStore_FailedRefreshKeepsSnapshot(t *testing.T) {
	source := &mockSource{participants: sample()}
	store := NewStore(source, zap.NewNop())
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	require.NoError(t, store.Refresh(context.Background()))

	source.set(nil, errors.New("connection refused"))
	store.now = func() time.Time { return base.Add(10 * time.Minute) }

	err := store.Refresh(context.Background())
	require.Error(t, err)
	assert.Len(t, store.ListAll(), 4)
	assert.Equal(t, base, store.SyncedAt())
	assert.EqualError(t, store.LastError(), "connection refused")
	assert.True(t, store.Stale(5*time.Minute))
	assert.False(t, store.Stale(15*time.Minute))

	source.set(sample()[:1], nil)
	require.NoError(t, store.Refresh(context.Background()))
	assert.NoError(t, store.LastError())
	assert.Len(t, store.ListAll(), 1)
}

func TestStore_RunRefreshesOnChange(t *testing.T) {
	source := &mockSource{participants: sample()[:2]}
	store := NewStore(source, zap.NewNop())
	feed := changefeed.NewLocal()
	defer feed.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Run(ctx, feed) }()

	require.Eventually(t, func() bool { return len(store.ListAll()) == 2 }, time.Second, 5*time.Millisecond)

	source.set(sample(), nil)
	require.NoError(t, feed.Publish(ctx, changefeed.Event{Topic: changefeed.TopicParticipants, ID: "p-3", Op: changefeed.OpUpsert}))

	require.Eventually(t, func() bool { return len(store.ListAll()) == 4 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
