// Package participants keeps an in-memory snapshot of every participant and serves filtered views of it.
package participants

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/mentor-bridge/pkg/changefeed"
	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/core/visibility"
)

// Source is the read side of the participant repository
type Source interface {
	GetParticipants(ctx context.Context) ([]model.Participant, error)
}

// Store is a read replica of the participant collection. Writes go through the services
// package; the store learns about them from the change feed.
type Store struct {
	source Source
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	snapshot []model.Participant
	syncedAt time.Time
	lastErr  error
}

// NewStore creates an empty store. Call Refresh or Run to populate it.
func NewStore(source Source, logger *zap.Logger) *Store {
	return &Store{
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// Refresh reloads the snapshot. On failure the previous snapshot keeps being served and
// the error is recorded for LastError.
func (s *Store) Refresh(ctx context.Context) error {
	participants, err := s.source.GetParticipants(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.lastErr = err
		s.logger.Warn("Failed to refresh participants, serving last snapshot",
			zap.Time("synced_at", s.syncedAt),
			zap.Error(err))
		return fmt.Errorf("failed to refresh participants: %w", err)
	}

	snapshot := make([]model.Participant, len(participants))
	for i, p := range participants {
		snapshot[i] = p.Clone()
	}
	s.snapshot = snapshot
	s.syncedAt = s.now()
	s.lastErr = nil

	s.logger.Debug("Refreshed participants", zap.Int("count", len(snapshot)))
	return nil
}

// Run loads the snapshot then refreshes on every participant change until ctx is done.
// Bursts of changes are coalesced into a single refresh.
func (s *Store) Run(ctx context.Context, feed changefeed.Subscriber) error {
	changed := make(chan struct{}, 1)
	unsubscribe, err := feed.Subscribe(ctx, changefeed.TopicParticipants, func(changefeed.Event) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to participant changes: %w", err)
	}
	defer unsubscribe()

	// Errors are recorded on the store; keep listening
	_ = s.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			_ = s.Refresh(ctx)
		}
	}
}

// ListAll returns a copy of the snapshot in its loaded order
func (s *Store) ListAll() []model.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Participant, len(s.snapshot))
	for i, p := range s.snapshot {
		result[i] = p.Clone()
	}
	return result
}

// Get returns one participant from the snapshot
func (s *Store) Get(id string) (model.Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.snapshot {
		if p.ID == id {
			return p.Clone(), true
		}
	}
	return model.Participant{}, false
}

// FilterByStatus returns participants whose status is any of statuses
func (s *Store) FilterByStatus(statuses ...model.Status) []model.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Participant, 0)
	for _, p := range s.snapshot {
		if model.HasStatus(statuses, p.Status) {
			result = append(result, p.Clone())
		}
	}
	return result
}

// FilterVisibleTo returns the participants role may see
func (s *Store) FilterVisibleTo(role model.Role, selfID string) []model.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return visibility.ComputeVisibleParticipants(s.snapshot, role, selfID)
}

// FilterVisibleToUser returns the participants any of the user's roles may see
func (s *Store) FilterVisibleToUser(user model.User) []model.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return visibility.VisibleParticipantsForUser(s.snapshot, user)
}

// SyncedAt is the time of the last successful refresh, zero if there has been none
func (s *Store) SyncedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncedAt
}

// Stale reports whether the snapshot was never loaded or is older than maxAge
func (s *Store) Stale(maxAge time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.syncedAt.IsZero() {
		return true
	}
	return s.now().Sub(s.syncedAt) > maxAge
}

// LastError is the error from the most recent refresh, nil once a refresh succeeds
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}
