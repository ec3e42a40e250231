// Package memdb is an in-memory Database with optional JSON file persistence.
// It backs local development and tests; production deployments use postgres.
package memdb

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/db"
)

// MemDB is a thread-safe in-memory implementation of db.Database
type MemDB struct {
	mu           sync.RWMutex
	participants map[string]model.Participant
	users        map[string]model.User
	tasks        map[string]model.Task
	shifts       map[string]model.Shift
	meetings     map[string]model.Meeting

	persister *Persistence
	logger    *zap.Logger
	wg        sync.WaitGroup

	// saveMu guards dirty and saving. One saver goroutine runs at a time and always
	// writes a snapshot taken after the latest change it was woken for.
	saveMu sync.Mutex
	dirty  bool
	saving bool
}

// New creates a store seeded with initial (may be nil). If persister is non-nil writes are
// saved to disk in the background, newest state last.
func New(initial *Snapshot, persister *Persistence, logger *zap.Logger) *MemDB {
	m := &MemDB{
		participants: make(map[string]model.Participant),
		users:        make(map[string]model.User),
		tasks:        make(map[string]model.Task),
		shifts:       make(map[string]model.Shift),
		meetings:     make(map[string]model.Meeting),
		persister:    persister,
		logger:       logger,
	}
	if initial != nil {
		for _, p := range initial.Participants {
			m.participants[p.ID] = p.Clone()
		}
		for _, u := range initial.Users {
			m.users[u.ID] = u.Clone()
		}
		for _, t := range initial.Tasks {
			m.tasks[t.ID] = t.Clone()
		}
		for _, s := range initial.Shifts {
			m.shifts[s.ID] = s.Clone()
		}
		for _, mt := range initial.Meetings {
			m.meetings[mt.ID] = mt.Clone()
		}
	}
	return m
}

// Open loads the snapshot from dataDir and returns a persisting store
func Open(dataDir string, logger *zap.Logger) (*MemDB, error) {
	persister, err := NewPersistence(dataDir)
	if err != nil {
		return nil, err
	}
	snapshot, err := persister.Load()
	if err != nil {
		return nil, err
	}
	return New(snapshot, persister, logger), nil
}

// Wait blocks until background saves have finished
func (m *MemDB) Wait() {
	m.wg.Wait()
}

// Close waits for pending saves
func (m *MemDB) Close() {
	m.Wait()
}

// Snapshot returns a deep copy of the current contents
func (m *MemDB) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// snapshotLocked MUST be called while holding m.mu
func (m *MemDB) snapshotLocked() *Snapshot {
	s := &Snapshot{}
	for _, p := range m.participants {
		s.Participants = append(s.Participants, p.Clone())
	}
	for _, u := range m.users {
		s.Users = append(s.Users, u.Clone())
	}
	for _, t := range m.tasks {
		s.Tasks = append(s.Tasks, t.Clone())
	}
	for _, sh := range m.shifts {
		s.Shifts = append(s.Shifts, sh.Clone())
	}
	for _, mt := range m.meetings {
		s.Meetings = append(s.Meetings, mt.Clone())
	}
	sortSnapshot(s)
	return s
}

// persistLocked marks the store dirty and starts the saver if it is idle. MUST be called
// while holding m.mu.
func (m *MemDB) persistLocked() {
	if m.persister == nil {
		return
	}
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.dirty = true
	if m.saving {
		return
	}
	m.saving = true
	m.wg.Add(1)
	go m.saveLoop()
}

// saveLoop writes snapshots until no change is pending. Writes made while a save is in
// flight are coalesced into the next one.
func (m *MemDB) saveLoop() {
	defer m.wg.Done()
	for {
		m.saveMu.Lock()
		if !m.dirty {
			m.saving = false
			m.saveMu.Unlock()
			return
		}
		m.dirty = false
		m.saveMu.Unlock()

		m.mu.RLock()
		snapshot := m.snapshotLocked()
		m.mu.RUnlock()

		if err := m.persister.Save(snapshot); err != nil {
			m.logger.Error("Failed to persist snapshot", zap.Error(err))
		}
	}
}

func sortSnapshot(s *Snapshot) {
	sort.Slice(s.Participants, func(i, j int) bool {
		return s.Participants[i].ParticipantNumber < s.Participants[j].ParticipantNumber
	})
	sort.Slice(s.Users, func(i, j int) bool {
		if s.Users[i].Name == s.Users[j].Name {
			return s.Users[i].ID < s.Users[j].ID
		}
		return s.Users[i].Name < s.Users[j].Name
	})
	sort.Slice(s.Tasks, func(i, j int) bool {
		if s.Tasks[i].CreatedAt.Equal(s.Tasks[j].CreatedAt) {
			return s.Tasks[i].ID < s.Tasks[j].ID
		}
		return s.Tasks[i].CreatedAt.Before(s.Tasks[j].CreatedAt)
	})
	sort.Slice(s.Shifts, func(i, j int) bool {
		if s.Shifts[i].Start.Equal(s.Shifts[j].Start) {
			return s.Shifts[i].ID < s.Shifts[j].ID
		}
		return s.Shifts[i].Start.Before(s.Shifts[j].Start)
	})
	sort.Slice(s.Meetings, func(i, j int) bool {
		if s.Meetings[i].Start.Equal(s.Meetings[j].Start) {
			return s.Meetings[i].ID < s.Meetings[j].ID
		}
		return s.Meetings[i].Start.Before(s.Meetings[j].Start)
	})
}

// --- Participants ---

func (m *MemDB) GetParticipants(ctx context.Context) ([]model.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]model.Participant, 0, len(m.participants))
	for _, p := range m.participants {
		result = append(result, p.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ParticipantNumber < result[j].ParticipantNumber
	})
	return result, nil
}

func (m *MemDB) GetParticipant(ctx context.Context, id string) (*model.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.participants[id]
	if !ok {
		return nil, fmt.Errorf("participant %s: %w", id, db.ErrNotFound)
	}
	c := p.Clone()
	return &c, nil
}

// InsertParticipant assigns the next participant number when none is set
func (m *MemDB) InsertParticipant(ctx context.Context, participant *model.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.participants[participant.ID]; exists {
		return fmt.Errorf("participant %s already exists", participant.ID)
	}
	if participant.ParticipantNumber == 0 {
		max := 0
		for _, p := range m.participants {
			if p.ParticipantNumber > max {
				max = p.ParticipantNumber
			}
		}
		participant.ParticipantNumber = max + 1
	}
	participant.Version = 1
	m.participants[participant.ID] = participant.Clone()
	m.persistLocked()
	return nil
}

func (m *MemDB) UpdateParticipant(ctx context.Context, participant *model.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.participants[participant.ID]
	if !ok {
		return fmt.Errorf("participant %s: %w", participant.ID, db.ErrNotFound)
	}
	if current.Version != participant.Version {
		return fmt.Errorf("participant %s at version %d, update based on %d: %w",
			participant.ID, current.Version, participant.Version, db.ErrVersionConflict)
	}
	participant.Version++
	m.participants[participant.ID] = participant.Clone()
	m.persistLocked()
	return nil
}

// --- Users ---

func (m *MemDB) GetUsers(ctx context.Context) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		result = append(result, u.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name == result[j].Name {
			return result[i].ID < result[j].ID
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (m *MemDB) GetUser(ctx context.Context, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, db.ErrNotFound)
	}
	c := u.Clone()
	return &c, nil
}

func (m *MemDB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	normalized := model.NormalizeEmail(email)
	for _, u := range m.users {
		if model.NormalizeEmail(u.Email) == normalized {
			c := u.Clone()
			return &c, nil
		}
	}
	return nil, fmt.Errorf("user with email %s: %w", normalized, db.ErrNotFound)
}

// emailTakenLocked MUST be called while holding m.mu
func (m *MemDB) emailTakenLocked(email, exceptID string) bool {
	normalized := model.NormalizeEmail(email)
	for id, u := range m.users {
		if id != exceptID && model.NormalizeEmail(u.Email) == normalized {
			return true
		}
	}
	return false
}

func (m *MemDB) InsertUser(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.ID]; exists {
		return fmt.Errorf("user %s already exists", user.ID)
	}
	if m.emailTakenLocked(user.Email, "") {
		return db.ErrDuplicateEmail
	}
	user.Email = model.NormalizeEmail(user.Email)
	user.Version = 1
	m.users[user.ID] = user.Clone()
	m.persistLocked()
	return nil
}

func (m *MemDB) UpdateUser(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.users[user.ID]
	if !ok {
		return fmt.Errorf("user %s: %w", user.ID, db.ErrNotFound)
	}
	if current.Version != user.Version {
		return fmt.Errorf("user %s at version %d, update based on %d: %w",
			user.ID, current.Version, user.Version, db.ErrVersionConflict)
	}
	if m.emailTakenLocked(user.Email, user.ID) {
		return db.ErrDuplicateEmail
	}
	user.Email = model.NormalizeEmail(user.Email)
	user.Version++
	m.users[user.ID] = user.Clone()
	m.persistLocked()
	return nil
}

func (m *MemDB) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return fmt.Errorf("user %s: %w", id, db.ErrNotFound)
	}
	delete(m.users, id)
	m.persistLocked()
	return nil
}

// --- Tasks ---

func (m *MemDB) GetTasks(ctx context.Context) ([]model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]model.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		result = append(result, t.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemDB) GetTask(ctx context.Context, id string) (*model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, db.ErrNotFound)
	}
	c := t.Clone()
	return &c, nil
}

func (m *MemDB) InsertTask(ctx context.Context, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	task.Version = 1
	m.tasks[task.ID] = task.Clone()
	m.persistLocked()
	return nil
}

func (m *MemDB) UpdateTask(ctx context.Context, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.tasks[task.ID]
	if !ok {
		return fmt.Errorf("task %s: %w", task.ID, db.ErrNotFound)
	}
	if current.Version != task.Version {
		return fmt.Errorf("task %s at version %d, update based on %d: %w",
			task.ID, current.Version, task.Version, db.ErrVersionConflict)
	}
	task.Version++
	m.tasks[task.ID] = task.Clone()
	m.persistLocked()
	return nil
}

func (m *MemDB) DeleteTask(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[id]; !ok {
		return fmt.Errorf("task %s: %w", id, db.ErrNotFound)
	}
	delete(m.tasks, id)
	m.persistLocked()
	return nil
}

// --- Shifts ---

func (m *MemDB) GetShifts(ctx context.Context) ([]model.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]model.Shift, 0, len(m.shifts))
	for _, s := range m.shifts {
		result = append(result, s.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Start.Equal(result[j].Start) {
			return result[i].ID < result[j].ID
		}
		return result[i].Start.Before(result[j].Start)
	})
	return result, nil
}

func (m *MemDB) GetShift(ctx context.Context, id string) (*model.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.shifts[id]
	if !ok {
		return nil, fmt.Errorf("shift %s: %w", id, db.ErrNotFound)
	}
	c := s.Clone()
	return &c, nil
}

// InsertShifts inserts all shifts or none
func (m *MemDB) InsertShifts(ctx context.Context, shifts []*model.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range shifts {
		if _, exists := m.shifts[s.ID]; exists {
			return fmt.Errorf("shift %s already exists", s.ID)
		}
	}
	for _, s := range shifts {
		s.Version = 1
		m.shifts[s.ID] = s.Clone()
	}
	m.persistLocked()
	return nil
}

func (m *MemDB) UpdateShift(ctx context.Context, shift *model.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.shifts[shift.ID]
	if !ok {
		return fmt.Errorf("shift %s: %w", shift.ID, db.ErrNotFound)
	}
	if current.Version != shift.Version {
		return fmt.Errorf("shift %s at version %d, update based on %d: %w",
			shift.ID, current.Version, shift.Version, db.ErrVersionConflict)
	}
	shift.Version++
	m.shifts[shift.ID] = shift.Clone()
	m.persistLocked()
	return nil
}

func (m *MemDB) DeleteShift(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.shifts[id]; !ok {
		return fmt.Errorf("shift %s: %w", id, db.ErrNotFound)
	}
	delete(m.shifts, id)
	m.persistLocked()
	return nil
}

// --- Meetings ---

func (m *MemDB) GetMeetings(ctx context.Context) ([]model.Meeting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]model.Meeting, 0, len(m.meetings))
	for _, mt := range m.meetings {
		result = append(result, mt.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Start.Equal(result[j].Start) {
			return result[i].ID < result[j].ID
		}
		return result[i].Start.Before(result[j].Start)
	})
	return result, nil
}

func (m *MemDB) GetMeeting(ctx context.Context, id string) (*model.Meeting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mt, ok := m.meetings[id]
	if !ok {
		return nil, fmt.Errorf("meeting %s: %w", id, db.ErrNotFound)
	}
	c := mt.Clone()
	return &c, nil
}

// InsertMeetings inserts all meetings or none
func (m *MemDB) InsertMeetings(ctx context.Context, meetings []*model.Meeting) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mt := range meetings {
		if _, exists := m.meetings[mt.ID]; exists {
			return fmt.Errorf("meeting %s already exists", mt.ID)
		}
	}
	for _, mt := range meetings {
		mt.Version = 1
		m.meetings[mt.ID] = mt.Clone()
	}
	m.persistLocked()
	return nil
}

func (m *MemDB) UpdateMeeting(ctx context.Context, meeting *model.Meeting) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.meetings[meeting.ID]
	if !ok {
		return fmt.Errorf("meeting %s: %w", meeting.ID, db.ErrNotFound)
	}
	if current.Version != meeting.Version {
		return fmt.Errorf("meeting %s at version %d, update based on %d: %w",
			meeting.ID, current.Version, meeting.Version, db.ErrVersionConflict)
	}
	meeting.Version++
	m.meetings[meeting.ID] = meeting.Clone()
	m.persistLocked()
	return nil
}

func (m *MemDB) DeleteMeeting(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.meetings[id]; !ok {
		return fmt.Errorf("meeting %s: %w", id, db.ErrNotFound)
	}
	delete(m.meetings, id)
	m.persistLocked()
	return nil
}

var _ db.Database = (*MemDB)(nil)
