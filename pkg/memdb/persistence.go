package memdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jakechorley/mentor-bridge/pkg/core/model"
)

const snapshotFileName = "mentor-bridge.json"

// Snapshot is the on-disk shape of the whole store
type Snapshot struct {
	Participants []model.Participant `json:"participants"`
	Users        []model.User        `json:"users"`
	Tasks        []model.Task        `json:"tasks"`
	Shifts       []model.Shift       `json:"shifts"`
	Meetings     []model.Meeting     `json:"meetings"`
}

// storedUser carries the password hash, which model.User hides from JSON
type storedUser struct {
	model.User
	PasswordHash string `json:"passwordHash"`
}

type diskSnapshot struct {
	Participants []model.Participant `json:"participants"`
	Users        []storedUser        `json:"users"`
	Tasks        []model.Task        `json:"tasks"`
	Shifts       []model.Shift       `json:"shifts"`
	Meetings     []model.Meeting     `json:"meetings"`
}

// Persistence handles the disk I/O for the MemDB
type Persistence struct {
	DataDir string
	mu      sync.Mutex
}

// NewPersistence creates the data directory if needed
func NewPersistence(dir string) (*Persistence, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Persistence{DataDir: dir}, nil
}

// Save writes the snapshot to a temporary file and renames it over the previous one
func (p *Persistence) Save(snapshot *Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	disk := diskSnapshot{
		Participants: snapshot.Participants,
		Tasks:        snapshot.Tasks,
		Shifts:       snapshot.Shifts,
		Meetings:     snapshot.Meetings,
	}
	for _, u := range snapshot.Users {
		disk.Users = append(disk.Users, storedUser{User: u, PasswordHash: u.PasswordHash})
	}

	data, err := json.MarshalIndent(disk, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	filePath := filepath.Join(p.DataDir, snapshotFileName)
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tempPath, filePath); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Load reads the last saved snapshot. A missing file yields an empty snapshot.
func (p *Persistence) Load() (*Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(p.DataDir, snapshotFileName))
	if errors.Is(err, os.ErrNotExist) {
		return &Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var disk diskSnapshot
	if err := json.Unmarshal(data, &disk); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	snapshot := &Snapshot{
		Participants: disk.Participants,
		Tasks:        disk.Tasks,
		Shifts:       disk.Shifts,
		Meetings:     disk.Meetings,
	}
	for _, su := range disk.Users {
		u := su.User
		u.PasswordHash = su.PasswordHash
		snapshot.Users = append(snapshot.Users, u)
	}
	return snapshot, nil
}
