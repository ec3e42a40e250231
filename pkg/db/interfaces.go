package db

import (
	"context"

	"github.com/jakechorley/mentor-bridge/pkg/core/model"
)

// Update methods are compare-and-swap on Version: the stored record must carry the same
// version as the argument, otherwise ErrVersionConflict is returned and nothing is written.
// On success the argument's Version is incremented to match the stored record.

// ParticipantStore defines the interface for participant database operations
type ParticipantStore interface {
	GetParticipants(ctx context.Context) ([]model.Participant, error)
	GetParticipant(ctx context.Context, id string) (*model.Participant, error)
	InsertParticipant(ctx context.Context, participant *model.Participant) error
	UpdateParticipant(ctx context.Context, participant *model.Participant) error
}

// UserStore defines the interface for user account database operations
type UserStore interface {
	GetUsers(ctx context.Context) ([]model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	InsertUser(ctx context.Context, user *model.User) error
	UpdateUser(ctx context.Context, user *model.User) error
	DeleteUser(ctx context.Context, id string) error
}

// TaskStore defines the interface for task database operations
type TaskStore interface {
	GetTasks(ctx context.Context) ([]model.Task, error)
	GetTask(ctx context.Context, id string) (*model.Task, error)
	InsertTask(ctx context.Context, task *model.Task) error
	UpdateTask(ctx context.Context, task *model.Task) error
	DeleteTask(ctx context.Context, id string) error
}

// ShiftStore defines the interface for shift database operations
type ShiftStore interface {
	GetShifts(ctx context.Context) ([]model.Shift, error)
	GetShift(ctx context.Context, id string) (*model.Shift, error)
	InsertShifts(ctx context.Context, shifts []*model.Shift) error
	UpdateShift(ctx context.Context, shift *model.Shift) error
	DeleteShift(ctx context.Context, id string) error
}

// MeetingStore defines the interface for meeting database operations
type MeetingStore interface {
	GetMeetings(ctx context.Context) ([]model.Meeting, error)
	GetMeeting(ctx context.Context, id string) (*model.Meeting, error)
	InsertMeetings(ctx context.Context, meetings []*model.Meeting) error
	UpdateMeeting(ctx context.Context, meeting *model.Meeting) error
	DeleteMeeting(ctx context.Context, id string) error
}

// Database is the full persistence collaborator
type Database interface {
	ParticipantStore
	UserStore
	TaskStore
	ShiftStore
	MeetingStore
	Close()
}
