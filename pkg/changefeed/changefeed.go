// Package changefeed broadcasts record changes so cached views can refresh.
package changefeed

import (
	"context"
	"time"
)

type Topic string

const (
	TopicParticipants Topic = "participants"
	TopicUsers        Topic = "users"
	TopicTasks        Topic = "tasks"
	TopicShifts       Topic = "shifts"
	TopicMeetings     Topic = "meetings"
)

type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// Event describes a single committed write
type Event struct {
	Topic   Topic     `json:"topic"`
	ID      string    `json:"id"`
	Op      Op        `json:"op"`
	Version int64     `json:"version,omitempty"`
	At      time.Time `json:"at"`
}

// Handler receives events for a subscribed topic
type Handler func(Event)

// Publisher announces committed writes
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber registers handlers for a topic. The returned function unsubscribes.
type Subscriber interface {
	Subscribe(ctx context.Context, topic Topic, fn Handler) (func(), error)
}

// Feed is both ends of a change feed
type Feed interface {
	Publisher
	Subscriber
	Close() error
}
