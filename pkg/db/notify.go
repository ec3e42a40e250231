package db

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/mentor-bridge/pkg/changefeed"
	"github.com/jakechorley/mentor-bridge/pkg/core/model"
)

// NotifyingDB wraps a Database and publishes a change event after every successful write.
// A publish failure is logged and does not fail the write, which has already been committed.
type NotifyingDB struct {
	Database
	publisher changefeed.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewNotifying decorates database so writes are announced on publisher
func NewNotifying(database Database, publisher changefeed.Publisher, logger *zap.Logger) *NotifyingDB {
	return &NotifyingDB{
		Database:  database,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (n *NotifyingDB) publish(ctx context.Context, topic changefeed.Topic, id string, op changefeed.Op, version int64) {
	event := changefeed.Event{
		Topic:   topic,
		ID:      id,
		Op:      op,
		Version: version,
		At:      n.now().UTC(),
	}
	if err := n.publisher.Publish(ctx, event); err != nil {
		n.logger.Warn("Failed to publish change event",
			zap.String("topic", string(topic)),
			zap.String("id", id),
			zap.Error(err))
	}
}

func (n *NotifyingDB) InsertParticipant(ctx context.Context, participant *model.Participant) error {
	if err := n.Database.InsertParticipant(ctx, participant); err != nil {
		return err
	}
	n.publish(ctx, changefeed.TopicParticipants, participant.ID, changefeed.OpUpsert, participant.Version)
	return nil
}

func (n *NotifyingDB) UpdateParticipant(ctx context.Context, participant *model.Participant) error {
	if err := n.Database.UpdateParticipant(ctx, participant); err != nil {
		return err
	}
	n.publish(ctx, changefeed.TopicParticipants, participant.ID, changefeed.OpUpsert, participant.Version)
	return nil
}

func (n *NotifyingDB) InsertUser(ctx context.Context, user *model.User) error {
	if err := n.Database.InsertUser(ctx, user); err != nil {
		return err
	}
	n.publish(ctx, changefeed.TopicUsers, user.ID, changefeed.OpUpsert, user.Version)
	return nil
}

func (n *NotifyingDB) UpdateUser(ctx context.Context, user *model.User) error {
	if err := n.Database.UpdateUser(ctx, user); err != nil {
		return err
	}
	n.publish(ctx, changefeed.TopicUsers, user.ID, changefeed.OpUpsert, user.Version)
	return nil
}

func (n *NotifyingDB) DeleteUser(ctx context.Context, id string) error {
	if err := n.Database.DeleteUser(ctx, id); err != nil {
		return err
	}
	n.publish(ctx, changefeed.TopicUsers, id, changefeed.OpDelete, 0)
	return nil
}

func (n *NotifyingDB) InsertTask(ctx context.Context, task *model.Task) error {
	if err := n.Database.InsertTask(ctx, task); err != nil {
		return err
	}
	n.publish(ctx, changefeed.TopicTasks, task.ID, changefeed.OpUpsert, task.Version)
	return nil
}

func (n *NotifyingDB) UpdateTask(ctx context.Context, task *model.Task) error {
	if err := n.Database.UpdateTask(ctx, task); err != nil {
		return err
	}
	n.publish(ctx, changefeed.TopicTasks, task.ID, changefeed.OpUpsert, task.Version)
	return nil
}

func (n *NotifyingDB) DeleteTask(ctx context.Context, id string) error {
	if err := n.Database.DeleteTask(ctx, id); err != nil {
		return err
	}
	n.publish(ctx, changefeed.TopicTasks, id, changefeed.OpDelete, 0)
	return nil
}

func (n *NotifyingDB) InsertShifts(ctx context.Context, shifts []*model.Shift) error {
	if err := n.Database.InsertShifts(ctx, shifts); err != nil {
		return err
	}
	for _, s := range shifts {
		n.publish(ctx, changefeed.TopicShifts, s.ID, changefeed.OpUpsert, s.Version)
	}
	return nil
}

func (n *NotifyingDB) UpdateShift(ctx context.Context, shift *model.Shift) error {
	if err := n.Database.UpdateShift(ctx, shift); err != nil {
		return err
	}
	n.publish(ctx, changefeed.TopicShifts, shift.ID, changefeed.OpUpsert, shift.Version)
	return nil
}

func (n *NotifyingDB) DeleteShift(ctx context.Context, id string) error {
	if err := n.Database.DeleteShift(ctx, id); err != nil {
		return err
	}
	n.publish(ctx, changefeed.TopicShifts, id, changefeed.OpDelete, 0)
	return nil
}

func (n *NotifyingDB) InsertMeetings(ctx context.Context, meetings []*model.Meeting) error {
	if err := n.Database.InsertMeetings(ctx, meetings); err != nil {
		return err
	}
	for _, m := range meetings {
		n.publish(ctx, changefeed.TopicMeetings, m.ID, changefeed.OpUpsert, m.Version)
	}
	return nil
}

func (n *NotifyingDB) UpdateMeeting(ctx context.Context, meeting *model.Meeting) error {
	if err := n.Database.UpdateMeeting(ctx, meeting); err != nil {
		return err
	}
	n.publish(ctx, changefeed.TopicMeetings, meeting.ID, changefeed.OpUpsert, meeting.Version)
	return nil
}

func (n *NotifyingDB) DeleteMeeting(ctx context.Context, id string) error {
	if err := n.Database.DeleteMeeting(ctx, id); err != nil {
		return err
	}
	n.publish(ctx, changefeed.TopicMeetings, id, changefeed.OpDelete, 0)
	return nil
}
