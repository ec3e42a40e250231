package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/mentor-bridge/internal/config"
	"github.com/jakechorley/mentor-bridge/pkg/clients/sheetsclient"
	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/core/scheduling"
	"github.com/jakechorley/mentor-bridge/pkg/core/visibility"
	"github.com/jakechorley/mentor-bridge/pkg/db"
)

// SchedulePublisher writes a built schedule to a spreadsheet
type SchedulePublisher interface {
	PublishSchedule(spreadsheetID string, schedule *sheetsclient.PublishedSchedule) error
}

// BuildSchedule collects the shifts starting on days from..to (inclusive, UTC) into sheet rows,
// ordered by start time
func BuildSchedule(ctx context.Context, database db.ShiftStore, logger *zap.Logger, from, to time.Time) (*sheetsclient.PublishedSchedule, error) {
	from = startOfDay(from)
	to = startOfDay(to)
	if to.Before(from) {
		return nil, invalid("end date %s is before start date %s", to.Format(model.DateLayout), from.Format(model.DateLayout))
	}

	logger.Debug("Fetching shifts")
	all, err := database.GetShifts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch shifts: %w", err)
	}

	shifts := scheduling.ShiftsBetween(all, from, to.AddDate(0, 0, 1))
	sort.SliceStable(shifts, func(i, j int) bool { return shifts[i].Start.Before(shifts[j].Start) })

	logger.Debug("Selected shifts for schedule", zap.Int("total", len(all)), zap.Int("in_range", len(shifts)))

	rows := make([]sheetsclient.PublishedScheduleRow, 0, len(shifts))
	for _, s := range shifts {
		names := make([]string, 0, len(s.AssignedUsers))
		for _, a := range s.AssignedUsers {
			names = append(names, a.UserName)
		}

		places := strconv.Itoa(len(s.AssignedUsers))
		if s.MaxVolunteers != nil {
			places = fmt.Sprintf("%d/%d", len(s.AssignedUsers), *s.MaxVolunteers)
		}

		rows = append(rows, sheetsclient.PublishedScheduleRow{
			Date:       s.Start.Format("Mon Jan 02 2006"),
			Time:       fmt.Sprintf("%s-%s", s.Start.Format("15:04"), s.End.Format("15:04")),
			Title:      s.Title,
			Location:   s.Location,
			Places:     places,
			Volunteers: names,
		})
	}

	return &sheetsclient.PublishedSchedule{
		From: from.Format(model.DateLayout),
		To:   to.Format(model.DateLayout),
		Rows: rows,
	}, nil
}

// PublishSchedule builds the schedule for from..to and writes it to the configured spreadsheet
func PublishSchedule(
	ctx context.Context,
	database db.ShiftStore,
	publisher SchedulePublisher,
	cfg *config.Config,
	logger *zap.Logger,
	actor model.User,
	from, to time.Time,
) (*sheetsclient.PublishedSchedule, error) {
	if err := requirePermission(actor, visibility.ActionPublishSchedule); err != nil {
		return nil, err
	}
	if cfg == nil || cfg.ScheduleSheetID == "" {
		return nil, invalid("scheduleSheetID is not configured")
	}

	schedule, err := BuildSchedule(ctx, database, logger, from, to)
	if err != nil {
		return nil, err
	}

	logger.Info("Publishing schedule",
		zap.String("from", schedule.From),
		zap.String("to", schedule.To),
		zap.Int("shifts", len(schedule.Rows)),
		zap.String("actor_id", actor.ID))

	if err := publisher.PublishSchedule(cfg.ScheduleSheetID, schedule); err != nil {
		return nil, fmt.Errorf("failed to publish schedule: %w", err)
	}

	return schedule, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
