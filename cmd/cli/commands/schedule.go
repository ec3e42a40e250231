package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/mentor-bridge/internal/config"
	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/core/scheduling"
	"github.com/jakechorley/mentor-bridge/pkg/core/services"
)

// dateTimeLayouts are accepted for shift start and end arguments, interpreted as UTC
var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

func parseDateTime(raw string) (time.Time, error) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(raw), time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date-time %q, expected YYYY-MM-DDTHH:MM", raw)
}

func parseDate(raw string) (time.Time, error) {
	t, err := time.Parse(model.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return t, nil
}

// shiftRule picks the recurrence rule for createShifts: an explicit --rrule wins, --recurring
// falls back to the configured default
func shiftRule(cfg *config.Config, rrule string, recurring bool) (string, error) {
	if rrule != "" {
		return rrule, nil
	}
	if !recurring {
		return "", nil
	}
	if cfg == nil || cfg.DefaultShiftRRule == "" {
		return "", fmt.Errorf("--recurring needs defaultShiftRRule in the config, or pass --rrule")
	}
	return cfg.DefaultShiftRRule, nil
}

// CreateShiftsCmd creates the createShifts command
func CreateShiftsCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "createShifts <title> <start> <end>",
		Short: "Create a shift, or a recurring series of shifts",
		Long: `Create a shift, or a recurring series of shifts.

Start and end are UTC date-times (YYYY-MM-DDTHH:MM). With --rrule or --recurring one
shift is created per occurrence, capped at --max (or maxRecurrenceOccurrences).`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rruleFlag, _ := cmd.Flags().GetString("rrule")
			recurring, _ := cmd.Flags().GetBool("recurring")
			maxFlag, _ := cmd.Flags().GetInt("max")
			location, _ := cmd.Flags().GetString("location")
			capacity, _ := cmd.Flags().GetInt("capacity")

			start, err := parseDateTime(args[1])
			if err != nil {
				return err
			}
			end, err := parseDateTime(args[2])
			if err != nil {
				return err
			}
			rule, err := shiftRule(app.Cfg, rruleFlag, recurring)
			if err != nil {
				return err
			}

			cfg := app.Cfg
			if maxFlag > 0 {
				override := *app.Cfg
				override.MaxRecurrenceOccurrences = maxFlag
				cfg = &override
			}

			var maxVolunteers *int
			if capacity > 0 {
				maxVolunteers = &capacity
			}

			actor, err := app.Actor()
			if err != nil {
				return err
			}

			shifts, err := services.CreateShifts(app.Ctx, app.Database, cfg, app.Logger, actor, services.ShiftInput{
				Title:         args[0],
				Start:         start,
				End:           end,
				Location:      location,
				MaxVolunteers: maxVolunteers,
				RRule:         rule,
			})
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Created %d shifts\n\n", len(shifts))
			for i, s := range shifts {
				fmt.Printf("  %2d. %s %s-%s  (%s)\n", i+1, s.Start.Format("2006-01-02 (Monday)"), s.Start.Format("15:04"), s.End.Format("15:04"), s.ID)
			}
			if len(shifts) > 0 && shifts[0].RecurringGroupID != "" {
				fmt.Printf("\nSeries: %s\n", shifts[0].RecurringGroupID)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().String("rrule", "", "RFC 5545 recurrence rule, e.g. FREQ=WEEKLY;BYDAY=SA")
	cmd.Flags().Bool("recurring", false, "Repeat using defaultShiftRRule from the config")
	cmd.Flags().Int("max", 0, "Maximum number of occurrences")
	cmd.Flags().String("location", "", "Shift location")
	cmd.Flags().Int("capacity", 0, "Maximum volunteers (0 for unlimited)")

	return cmd
}

// ListShiftsCmd creates the listShifts command
func ListShiftsCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listShifts",
		Short: "List shifts with their rosters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fromFlag, _ := cmd.Flags().GetString("from")
			toFlag, _ := cmd.Flags().GetString("to")
			mine, _ := cmd.Flags().GetBool("mine")

			all, err := app.Database.GetShifts(app.Ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch shifts: %w", err)
			}

			shifts := all
			if fromFlag != "" || toFlag != "" {
				from := time.Time{}
				to := time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
				if fromFlag != "" {
					if from, err = parseDate(fromFlag); err != nil {
						return err
					}
				}
				if toFlag != "" {
					if to, err = parseDate(toFlag); err != nil {
						return err
					}
					to = to.AddDate(0, 0, 1)
				}
				shifts = scheduling.ShiftsBetween(shifts, from, to)
			}
			if mine {
				actor, err := app.Actor()
				if err != nil {
					return err
				}
				shifts = scheduling.ShiftsForUser(shifts, actor.ID)
			}

			app.Logger.Debug("listShifts command", zap.Int("total", len(all)), zap.Int("shown", len(shifts)))

			fmt.Printf("\nFound %d shifts:\n\n", len(shifts))
			for _, s := range shifts {
				places := fmt.Sprintf("%d", len(s.AssignedUsers))
				if s.MaxVolunteers != nil {
					places = fmt.Sprintf("%d/%d", len(s.AssignedUsers), *s.MaxVolunteers)
				}
				names := make([]string, 0, len(s.AssignedUsers))
				for _, a := range s.AssignedUsers {
					names = append(names, a.UserName)
				}
				fmt.Printf("- %s %s-%s %-24s [%s] %s  (%s)\n",
					s.Start.Format("Mon 2006-01-02"),
					s.Start.Format("15:04"),
					s.End.Format("15:04"),
					s.Title,
					places,
					strings.Join(names, ", "),
					s.ID,
				)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().String("from", "", "First day to include (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Last day to include (YYYY-MM-DD)")
	cmd.Flags().Bool("mine", false, "Only shifts the acting user is on")

	return cmd
}

// ValidateRostersCmd creates the validateRosters command
func ValidateRostersCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validateRosters",
		Short: "Check every shift roster against the sign-up rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			violations, err := services.ValidateShiftRosters(app.Ctx, app.Database, app.Logger)
			if err != nil {
				return err
			}

			if len(violations) == 0 {
				fmt.Printf("\n✓ All rosters satisfy the sign-up rules\n\n")
				return nil
			}

			fmt.Printf("\n⚠️  %d rule violations:\n\n", len(violations))
			for _, v := range violations {
				fmt.Printf("  ✗ %s %s [%s] %s\n", v.ShiftStart, v.ShiftID, v.RuleName, v.Description)
			}
			fmt.Println()
			return nil
		},
	}
}

// PublishScheduleCmd creates the publishSchedule command
func PublishScheduleCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "publishSchedule <from> <to>",
		Short: "Publish the shifts between two dates to the schedule sheet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseDate(args[0])
			if err != nil {
				return err
			}
			to, err := parseDate(args[1])
			if err != nil {
				return err
			}

			actor, err := app.Actor()
			if err != nil {
				return err
			}

			client, err := app.SheetsClient()
			if err != nil {
				return err
			}

			schedule, err := services.PublishSchedule(app.Ctx, app.Database, client, app.Cfg, app.Logger, actor, from, to)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Published %d shifts for %s to %s\n\n", len(schedule.Rows), schedule.From, schedule.To)
			return nil
		},
	}
}
