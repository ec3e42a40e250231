package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/mentor-bridge/pkg/core/lifecycle"
	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/core/services"
	"github.com/jakechorley/mentor-bridge/pkg/core/visibility"
)

func actorOf(u model.User) lifecycle.Actor {
	return lifecycle.Actor{ID: u.ID, Name: u.DisplayName()}
}

// requireAction fails unless u holds action
func requireAction(u model.User, action visibility.Action) error {
	if !visibility.UserCan(u, action) {
		return fmt.Errorf("%w: %s requires the %s permission", services.ErrForbidden, u.Email, action)
	}
	return nil
}

func parseStatuses(raw string) ([]model.Status, error) {
	if raw == "" {
		return nil, nil
	}
	var statuses []model.Status
	for _, s := range strings.Split(raw, ",") {
		status := model.Status(strings.TrimSpace(s))
		if !status.IsValid() {
			return nil, fmt.Errorf("unknown status %q", s)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// ListParticipantsCmd creates the listParticipants command
func ListParticipantsCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listParticipants",
		Short: "List the participants visible to the acting user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statusFlag, _ := cmd.Flags().GetString("status")
			statuses, err := parseStatuses(statusFlag)
			if err != nil {
				return err
			}

			actor, err := app.Actor()
			if err != nil {
				return err
			}

			all, err := app.Database.GetParticipants(app.Ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch participants: %w", err)
			}
			visible := visibility.VisibleParticipantsForUser(all, actor)

			app.Logger.Debug("listParticipants command",
				zap.Int("visible", len(visible)),
				zap.String("status_filter", statusFlag))

			now := time.Now()
			count := 0
			fmt.Println()
			for _, p := range visible {
				if len(statuses) > 0 && !model.HasStatus(statuses, p.Status) {
					continue
				}
				count++
				mentor := ""
				if p.AssignedMentor != "" {
					mentor = " mentor=" + p.AssignedMentor
				}
				fmt.Printf("  #%-4d %-24s %-28s age %-3d out %4d days%s  (%s)\n",
					p.ParticipantNumber,
					p.FullName(),
					lifecycle.StatusLabel(p.Status),
					p.Age(now),
					p.TimeOut(now),
					mentor,
					p.ID,
				)
			}
			fmt.Printf("\n%d participants\n\n", count)
			return nil
		},
	}

	cmd.Flags().String("status", "", "Comma-separated statuses to include")

	return cmd
}

// TransitionCmd creates the transition command
func TransitionCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transition <participant_id> <transition>",
		Short: "Apply a status transition to one participant",
		Long: fmt.Sprintf(`Apply a status transition to one participant.

Transitions: %s`, joinTransitions()),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mentorID, _ := cmd.Flags().GetString("mentor")

			transition, err := lifecycle.ParseTransition(args[1])
			if err != nil {
				return err
			}

			actor, err := app.Actor()
			if err != nil {
				return err
			}
			if err := requireAction(actor, services.TransitionPermission(transition)); err != nil {
				return err
			}

			p, err := services.TransitionParticipant(app.Ctx, app.Database, app.Cfg, app.Logger, args[0], transition, mentorID, actorOf(actor))
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ %s is now %s\n\n", p.FullName(), lifecycle.StatusLabel(p.Status))
			return nil
		},
	}

	cmd.Flags().String("mentor", "", "Mentor user id for assign_mentor and reassign_mentor")

	return cmd
}

func joinTransitions() string {
	names := make([]string, 0, len(lifecycle.Transitions()))
	for _, t := range lifecycle.Transitions() {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}

func printBulkOutcomes(outcomes []services.BulkOutcome) {
	counts := services.CountResults(outcomes)
	fmt.Printf("\n✓ %d moved, %d skipped, %d failed\n\n",
		counts[services.BulkMoved], counts[services.BulkSkipped], counts[services.BulkFailed])
	for _, o := range outcomes {
		if o.Result == services.BulkMoved {
			continue
		}
		fmt.Printf("  %-8s %s: %v\n", o.Result, o.ID, o.Err)
	}
	if counts[services.BulkSkipped]+counts[services.BulkFailed] > 0 {
		fmt.Println()
	}
}

// BulkMoveCmd creates the bulkMove command
func BulkMoveCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "bulkMove <participant_id>...",
		Short: "Move bridge-stage participants to pending mentor",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := app.Actor()
			if err != nil {
				return err
			}
			if err := requireAction(actor, visibility.ActionBulkMoveToMentorship); err != nil {
				return err
			}

			outcomes := services.BulkMoveToMentorship(app.Ctx, app.Database, app.Cfg, app.Logger, args, actorOf(actor))
			printBulkOutcomes(outcomes)
			return nil
		},
	}
}

// BulkAssignCmd creates the bulkAssign command
func BulkAssignCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "bulkAssign <mentor_id> <participant_id>...",
		Short: "Assign participants to a mentor",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := app.Actor()
			if err != nil {
				return err
			}
			if err := requireAction(actor, visibility.ActionAssignMentor); err != nil {
				return err
			}

			outcomes, err := services.BulkAssignToMentor(app.Ctx, app.Database, app.Cfg, app.Logger, args[1:], args[0], actorOf(actor))
			if err != nil {
				return err
			}
			printBulkOutcomes(outcomes)
			return nil
		},
	}
}

// AddNoteCmd creates the addNote command
func AddNoteCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "addNote <participant_id> <note>",
		Short: "Add a note to a participant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := app.Actor()
			if err != nil {
				return err
			}
			if err := requireAction(actor, visibility.ActionAddNote); err != nil {
				return err
			}

			p, err := services.AddNote(app.Ctx, app.Database, app.Cfg, app.Logger, args[0], args[1], actorOf(actor))
			if err != nil {
				return err
			}
			fmt.Printf("\n✓ Note added to %s (%d notes)\n\n", p.FullName(), len(p.Notes))
			return nil
		},
	}
}

// StatsCmd creates the stats command
func StatsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the participant pipeline summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := app.Actor()
			if err != nil {
				return err
			}
			if err := requireAction(actor, visibility.ActionViewStats); err != nil {
				return err
			}

			stats, err := services.LoadStats(app.Ctx, app.Database, time.Now().UTC())
			if err != nil {
				return err
			}

			fmt.Printf("\nParticipants: %d\n\n", stats.Total)
			for _, s := range model.AllStatuses {
				fmt.Printf("  %-28s %d\n", lifecycle.StatusLabel(s), stats.ByStatus[s])
			}
			fmt.Printf("\nWaiting for bridge contact: %d\n", stats.BridgeQueue)
			fmt.Printf("Waiting for a mentor:       %d\n", stats.MentorQueue)
			fmt.Printf("Average time out:           %.1f days\n", stats.AverageTimeOutDays)

			if len(stats.MenteesPerMentor) > 0 {
				fmt.Println("\nMentees per mentor:")
				for mentor, n := range stats.MenteesPerMentor {
					fmt.Printf("  %-36s %d\n", mentor, n)
				}
			}
			fmt.Println()
			return nil
		},
	}
}
