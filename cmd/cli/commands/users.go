package commands

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/core/services"
	"github.com/jakechorley/mentor-bridge/pkg/core/visibility"
)

func printTemporaryPassword(email, temporary string) {
	if temporary == "" {
		return
	}
	fmt.Printf("Temporary password for %s: %s\n", email, temporary)
	fmt.Println("It is shown once and must be changed at first login.")
}

// BootstrapAdminCmd creates the bootstrapAdmin command
func BootstrapAdminCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrapAdmin <name> <email>",
		Short: "Create the first admin account of an empty system",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, temporary, err := services.BootstrapAdmin(app.Ctx, app.Database, app.Logger, args[0], args[1])
			if errors.Is(err, services.ErrAlreadyBootstrapped) {
				return fmt.Errorf("%w: use createUser --as <admin email> instead", err)
			}
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Admin %s created (%s)\n", user.Email, user.ID)
			printTemporaryPassword(user.Email, temporary)
			fmt.Println()
			return nil
		},
	}
}

// CreateUserCmd creates the createUser command
func CreateUserCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "createUser <name> <email> <role>",
		Short: "Create a user account with a temporary password",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			nickname, _ := cmd.Flags().GetString("nickname")
			phone, _ := cmd.Flags().GetString("phone")
			extra, _ := cmd.Flags().GetStringSlice("extra-role")

			actor, err := app.Actor()
			if err != nil {
				return err
			}

			roles := make([]model.Role, 0, len(extra))
			for _, r := range extra {
				roles = append(roles, model.Role(r))
			}

			user, temporary, err := services.CreateUser(app.Ctx, app.Database, app.Logger, actor, services.UserInput{
				Name:     args[0],
				Nickname: nickname,
				Email:    args[1],
				Role:     model.Role(args[2]),
				Roles:    roles,
				Phone:    phone,
			})
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ User %s created (%s)\n", user.Email, user.ID)
			printTemporaryPassword(user.Email, temporary)
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().String("nickname", "", "Preferred name")
	cmd.Flags().String("phone", "", "Phone number")
	cmd.Flags().StringSlice("extra-role", nil, "Additional roles (repeatable)")

	return cmd
}

// ListUsersCmd creates the listUsers command
func ListUsersCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "listUsers",
		Short: "List the user accounts visible to the acting user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := app.Actor()
			if err != nil {
				return err
			}

			all, err := app.Database.GetUsers(app.Ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch users: %w", err)
			}
			users := visibility.VisibleUsersForUser(all, actor)
			sort.SliceStable(users, func(i, j int) bool { return users[i].Email < users[j].Email })

			app.Logger.Debug("listUsers command", zap.Int("total", len(all)), zap.Int("visible", len(users)))

			fmt.Printf("\nFound %d users:\n\n", len(users))
			for _, u := range users {
				flag := ""
				if u.RequiresPasswordChange {
					flag = " (password change pending)"
				}
				fmt.Printf("- %-28s %-32s %-16s %s%s\n", u.DisplayName(), u.Email, u.Role, u.ID, flag)
			}
			fmt.Println()
			return nil
		},
	}
}

// ResetPasswordCmd creates the resetPassword command
func ResetPasswordCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resetPassword <user_id>",
		Short: "Issue a new temporary password for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := app.Actor()
			if err != nil {
				return err
			}

			temporary, err := services.ResetPassword(app.Ctx, app.Database, app.Cfg, app.Logger, actor, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Password reset\n")
			printTemporaryPassword(args[0], temporary)
			fmt.Println()
			return nil
		},
	}
}

// ImportUsersCmd creates the importUsers command
func ImportUsersCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "importUsers <spreadsheet_id>",
		Short: "Create accounts for every new row of a staff roster sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tab, _ := cmd.Flags().GetString("tab")

			actor, err := app.Actor()
			if err != nil {
				return err
			}
			if err := requireAction(actor, visibility.ActionManageUsers); err != nil {
				return err
			}

			client, err := app.SheetsClient()
			if err != nil {
				return err
			}

			result, err := services.ImportUsers(app.Ctx, app.Database, client, app.Logger, actor, args[0], tab)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Roster imported: %d created, %d already registered, %d failed\n\n",
				len(result.Created), len(result.Existing), len(result.Failed))

			for _, created := range result.Created {
				fmt.Printf("  ✓ %s (%s) temporary password: %s\n", created.User.Email, created.User.Role, created.TemporaryPassword)
			}

			if len(result.Failed) > 0 {
				rows := make([]int, 0, len(result.Failed))
				for row := range result.Failed {
					rows = append(rows, row)
				}
				sort.Ints(rows)

				fmt.Println()
				for _, row := range rows {
					fmt.Printf("  ✗ row %d: %s\n", row, result.Failed[row])
				}
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().String("tab", "Staff", "Roster tab name")

	return cmd
}
