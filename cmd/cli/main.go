package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/mentor-bridge/cmd/cli/commands"
	"github.com/jakechorley/mentor-bridge/internal/config"
	"github.com/jakechorley/mentor-bridge/pkg/changefeed"
	"github.com/jakechorley/mentor-bridge/pkg/db"
	"github.com/jakechorley/mentor-bridge/pkg/memdb"
	"github.com/jakechorley/mentor-bridge/pkg/postgres"
	"github.com/jakechorley/mentor-bridge/pkg/session"
	"github.com/jakechorley/mentor-bridge/pkg/utils/logging"
)

var (
	env      string
	actingAs string
	app      = &commands.AppContext{}
	closers  []func()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mentorctl",
		Short: "Mentor Bridge CLI - Manage the bridge and mentorship pipeline",
		Long: `A CLI tool for managing participants leaving prison through bridge contact and
mentorship, staff accounts, tasks, shifts and meetings, and for running the HTTP API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			shutdown()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (required: test, prod, etc.)")
	rootCmd.MarkPersistentFlagRequired("env")
	rootCmd.PersistentFlags().StringVar(&actingAs, "as", "", "Email of the user to act as")

	// Participants
	rootCmd.AddCommand(commands.ListParticipantsCmd(app))
	rootCmd.AddCommand(commands.TransitionCmd(app))
	rootCmd.AddCommand(commands.BulkMoveCmd(app))
	rootCmd.AddCommand(commands.BulkAssignCmd(app))
	rootCmd.AddCommand(commands.AddNoteCmd(app))
	rootCmd.AddCommand(commands.StatsCmd(app))

	// Users
	rootCmd.AddCommand(commands.BootstrapAdminCmd(app))
	rootCmd.AddCommand(commands.CreateUserCmd(app))
	rootCmd.AddCommand(commands.ListUsersCmd(app))
	rootCmd.AddCommand(commands.ResetPasswordCmd(app))
	rootCmd.AddCommand(commands.ImportUsersCmd(app))

	// Schedule
	rootCmd.AddCommand(commands.CreateShiftsCmd(app))
	rootCmd.AddCommand(commands.ListShiftsCmd(app))
	rootCmd.AddCommand(commands.ValidateRostersCmd(app))
	rootCmd.AddCommand(commands.PublishScheduleCmd(app))

	// Operations
	rootCmd.AddCommand(commands.ServeCmd(app))
	rootCmd.AddCommand(commands.MigrateCmd(app))
	rootCmd.AddCommand(commands.InteractiveCmd(app))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initApp sets up logger, config, storage, change feed and sessions
func initApp() error {
	var err error
	app.Ctx = context.Background()
	app.Env = env
	app.ActingAs = actingAs

	// Initialize logger
	app.Logger, err = logging.InitLogger(env)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.Logger.Info("Starting application", zap.String("environment", env))

	// Load configuration
	app.Logger.Info("Loading configuration")
	app.Cfg, err = config.LoadWithEnv(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.Logger.Debug("Configuration loaded successfully", zap.String("backend", app.Cfg.Storage.Backend))

	// Initialize storage
	var base db.Database
	switch app.Cfg.Storage.Backend {
	case config.BackendPostgres:
		app.Logger.Info("Connecting to PostgreSQL")
		pg, err := postgres.NewDB(app.Ctx, app.Cfg.Storage.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		app.Postgres = pg
		closers = append(closers, pg.Close)
		base = pg
	default:
		app.Logger.Info("Opening file storage", zap.String("data_dir", app.Cfg.Storage.DataDir))
		mem, err := memdb.Open(app.Cfg.Storage.DataDir, app.Logger)
		if err != nil {
			return fmt.Errorf("failed to open file storage: %w", err)
		}
		closers = append(closers, mem.Close)
		base = mem
	}

	// Initialize change feed
	if app.Cfg.RedisURL != "" {
		app.Logger.Info("Connecting to Redis change feed")
		app.Feed, err = changefeed.NewRedis(app.Ctx, app.Cfg.RedisURL, app.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
	} else {
		app.Feed = changefeed.NewLocal()
	}
	closers = append(closers, func() {
		if err := app.Feed.Close(); err != nil {
			app.Logger.Warn("Failed to close change feed", zap.Error(err))
		}
	})

	app.Database = db.NewNotifying(base, app.Feed, app.Logger)
	app.Logger.Info("Storage initialized successfully")

	// Initialize sessions
	if app.Cfg.SessionSecret != "" {
		app.Sessions, err = session.NewManager(app.Cfg.SessionSecret, app.Cfg.SessionTTL)
		if err != nil {
			return fmt.Errorf("failed to create session manager: %w", err)
		}
	}

	return nil
}

// shutdown releases storage and the change feed in reverse order of opening
func shutdown() {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	closers = nil

	if app.Logger != nil {
		app.Logger.Sync()
	}
}
