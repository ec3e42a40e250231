package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/mentor-bridge/pkg/api"
	"github.com/jakechorley/mentor-bridge/pkg/core/participants"
)

const shutdownTimeout = 10 * time.Second

// ServeCmd creates the serve command
func ServeCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = app.Cfg.HTTPAddr
			}

			if app.Sessions == nil {
				return fmt.Errorf("serve needs sessionSecret in the config or MENTOR_SESSION_SECRET")
			}

			if app.Env == "prod" {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx, stop := signal.NotifyContext(app.Ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			snapshot := participants.NewStore(app.Database, app.Logger)
			go func() {
				if err := snapshot.Run(ctx, app.Feed); err != nil {
					app.Logger.Error("Participant snapshot stopped", zap.Error(err))
				}
			}()

			handler := &api.Handler{
				DB:       app.Database,
				Sessions: app.Sessions,
				Config:   app.Cfg,
				Logger:   app.Logger,
				Snapshot: snapshot,
			}
			if app.Cfg.ScheduleSheetID != "" {
				client, err := app.SheetsClient()
				if err != nil {
					app.Logger.Warn("Schedule publishing disabled", zap.Error(err))
				} else {
					handler.Publisher = client
				}
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           api.NewRouter(handler),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				app.Logger.Info("HTTP server listening", zap.String("addr", addr))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			app.Logger.Info("Shutting down HTTP server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shut down http server: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().String("addr", "", "Listen address (defaults to httpAddr from the config)")

	return cmd
}

// MigrateCmd creates the migrate command
func MigrateCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Postgres == nil {
				return fmt.Errorf("migrate needs storage.backend: postgres")
			}
			if err := app.Postgres.RunMigrations(app.Ctx); err != nil {
				return err
			}
			fmt.Printf("\n✓ Database schema is up to date\n\n")
			return nil
		},
	}
}
