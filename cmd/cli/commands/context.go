package commands

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/mentor-bridge/internal/config"
	"github.com/jakechorley/mentor-bridge/pkg/changefeed"
	"github.com/jakechorley/mentor-bridge/pkg/clients/sheetsclient"
	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/db"
	"github.com/jakechorley/mentor-bridge/pkg/postgres"
	"github.com/jakechorley/mentor-bridge/pkg/session"
)

// errNoActor is returned by commands that act on behalf of a user when --as is missing
var errNoActor = errors.New("this command needs --as <email> to identify the acting user")

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Cfg      *config.Config
	Env      string
	ActingAs string
	Database db.Database
	Postgres *postgres.DB
	Feed     changefeed.Feed
	Sessions *session.Manager
	Logger   *zap.Logger
	Ctx      context.Context

	sheetsClient *sheetsclient.Client
}

// Actor loads the account named by --as
func (app *AppContext) Actor() (model.User, error) {
	if app.ActingAs == "" {
		return model.User{}, errNoActor
	}
	u, err := app.Database.GetUserByEmail(app.Ctx, model.NormalizeEmail(app.ActingAs))
	if err != nil {
		return model.User{}, fmt.Errorf("failed to load acting user %s: %w", app.ActingAs, err)
	}
	return *u, nil
}

// SheetsClient creates the Google Sheets client on first use. The OAuth flow may open a
// browser, so commands that never touch Sheets never trigger it.
func (app *AppContext) SheetsClient() (*sheetsclient.Client, error) {
	if app.sheetsClient != nil {
		return app.sheetsClient, nil
	}

	app.Logger.Info("Loading OAuth client configuration")
	oauthCfg, err := config.LoadOAuthClientWithEnv(app.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to load OAuth client config: %w", err)
	}

	app.Logger.Info("Initializing sheets client")
	client, err := sheetsclient.NewClient(app.Ctx, oauthCfg, app.Env, app.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	app.sheetsClient = client
	return client, nil
}
