package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/mentor-bridge/pkg/clients/sheetsclient"
	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/core/visibility"
	"github.com/jakechorley/mentor-bridge/pkg/db"
)

// RosterClient reads staff rosters from a spreadsheet
type RosterClient interface {
	ListRoster(spreadsheetID, tab string) ([]sheetsclient.RosterEntry, error)
}

// ImportedUser is an account created by ImportUsers with its one-time temporary password
type ImportedUser struct {
	User              model.User
	TemporaryPassword string
}

// ImportResult summarises a roster import
type ImportResult struct {
	Created []ImportedUser

	// Existing lists emails already registered, which are left untouched
	Existing []string

	// Failed maps sheet row numbers to the reason the row was not imported
	Failed map[int]string
}

// ImportUsers creates an account for every roster entry whose email is not yet registered
func ImportUsers(
	ctx context.Context,
	database db.UserStore,
	roster RosterClient,
	logger *zap.Logger,
	actor model.User,
	spreadsheetID, tab string,
) (*ImportResult, error) {
	if err := requirePermission(actor, visibility.ActionManageUsers); err != nil {
		return nil, err
	}

	logger.Debug("Reading roster", zap.String("spreadsheet_id", spreadsheetID), zap.String("tab", tab))
	entries, err := roster.ListRoster(spreadsheetID, tab)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster: %w", err)
	}

	result := &ImportResult{Failed: make(map[int]string)}
	for _, entry := range entries {
		_, err := database.GetUserByEmail(ctx, entry.Email)
		if err == nil {
			result.Existing = append(result.Existing, entry.Email)
			continue
		}
		if !errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up %s: %w", entry.Email, err)
		}

		user, temporary, err := CreateUser(ctx, database, logger, actor, UserInput{
			Name:     entry.Name,
			Nickname: entry.Nickname,
			Email:    entry.Email,
			Role:     entry.Role,
			Roles:    entry.Roles,
			Phone:    entry.Phone,
		})
		if err != nil {
			var vErr *ValidationError
			if errors.As(err, &vErr) {
				result.Failed[entry.Row] = vErr.Error()
				continue
			}
			return nil, err
		}
		result.Created = append(result.Created, ImportedUser{User: *user, TemporaryPassword: temporary})
	}

	logger.Info("Roster imported",
		zap.Int("created", len(result.Created)),
		zap.Int("existing", len(result.Existing)),
		zap.Int("failed", len(result.Failed)),
		zap.String("actor_id", actor.ID))

	return result, nil
}
