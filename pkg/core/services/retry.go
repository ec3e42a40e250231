package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/mentor-bridge/internal/config"
	"github.com/jakechorley/mentor-bridge/pkg/db"
)

// clock is the time source for history and timestamps
var clock = func() time.Time { return time.Now().UTC() }

// errUnchanged tells retryOnConflict callers the mutation was a no-op and nothing was written
var errUnchanged = errors.New("unchanged")

func conflictAttempts(cfg *config.Config) int {
	if cfg == nil || cfg.ConflictRetries <= 0 {
		return config.DefaultConflictRetries
	}
	return cfg.ConflictRetries
}

// retryOnConflict runs fn, re-running it while it fails with db.ErrVersionConflict.
// fn must re-read the record on every call so each attempt works from the latest version.
func retryOnConflict(ctx context.Context, cfg *config.Config, logger *zap.Logger, operation, id string, fn func() error) error {
	attempts := conflictAttempts(cfg)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn()
		if !errors.Is(err, db.ErrVersionConflict) {
			return err
		}

		logger.Debug("Version conflict, retrying",
			zap.String("operation", operation),
			zap.String("id", id),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts))
	}

	logger.Warn("Giving up after repeated version conflicts",
		zap.String("operation", operation),
		zap.String("id", id),
		zap.Int("attempts", attempts))
	return err
}
