package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/storefront-dev/storefront/internal/tasks"
	"github.com/storefront-dev/storefront/internal/users"
)

// HandleTouchLastConnection records a user's last login or logout
func HandleTouchLastConnection(ctx context.Context, t *asynq.Task, svc *users.Service, logger zerolog.Logger) error {
	payload, err := tasks.ParseTouchPayload(t)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	if err := svc.TouchLastConnection(ctx, payload.UserID, payload.At); err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			// User was removed after the task was enqueued
			logger.Warn().Str("user_id", payload.UserID).Msg("Skipping last connection update for unknown user")
			return fmt.Errorf("user %s: %w", payload.UserID, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to update last connection: %w", err)
	}

	logger.Debug().Str("user_id", payload.UserID).Time("at", payload.At).Msg("Last connection updated")
	return nil
}

// HandlePurgeInactiveUsers removes users idle for longer than the payload's threshold
func HandlePurgeInactiveUsers(ctx context.Context, t *asynq.Task, svc *users.Service, logger zerolog.Logger) error {
	payload, err := tasks.ParsePurgePayload(t)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	removed, err := svc.PurgeInactive(ctx, payload.MaxAge())
	if err != nil {
		return err
	}

	logger.Info().
		Int64("removed", removed).
		Dur("max_age", payload.MaxAge()).
		Msg("Inactive user purge finished")
	return nil
}
