package workers

import (
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/storefront-dev/storefront/internal/tasks"
)

// purgeUniqueWindow keeps overlapping worker replicas from enqueueing the same run twice
const purgeUniqueWindow = 5 * time.Minute

// StartPurgeScheduler enqueues an inactive-user purge on the given cron
// schedule (standard 5-field format). Stop the returned cron on shutdown.
func StartPurgeScheduler(client tasks.Enqueuer, schedule string, maxAge time.Duration, logger zerolog.Logger) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { enqueuePurge(client, maxAge, logger) }); err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", schedule, err)
	}
	c.Start()

	logger.Info().Str("schedule", schedule).Dur("max_age", maxAge).Msg("Inactive user purge scheduled")
	return c, nil
}

func enqueuePurge(client tasks.Enqueuer, maxAge time.Duration, logger zerolog.Logger) {
	task, err := tasks.NewPurgeInactiveUsersTask(maxAge)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create purge task")
		return
	}

	info, err := client.Enqueue(task, asynq.Unique(purgeUniqueWindow))
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			logger.Debug().Msg("Purge already enqueued")
			return
		}
		logger.Error().Err(err).Msg("Failed to enqueue purge task")
		return
	}

	logger.Info().Str("task_id", info.ID).Msg("Purge task enqueued")
}
