package workers

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-dev/storefront/internal/database"
	"github.com/storefront-dev/storefront/internal/tasks"
	"github.com/storefront-dev/storefront/internal/users"
)

func newUsersService(t *testing.T) *users.Service {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "workers.sqlite"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return users.NewService(db, zerolog.Nop())
}

type recordingEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (r *recordingEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func (r *recordingEnqueuer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

func TestHandleTouchLastConnection(t *testing.T) {
	svc := newUsersService(t)
	ctx := context.Background()
	user, err := svc.Register(ctx, users.RegisterParams{Email: "ada@shop.test", Password: "hunter2"})
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	task, err := tasks.NewTouchLastConnectionTask(user.ID, at)
	require.NoError(t, err)
	require.NoError(t, HandleTouchLastConnection(ctx, task, svc, zerolog.Nop()))

	reloaded, err := svc.Get(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastConnection)
	assert.True(t, at.Equal(*reloaded.LastConnection))

	ghost, err := tasks.NewTouchLastConnectionTask("missing", at)
	require.NoError(t, err)
	assert.ErrorIs(t, HandleTouchLastConnection(ctx, ghost, svc, zerolog.Nop()), asynq.SkipRetry)
}

func TestHandlePurgeInactiveUsers(t *testing.T) {
	svc := newUsersService(t)
	ctx := context.Background()
	user, err := svc.Register(ctx, users.RegisterParams{Email: "idle@shop.test", Password: "hunter2"})
	require.NoError(t, err)
	require.NoError(t, svc.TouchLastConnection(ctx, user.ID, time.Now().Add(-96*time.Hour)))

	task, err := tasks.NewPurgeInactiveUsersTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, HandlePurgeInactiveUsers(ctx, task, svc, zerolog.Nop()))

	_, err = svc.Get(ctx, user.ID)
	assert.ErrorIs(t, err, users.ErrUserNotFound)
}

func TestStartPurgeScheduler(t *testing.T) {
	t.Run("invalid schedule", func(t *testing.T) {
		_, err := StartPurgeScheduler(&recordingEnqueuer{}, "every tuesday", time.Hour, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("enqueues on schedule", func(t *testing.T) {
		client := &recordingEnqueuer{}
		c, err := StartPurgeScheduler(client, "@every 1s", time.Hour, zerolog.Nop())
		require.NoError(t, err)
		defer c.Stop()

		require.Eventually(t, func() bool { return client.count() > 0 }, 3*time.Second, 50*time.Millisecond)

		client.mu.Lock()
		task := client.tasks[0]
		client.mu.Unlock()
		assert.Equal(t, tasks.TypePurgeInactiveUsers, task.Type())
		payload, err := tasks.ParsePurgePayload(task)
		require.NoError(t, err)
		assert.Equal(t, time.Hour, payload.MaxAge())
	})

	t.Run("duplicate is not an error", func(t *testing.T) {
		client := &recordingEnqueuer{err: asynq.ErrDuplicateTask}
		enqueuePurge(client, time.Hour, zerolog.Nop())
		assert.Zero(t, client.count())
	})
}
