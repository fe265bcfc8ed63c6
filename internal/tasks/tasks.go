package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TypeTouchLastConnection = "users:touch_last_connection"
	TypePurgeInactiveUsers  = "users:purge_inactive"
)

// Enqueuer is the subset of *asynq.Client used by producers
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TouchPayload records a login or logout time for a user
type TouchPayload struct {
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

// PurgePayload carries the inactivity threshold of a purge run
type PurgePayload struct {
	MaxAgeSeconds int64 `json:"max_age_seconds"`
}

// MaxAge returns the threshold as a duration
func (p PurgePayload) MaxAge() time.Duration {
	return time.Duration(p.MaxAgeSeconds) * time.Second
}

// NewTouchLastConnectionTask creates a task updating a user's last connection
func NewTouchLastConnectionTask(userID string, at time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(TouchPayload{UserID: userID, At: at.UTC()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypeTouchLastConnection, payload, asynq.MaxRetry(5)), nil
}

// NewPurgeInactiveUsersTask creates a task removing users idle for longer than maxAge
func NewPurgeInactiveUsersTask(maxAge time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(PurgePayload{MaxAgeSeconds: int64(maxAge / time.Second)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypePurgeInactiveUsers, payload, asynq.MaxRetry(3)), nil
}

// ParseTouchPayload parses a touch task payload
func ParseTouchPayload(task *asynq.Task) (TouchPayload, error) {
	var payload TouchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if payload.UserID == "" {
		return payload, fmt.Errorf("missing user_id: %w", asynq.SkipRetry)
	}
	return payload, nil
}

// ParsePurgePayload parses a purge task payload
func ParsePurgePayload(task *asynq.Task) (PurgePayload, error) {
	var payload PurgePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if payload.MaxAgeSeconds <= 0 {
		return payload, fmt.Errorf("max_age_seconds must be positive: %w", asynq.SkipRetry)
	}
	return payload, nil
}
