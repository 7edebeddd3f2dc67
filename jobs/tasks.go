package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueActivity carries deferred activity-log writes at low priority.
	QueueActivity = "activity"
	// TaskTypeActivityRecord is the task type for deferred activity-log writes.
	TaskTypeActivityRecord = "activity:record"
)

// ActivityRecordPayload carries one activity-log entry to the worker.
type ActivityRecordPayload struct {
	UserID    int64  `json:"user_id"`
	Action    string `json:"action"`
	Detail    string `json:"detail,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Success   bool   `json:"success"`
}

// ActivityStore persists activity entries on the worker side.
type ActivityStore interface {
	InsertActivity(ctx context.Context, payload ActivityRecordPayload) error
}

// NewActivityRecordTask constructs an Asynq task.
func NewActivityRecordTask(payload ActivityRecordPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeActivityRecord, data), nil
}

// NewActivityRecordHandler builds the handler processing
// TaskTypeActivityRecord tasks. Malformed payloads are dropped rather than
// retried.
func NewActivityRecordHandler(store ActivityStore) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ActivityRecordPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		return store.InsertActivity(ctx, payload)
	}
}
