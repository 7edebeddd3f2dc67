package activity

import (
	"context"
	"log/slog"

	"github.com/campuskit/userservice/internal/shared"
	"github.com/campuskit/userservice/jobs"
)

// Recorder writes activity entries without ever failing the operation that
// produced them. Entries go through the job queue when possible and fall back
// to a synchronous insert when enqueueing fails.
type Recorder struct {
	queue  *jobs.Client
	repo   Repository
	logger *slog.Logger
}

// NewRecorder constructs a Recorder. The queue may be nil, in which case all
// writes are synchronous.
func NewRecorder(queue *jobs.Client, repo Repository, logger *slog.Logger) *Recorder {
	return &Recorder{queue: queue, repo: repo, logger: logger}
}

// Record persists one entry. Errors are logged and swallowed: activity
// logging never rolls back or fails the primary operation.
func (r *Recorder) Record(ctx context.Context, event shared.ActivityEvent) {
	payload := jobs.ActivityRecordPayload{
		UserID:    event.UserID,
		Action:    event.Action,
		Detail:    event.Detail,
		IPAddress: event.IP,
		UserAgent: event.UserAgent,
		Success:   event.Success,
	}
	if r.queue != nil {
		if _, err := r.queue.EnqueueActivityRecord(ctx, payload); err == nil {
			return
		} else if r.logger != nil {
			r.logger.Warn("activity enqueue failed, writing synchronously",
				slog.String("action", event.Action), slog.Any("error", err))
		}
	}
	rec := &Record{
		UserID:    payload.UserID,
		Action:    payload.Action,
		Detail:    payload.Detail,
		IPAddress: payload.IPAddress,
		UserAgent: payload.UserAgent,
		Success:   payload.Success,
	}
	if err := r.repo.Insert(ctx, rec); err != nil && r.logger != nil {
		r.logger.Error("activity record lost",
			slog.String("action", event.Action),
			slog.Int64("user_id", event.UserID),
			slog.Any("error", err))
	}
}

// TaskStore adapts Repository to the worker-side persistence interface.
type TaskStore struct {
	Repo Repository
}

// InsertActivity persists a dequeued activity payload.
func (s TaskStore) InsertActivity(ctx context.Context, payload jobs.ActivityRecordPayload) error {
	return s.Repo.Insert(ctx, &Record{
		UserID:    payload.UserID,
		Action:    payload.Action,
		Detail:    payload.Detail,
		IPAddress: payload.IPAddress,
		UserAgent: payload.UserAgent,
		Success:   payload.Success,
	})
}
