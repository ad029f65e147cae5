package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/pricewatch/pricewatch/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionsPurge removes expired session rows.
	TaskSessionsPurge = "sessions:purge"
	// TaskPriceSnapshot records a daily price point for active products.
	TaskPriceSnapshot = "pricehist:snapshot"
)

// SessionPurger deletes sessions that expired before the given time.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// PriceSnapshotter writes the daily price snapshot for a given day.
type PriceSnapshotter interface {
	SnapshotDaily(ctx context.Context, day time.Time) (int64, error)
}

// SnapshotPayload carries scheduling metadata for a price snapshot run.
type SnapshotPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSessionsPurgeTask constructs an Asynq task for session cleanup.
func NewSessionsPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskSessionsPurge, nil, asynq.Queue(QueueDefault))
}

// NewPriceSnapshotTask constructs an Asynq task for the daily snapshot.
func NewPriceSnapshotTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SnapshotPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPriceSnapshot, body, asynq.Queue(QueueDefault)), nil
}

// HandleSessionsPurge builds the handler for TaskSessionsPurge.
func HandleSessionsPurge(purger SessionPurger, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("sessions_purge")
		removed, err := purger.PurgeExpiredSessions(ctx, time.Now())
		if err != nil {
			logger.Error("session purge failed", slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("session purge done", slog.Int64("removed", removed))
		return tracker.End(nil)
	}
}

// HandlePriceSnapshot builds the handler for TaskPriceSnapshot.
func HandlePriceSnapshot(snapshotter PriceSnapshotter, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SnapshotPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		day := payload.ScheduledFor
		if day.IsZero() {
			day = time.Now()
		}
		tracker := metrics.Track("price_snapshot")
		points, err := snapshotter.SnapshotDaily(ctx, day)
		if err != nil {
			logger.Error("price snapshot failed", slog.Any("error", err))
			return tracker.End(err)
		}
		metrics.AddSnapshotPoints(points)
		logger.Info("price snapshot done",
			slog.String("day", day.Format("2006-01-02")),
			slog.Int64("points", points))
		return tracker.End(nil)
	}
}
