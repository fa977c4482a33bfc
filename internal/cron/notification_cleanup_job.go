package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/campusmart/campusmart-backend/pkg/logger"
	"github.com/campusmart/campusmart-backend/pkg/metrics"
)

const (
	defaultNotificationRetention = 30 * 24 * time.Hour
	minNotificationRetention     = 24 * time.Hour
)

type readNotificationPruner interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	Repository readNotificationPruner
	Metrics    *metrics.Jobs
	// Retention is how long a read notification is kept. Zero means 30 days;
	// anything shorter than a day is raised to a day.
	Retention time.Duration
}

// NewNotificationCleanupJob deletes read notifications older than the
// retention window. Unread rows are never touched.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Repository == nil:
		return nil, fmt.Errorf("notifications repository required")
	}
	keep := params.Retention
	if keep == 0 {
		keep = defaultNotificationRetention
	}
	keep = max(keep, minNotificationRetention)
	return &notificationCleanupJob{
		logg:    params.Logger,
		pruner:  params.Repository,
		metrics: params.Metrics,
		keep:    keep,
		clock:   time.Now,
	}, nil
}

type notificationCleanupJob struct {
	logg    *logger.Logger
	pruner  readNotificationPruner
	metrics *metrics.Jobs
	keep    time.Duration
	clock   func() time.Time
}

func (j *notificationCleanupJob) Name() string { return "notification-cleanup" }

func (j *notificationCleanupJob) cutoff() time.Time {
	return j.clock().UTC().Add(-j.keep)
}

func (j *notificationCleanupJob) Run(ctx context.Context) error {
	cutoff := j.cutoff()
	n, err := j.pruner.DeleteReadBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune read notifications before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	j.metrics.NotificationsPruned(n)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"retention": j.keep.String(),
		"pruned":    n,
	}), "cron.notifications.pruned")
	return nil
}
