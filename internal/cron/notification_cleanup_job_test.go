package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campusmart/campusmart-backend/pkg/logger"
	"github.com/campusmart/campusmart-backend/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPruner struct {
	cutoffs []time.Time
	rows    int64
	err     error
}

func (p *recordingPruner) DeleteReadBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	if p.err != nil {
		return 0, p.err
	}
	return p.rows, nil
}

func cleanupJobAt(t *testing.T, pruner *recordingPruner, keep time.Duration, at time.Time) *notificationCleanupJob {
	t.Helper()
	job, err := NewNotificationCleanupJob(NotificationCleanupJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: pruner,
		Metrics:    metrics.NewJobs(nil),
		Retention:  keep,
	})
	require.NoError(t, err)
	impl := job.(*notificationCleanupJob)
	impl.clock = func() time.Time { return at }
	return impl
}

func TestNotificationCleanupCutoffs(t *testing.T) {
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cases := map[string]struct {
		keep time.Duration
		want time.Time
	}{
		"default window":  {0, at.Add(-30 * 24 * time.Hour)},
		"configured":      {7 * 24 * time.Hour, at.Add(-7 * 24 * time.Hour)},
		"raised to a day": {time.Minute, at.Add(-24 * time.Hour)},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			pruner := &recordingPruner{rows: 5}
			job := cleanupJobAt(t, pruner, tc.keep, at)

			require.NoError(t, job.Run(context.Background()))
			require.Len(t, pruner.cutoffs, 1)
			assert.True(t, pruner.cutoffs[0].Equal(tc.want), "cutoff %s, want %s", pruner.cutoffs[0], tc.want)
		})
	}
}

func TestNotificationCleanupWrapsRepositoryErrors(t *testing.T) {
	cause := errors.New("db down")
	job := cleanupJobAt(t, &recordingPruner{err: cause}, 0, time.Now())

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "prune read notifications")
}

func TestNotificationCleanupRequiresDependencies(t *testing.T) {
	_, err := NewNotificationCleanupJob(NotificationCleanupJobParams{Repository: &recordingPruner{}})
	assert.Error(t, err)
	_, err = NewNotificationCleanupJob(NotificationCleanupJobParams{Logger: logger.New(logger.Options{ServiceName: "test"})})
	assert.Error(t, err)
}
