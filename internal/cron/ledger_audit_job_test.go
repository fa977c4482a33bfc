package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/campusmart/campusmart-backend/internal/ledger"
	"github.com/campusmart/campusmart-backend/pkg/logger"
	"github.com/campusmart/campusmart-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeUserPager struct {
	ids     []uuid.UUID
	cursors []uuid.UUID
}

func (f *fakeUserPager) ListIDsAfter(_ context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	f.cursors = append(f.cursors, after)
	start := 0
	if after != uuid.Nil {
		for i, id := range f.ids {
			if id == after {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(f.ids) {
		end = len(f.ids)
	}
	return f.ids[start:end], nil
}

type fakeReplayer struct {
	drifted map[uuid.UUID]bool
	failing map[uuid.UUID]bool
	seen    []uuid.UUID
}

func (f *fakeReplayer) Replay(_ context.Context, userID uuid.UUID) (*ledger.Reconciliation, error) {
	f.seen = append(f.seen, userID)
	if f.failing[userID] {
		return nil, errors.New("db down")
	}
	rec := &ledger.Reconciliation{
		UserID:            userID,
		StoredAvailable:   decimal.NewFromInt(100),
		ReplayedAvailable: decimal.NewFromInt(100),
		Consistent:        true,
	}
	if f.drifted[userID] {
		rec.ReplayedAvailable = decimal.NewFromInt(90)
		rec.Consistent = false
	}
	return rec, nil
}

func newUserIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}

func TestLedgerAuditJobPagesThroughAllUsers(t *testing.T) {
	ids := newUserIDs(5)
	pager := &fakeUserPager{ids: ids}
	replayer := &fakeReplayer{drifted: map[uuid.UUID]bool{ids[3]: true}}
	reg := prometheus.NewRegistry()

	job, err := NewLedgerAuditJob(LedgerAuditJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Users:     pager,
		Ledger:    replayer,
		Metrics:   metrics.NewJobs(reg),
		BatchSize: 2,
	})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))

	require.Equal(t, ids, replayer.seen)
	require.Equal(t, []uuid.UUID{uuid.Nil, ids[1], ids[3]}, pager.cursors)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var mismatches float64
	for _, mf := range mfs {
		if mf.GetName() == "ledger_replay_mismatches_total" {
			mismatches = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	require.Equal(t, float64(1), mismatches)
}

func TestLedgerAuditJobContinuesPastReplayFailures(t *testing.T) {
	ids := newUserIDs(3)
	replayer := &fakeReplayer{failing: map[uuid.UUID]bool{ids[0]: true}}

	job, err := NewLedgerAuditJob(LedgerAuditJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Users:  &fakeUserPager{ids: ids},
		Ledger: replayer,
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), ids[0].String())
	require.Len(t, replayer.seen, 3)
}

func TestLedgerAuditJobRequiresDependencies(t *testing.T) {
	_, err := NewLedgerAuditJob(LedgerAuditJobParams{Logger: logger.New(logger.Options{ServiceName: "test"})})
	require.Error(t, err)
}
