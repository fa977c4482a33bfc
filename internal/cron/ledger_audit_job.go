package cron

import (
	"context"
	"fmt"

	"github.com/campusmart/campusmart-backend/internal/ledger"
	"github.com/campusmart/campusmart-backend/pkg/logger"
	"github.com/campusmart/campusmart-backend/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const (
	defaultAuditBatch = 200
	// A run stops collecting replay errors past this point; the rest are only counted.
	maxAuditErrors = 20
)

type userPager interface {
	ListIDsAfter(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

type ledgerReplayer interface {
	Replay(ctx context.Context, userID uuid.UUID) (*ledger.Reconciliation, error)
}

type LedgerAuditJobParams struct {
	Logger    *logger.Logger
	Users     userPager
	Ledger    ledgerReplayer
	Metrics   *metrics.Jobs
	BatchSize int
}

// NewLedgerAuditJob replays every user's ledger and reports wallets whose
// stored balances drifted from their entries. It never mutates balances.
func NewLedgerAuditJob(params LedgerAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultAuditBatch
	}
	return &ledgerAuditJob{
		logg:    params.Logger,
		users:   params.Users,
		ledger:  params.Ledger,
		metrics: params.Metrics,
		batch:   batch,
	}, nil
}

type ledgerAuditJob struct {
	logg    *logger.Logger
	users   userPager
	ledger  ledgerReplayer
	metrics *metrics.Jobs
	batch   int
}

func (j *ledgerAuditJob) Name() string { return "ledger-audit" }

func (j *ledgerAuditJob) Run(ctx context.Context) error {
	var (
		cursor     = uuid.Nil
		checked    int
		mismatched int
		failed     int
		errs       error
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ids, err := j.users.ListIDsAfter(ctx, cursor, j.batch)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		for _, id := range ids {
			rec, err := j.ledger.Replay(ctx, id)
			if err != nil {
				failed++
				if failed <= maxAuditErrors {
					errs = multierr.Append(errs, fmt.Errorf("replay %s: %w", id, err))
				}
				continue
			}
			checked++
			if !rec.Consistent {
				mismatched++
				j.metrics.LedgerMismatch()
				j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
					"user_id":            id.String(),
					"entries":            rec.Entries,
					"stored_available":   rec.StoredAvailable.String(),
					"replayed_available": rec.ReplayedAvailable.String(),
					"stored_pending":     rec.StoredPending.String(),
					"replayed_pending":   rec.ReplayedPending.String(),
				}), "ledger.audit.mismatch")
			}
		}
		if len(ids) < j.batch {
			break
		}
		cursor = ids[len(ids)-1]
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"users_checked":   checked,
		"mismatches":      mismatched,
		"replay_failures": failed,
	}), "ledger audit complete")
	if errs != nil {
		return fmt.Errorf("ledger audit: %w", errs)
	}
	return nil
}
