package transfer

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// ItemRef identifies one item for the sweep.
type ItemRef struct {
	DocumentID int64
	ItemID     int64
}

// IntegrityRepository is the repository surface the sweep needs.
type IntegrityRepository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListItemRefs(ctx context.Context) ([]ItemRef, error)
}

// IntegritySweeper recomputes every item's cached aggregate columns from its
// ledgers and repairs drift. The cached columns are a read optimization and
// can lag only through operator intervention or bugs; the sweep makes the
// ledgers win either way.
type IntegritySweeper struct {
	repo    IntegrityRepository
	logger  *slog.Logger
	repairs prometheus.Counter
}

// NewIntegritySweeper constructs the sweeper. The repairs counter is optional.
func NewIntegritySweeper(repo IntegrityRepository, logger *slog.Logger, repairs prometheus.Counter) *IntegritySweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntegritySweeper{repo: repo, logger: logger, repairs: repairs}
}

// Handle processes the periodic sweep task.
func (s *IntegritySweeper) Handle(ctx context.Context, _ *asynq.Task) error {
	refs, err := s.repo.ListItemRefs(ctx)
	if err != nil {
		return err
	}
	repaired := 0
	for _, ref := range refs {
		fixed, err := s.sweepItem(ctx, ref)
		if err != nil {
			// One broken item must not starve the rest of the sweep.
			s.logger.Error("integrity sweep item failed",
				slog.Int64("item_id", ref.ItemID),
				slog.Any("error", err))
			continue
		}
		if fixed {
			repaired++
			if s.repairs != nil {
				s.repairs.Inc()
			}
		}
	}
	s.logger.Info("ledger integrity sweep finished",
		slog.Int("items", len(refs)),
		slog.Int("repaired", repaired))
	return nil
}

func (s *IntegritySweeper) sweepItem(ctx context.Context, ref ItemRef) (bool, error) {
	var fixed bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.LockItem(ctx, ref.DocumentID, ref.ItemID)
		if err != nil {
			return err
		}
		cached, err := tx.CachedAggregates(ctx, item.ID)
		if err != nil {
			return err
		}
		issues, err := tx.ListEntries(ctx, LedgerIssues, item.ID)
		if err != nil {
			return err
		}
		receipts, err := tx.ListEntries(ctx, LedgerReceipts, item.ID)
		if err != nil {
			return err
		}
		agg := AggregatesOf(item.PlannedQty, issues, receipts)
		if agg.IssuedQty == cached.IssuedQty && agg.ReceivedQty == cached.ReceivedQty && agg.Status == cached.Status {
			return nil
		}
		fixed = true
		s.logger.Warn("cached aggregates drifted from ledgers",
			slog.Int64("item_id", item.ID),
			slog.Float64("cached_issued", cached.IssuedQty),
			slog.Float64("ledger_issued", agg.IssuedQty),
			slog.Float64("cached_received", cached.ReceivedQty),
			slog.Float64("ledger_received", agg.ReceivedQty))
		return tx.SaveAggregates(ctx, item.ID, agg)
	})
	return fixed, err
}
