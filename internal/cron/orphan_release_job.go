package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/prepmood/prepmood-backend/pkg/logger"
)

const (
	orphanReleaseGrace = 30 * time.Minute
	orphanBatchSize    = 100
)

type orphanStock interface {
	ListOrphanedOrders(ctx context.Context, reservedBefore time.Time, limit int) ([]uuid.UUID, error)
	ReleaseOrphaned(ctx context.Context, orderID uuid.UUID) (int64, error)
}

type OrphanReleaseJobParams struct {
	Logger    *logger.Logger
	Stock     orphanStock
	Grace     time.Duration
	BatchSize int
}

// NewOrphanReleaseJob returns reserved stock that no live order item unit
// points at. The grace period keeps it away from in-flight fulfillments.
func NewOrphanReleaseJob(params OrphanReleaseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock service required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = orphanReleaseGrace
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = orphanBatchSize
	}
	return &orphanReleaseJob{logg: params.Logger, stock: params.Stock, grace: grace, batch: batch, now: time.Now}, nil
}

type orphanReleaseJob struct {
	logg  *logger.Logger
	stock orphanStock
	grace time.Duration
	batch int
	now   func() time.Time
}

func (j *orphanReleaseJob) Name() string { return "orphan-stock-release" }

func (j *orphanReleaseJob) Run(ctx context.Context) error {
	before := j.now().UTC().Add(-j.grace)
	orderIDs, err := j.stock.ListOrphanedOrders(ctx, before, j.batch)
	if err != nil {
		return fmt.Errorf("list orphaned orders: %w", err)
	}

	var (
		errs     []error
		released int64
	)
	for _, orderID := range orderIDs {
		n, err := j.stock.ReleaseOrphaned(ctx, orderID)
		if err != nil {
			errs = append(errs, fmt.Errorf("order %s: %w", orderID, err))
			continue
		}
		released += n
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"orders":   len(orderIDs),
		"released": released,
	})
	j.logg.Info(logCtx, "orphan stock sweep complete")
	return multierr.Combine(errs...)
}
