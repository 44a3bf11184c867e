package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/prepmood/prepmood-backend/internal/fulfillment"
	"github.com/prepmood/prepmood-backend/pkg/logger"
)

const (
	recoveryStaleAfter = 5 * time.Minute
	recoveryBatchSize  = 50
)

type paymentRecoverer interface {
	RecoverStale(ctx context.Context, staleBefore time.Time, limit int) (fulfillment.RecoveryReport, error)
}

type PaidEventRecoveryJobParams struct {
	Logger      *logger.Logger
	Fulfillment paymentRecoverer
	StaleAfter  time.Duration
	BatchSize   int
}

// NewPaidEventRecoveryJob reruns the pipeline for paid events that were
// recorded but never completed, e.g. because the worker died mid-run.
func NewPaidEventRecoveryJob(params PaidEventRecoveryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Fulfillment == nil {
		return nil, fmt.Errorf("fulfillment service required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = recoveryStaleAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = recoveryBatchSize
	}
	return &paidEventRecoveryJob{
		logg:        params.Logger,
		fulfillment: params.Fulfillment,
		staleAfter:  staleAfter,
		batch:       batch,
		now:         time.Now,
	}, nil
}

type paidEventRecoveryJob struct {
	logg        *logger.Logger
	fulfillment paymentRecoverer
	staleAfter  time.Duration
	batch       int
	now         func() time.Time
}

func (j *paidEventRecoveryJob) Name() string { return "paid-event-recovery" }

func (j *paidEventRecoveryJob) Run(ctx context.Context) error {
	staleBefore := j.now().UTC().Add(-j.staleAfter)
	report, err := j.fulfillment.RecoverStale(ctx, staleBefore, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"stale_before": staleBefore,
		"scanned":      report.Scanned,
		"succeeded":    report.Succeeded,
		"failed":       report.Failed,
	})
	if err != nil {
		return fmt.Errorf("recover paid events: %w", err)
	}
	j.logg.Info(logCtx, "paid event recovery complete")
	return nil
}
