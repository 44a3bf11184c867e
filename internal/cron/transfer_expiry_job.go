package cron

import (
	"context"
	"fmt"

	"github.com/prepmood/prepmood-backend/pkg/logger"
)

type transferExpirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

type TransferExpiryJobParams struct {
	Logger    *logger.Logger
	Transfers transferExpirer
}

// NewTransferExpiryJob moves requested transfers past their deadline to expired.
func NewTransferExpiryJob(params TransferExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Transfers == nil {
		return nil, fmt.Errorf("transfer service required")
	}
	return &transferExpiryJob{logg: params.Logger, transfers: params.Transfers}, nil
}

type transferExpiryJob struct {
	logg      *logger.Logger
	transfers transferExpirer
}

func (j *transferExpiryJob) Name() string { return "transfer-expiry" }

func (j *transferExpiryJob) Run(ctx context.Context) error {
	expired, err := j.transfers.ExpireStale(ctx)
	if err != nil {
		return fmt.Errorf("expire transfers: %w", err)
	}
	if expired > 0 {
		j.logg.Info(j.logg.WithField(ctx, "expired", expired), "stale transfers expired")
	}
	return nil
}
