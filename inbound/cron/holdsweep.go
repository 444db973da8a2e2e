package cron

import (
	"context"
	"event-ticket/common"
	"event-ticket/common/constant"
	"event-ticket/common/contract"
	"event-ticket/outbound/store"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/viper"
)

type HoldSweepCron struct {
	Cfg     *viper.Viper
	Db      contract.DbConn
	Querier *store.Queries

	TimeNow func() time.Time
}

func (in HoldSweepCron) Start(ctx context.Context) {
	sweepTicker := time.NewTicker(in.Cfg.GetDuration("cron.hold_sweep.interval"))
	defer sweepTicker.Stop()

	// Run initial sweep
	in.sweep(ctx)

	slog.Info("hold sweep cron started")

	// Block in the main function, not in a goroutine
	for {
		select {
		case <-sweepTicker.C:
			in.sweep(ctx)
		case <-ctx.Done():
			slog.Info("hold sweep cron stopped")
			return
		}
	}
}

// sweep releases expired holds in batches until a pass finds nothing, so a
// backlog after downtime drains in one run.
func (in HoldSweepCron) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, in.Cfg.GetDuration("cron.hold_sweep.timeout"))
	defer cancel()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	batchSize := in.Cfg.GetInt32("cron.hold_sweep.batch_size")

	for {
		released, err := in.sweepBatch(ctx, batchSize, traceIdAttr)
		if err != nil {
			slog.ErrorContext(ctx, "hold sweep batch failed", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			return
		}

		if released > 0 {
			slog.InfoContext(ctx, "released expired holds", traceIdAttr, slog.Int("count", released))
		}

		if released < int(batchSize) {
			return
		}
	}
}

func (in HoldSweepCron) sweepBatch(ctx context.Context, batchSize int32, traceIdAttr slog.Attr) (int, error) {
	tx, err := in.Db.Begin(ctx)
	if err != nil {
		return 0, err
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			slog.ErrorContext(ctx, "failed to rollback transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		}
	}()

	withTx := in.Querier.WithTx(tx)

	holds, err := withTx.ClaimExpiredHolds(ctx, in.TimeNow().UTC(), batchSize)
	if err != nil {
		return 0, err
	}

	for _, h := range holds {
		if err := withTx.ReleaseReserved(ctx, h.Key, h.Quantity); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	return len(holds), nil
}
