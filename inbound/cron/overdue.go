package cron

import (
	"context"
	"event-ticket/common"
	"event-ticket/common/constant"
	"event-ticket/common/contract"
	"event-ticket/model"
	"event-ticket/outbound/store"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/viper"
)

type OverdueCron struct {
	Cfg       *viper.Viper
	Db        contract.DbConn
	Querier   *store.Queries
	Publisher jetstream.Publisher

	TimeNow func() time.Time
}

func (in OverdueCron) Start(ctx context.Context) {
	sweepTicker := time.NewTicker(in.Cfg.GetDuration("cron.overdue.interval"))
	defer sweepTicker.Stop()

	in.sweep(ctx)

	slog.Info("overdue cron started")

	for {
		select {
		case <-sweepTicker.C:
			in.sweep(ctx)
		case <-ctx.Done():
			slog.Info("overdue cron stopped")
			return
		}
	}
}

func (in OverdueCron) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, in.Cfg.GetDuration("cron.overdue.timeout"))
	defer cancel()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	overdue, err := in.sweepOverdue(ctx, traceIdAttr)
	if err != nil {
		slog.ErrorContext(ctx, "overdue sweep failed", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return
	}

	for _, t := range overdue {
		notif := model.TicketNotificationEventMessage{
			Kind:       constant.NotificationKindCancelled,
			TicketID:   t.ID,
			PaymentID:  t.PaymentID,
			Name:       t.CustomerName,
			Email:      t.CustomerEmail,
			Code:       t.Code,
			PriceCents: t.PriceCents,
		}

		err = common.PublishMessage(ctx, in.Publisher, constant.SubjectTicketNotification, notif)
		if err != nil {
			slog.ErrorContext(ctx, "failed to publish ticket notification", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		}
	}

	in.reportStuckRefunds(ctx, traceIdAttr)
}

func (in OverdueCron) sweepOverdue(ctx context.Context, traceIdAttr slog.Attr) ([]model.Ticket, error) {
	tx, err := in.Db.Begin(ctx)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			slog.ErrorContext(ctx, "failed to rollback transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		}
	}()

	withTx := in.Querier.WithTx(tx)

	tickets, err := withTx.ClaimOverdueTickets(ctx, in.TimeNow().UTC(), in.Cfg.GetInt32("cron.overdue.batch_size"))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(tickets))
	for _, t := range tickets {
		if t.HoldID == nil {
			continue
		}
		if _, ok := seen[*t.HoldID]; ok {
			continue
		}
		seen[*t.HoldID] = struct{}{}

		hold, claimed, err := withTx.ClaimHold(ctx, *t.HoldID, model.HoldStatusReleased)
		if err != nil {
			return nil, err
		}

		if claimed {
			if err := withTx.ReleaseReserved(ctx, hold.Key, hold.Quantity); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if len(tickets) > 0 {
		slog.InfoContext(ctx, "marked overdue tickets", traceIdAttr, slog.Int("count", len(tickets)))
	}

	return tickets, nil
}

// reportStuckRefunds surfaces tickets stuck in REFUND_REQUESTED past the SLA.
// They are never auto-resolved: only the gateway knows whether money moved.
func (in OverdueCron) reportStuckRefunds(ctx context.Context, traceIdAttr slog.Attr) {
	maxAge := in.Cfg.GetDuration("cron.overdue.refund_stuck_after")

	stuck, err := in.Querier.ListStuckRefundRequests(ctx, in.TimeNow().UTC(), maxAge, in.Cfg.GetInt32("cron.overdue.batch_size"))
	if err != nil {
		slog.ErrorContext(ctx, "failed to list stuck refund requests", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return
	}

	for _, t := range stuck {
		slog.WarnContext(ctx, "refund request stuck past SLA",
			traceIdAttr,
			slog.String("ticket_id", t.ID),
			slog.String("payment_id", t.PaymentID),
			slog.Time("updated_at", t.UpdatedAt),
		)
	}
}
