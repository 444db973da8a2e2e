package event

import (
	"context"
	"encoding/json"
	"event-ticket/common"
	"event-ticket/common/constant"
	"event-ticket/common/contract"
	"event-ticket/common/otel"
	"event-ticket/model"
	"event-ticket/outbound/store"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nats-io/nats.go/jetstream"
)

type TicketEvent struct {
	Db        contract.DbConn
	Querier   *store.Queries
	Publisher jetstream.Publisher

	Timeout time.Duration
	TimeNow func() time.Time
}

// SettleHandler moves every pending ticket of a settled payment to CONFIRMED
// and converts their holds, turning the held capacity into issued capacity.
func (in TicketEvent) SettleHandler(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, in.Timeout)
	defer cancel()

	var req model.SettlePaymentEventMessage
	err := json.Unmarshal(msg, &req)
	if err != nil {
		slog.WarnContext(ctx, "settle payment event unmarshal error", slog.Any(constant.LogFieldErr, err))
		return nil
	}

	ctx, span := otel.Tracer.Start(ctx, "TicketEvent.settle")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	slog.InfoContext(ctx, "settle payment event receive request", slog.Any(constant.LogFieldPayload, req), traceIdAttr)

	tx, err := in.Db.Begin(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to begin transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return err
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			slog.ErrorContext(ctx, "failed to rollback transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		}
	}()

	withTx := in.Querier.WithTx(tx)
	now := in.TimeNow().UTC()

	tickets, err := withTx.FindTicketsByPaymentID(ctx, req.PaymentID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to find tickets by payment id", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return err
	}

	if len(tickets) == 0 {
		slog.WarnContext(ctx, "payment id has no tickets", traceIdAttr)
		return nil
	}

	confirmed := make([]model.Ticket, 0, len(tickets))
	for _, t := range tickets {
		cmd, err := withTx.UpdateTicketStatus(ctx, t.ID, model.TicketStatusPending, model.TicketStatusConfirmed, now)
		if err != nil {
			slog.ErrorContext(ctx, "failed to confirm ticket", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			return err
		}

		// A redelivered message finds tickets already confirmed; skip
		// instead of failing so the whole batch stays idempotent.
		if cmd.RowsAffected() == 0 {
			slog.WarnContext(ctx, "ticket is not pending, skipping", traceIdAttr, slog.String("ticket_id", t.ID))
			continue
		}

		confirmed = append(confirmed, t)
	}

	// Only tickets this delivery actually confirmed drive inventory. A batch
	// the overdue sweep already flipped must not touch the counters.
	if err := in.convertHolds(ctx, withTx, confirmed, traceIdAttr); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to commit transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return err
	}

	for _, t := range confirmed {
		notif := model.TicketNotificationEventMessage{
			Kind:       constant.NotificationKindConfirmed,
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
			return err
		}
	}

	slog.InfoContext(ctx, "settle payment event success", traceIdAttr)

	return nil
}

// FailHandler marks every pending ticket of a failed payment with the verdict
// status and gives the held capacity back.
func (in TicketEvent) FailHandler(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, in.Timeout)
	defer cancel()

	var req model.FailPaymentEventMessage
	err := json.Unmarshal(msg, &req)
	if err != nil {
		slog.WarnContext(ctx, "fail payment event unmarshal error", slog.Any(constant.LogFieldErr, err))
		return nil
	}

	ctx, span := otel.Tracer.Start(ctx, "TicketEvent.fail")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	slog.InfoContext(ctx, "fail payment event receive request", slog.Any(constant.LogFieldPayload, req), traceIdAttr)

	target := failVerdictStatus(req.Verdict)

	tx, err := in.Db.Begin(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to begin transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return err
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			slog.ErrorContext(ctx, "failed to rollback transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		}
	}()

	withTx := in.Querier.WithTx(tx)
	now := in.TimeNow().UTC()

	tickets, err := withTx.FindTicketsByPaymentID(ctx, req.PaymentID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to find tickets by payment id", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return err
	}

	if len(tickets) == 0 {
		slog.WarnContext(ctx, "payment id has no tickets", traceIdAttr)
		return nil
	}

	failed := make([]model.Ticket, 0, len(tickets))
	for _, t := range tickets {
		cmd, err := withTx.UpdateTicketStatus(ctx, t.ID, model.TicketStatusPending, target, now)
		if err != nil {
			slog.ErrorContext(ctx, "failed to fail ticket", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			return err
		}

		if cmd.RowsAffected() == 0 {
			slog.WarnContext(ctx, "ticket is not pending, skipping", traceIdAttr, slog.String("ticket_id", t.ID))
			continue
		}

		failed = append(failed, t)
	}

	if err := in.releaseHolds(ctx, withTx, failed, traceIdAttr); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to commit transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return err
	}

	for _, t := range failed {
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
			return err
		}
	}

	slog.InfoContext(ctx, "fail payment event success", traceIdAttr)

	return nil
}

// convertHolds claims each distinct hold behind the confirmed tickets and
// moves its quantity from held to issued. A hold already claimed by the
// expiry sweep loses the race; its capacity was returned, so issue it again
// through Reserve+Commit.
func (in TicketEvent) convertHolds(ctx context.Context, withTx *store.Queries, tickets []model.Ticket, traceIdAttr slog.Attr) error {
	for _, holdID := range distinctHoldIDs(tickets) {
		hold, claimed, err := withTx.ClaimHold(ctx, holdID, model.HoldStatusConverted)
		if err != nil {
			slog.ErrorContext(ctx, "failed to claim hold", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			return err
		}

		if claimed {
			if err := withTx.CommitReserved(ctx, hold.Key, hold.Quantity); err != nil {
				slog.ErrorContext(ctx, "failed to commit reserved inventory", traceIdAttr, slog.Any(constant.LogFieldErr, err))
				return err
			}
			continue
		}

		hold, err = withTx.FindHold(ctx, holdID)
		if err != nil {
			slog.ErrorContext(ctx, "failed to find hold", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			return err
		}

		if hold.Status != model.HoldStatusReleased {
			continue
		}

		if err := withTx.Reserve(ctx, hold.Key, hold.Quantity); err != nil {
			slog.ErrorContext(ctx, "failed to re-reserve inventory for released hold", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			return err
		}
		if err := withTx.CommitReserved(ctx, hold.Key, hold.Quantity); err != nil {
			slog.ErrorContext(ctx, "failed to commit reserved inventory", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			return err
		}
	}

	return nil
}

func (in TicketEvent) releaseHolds(ctx context.Context, withTx *store.Queries, tickets []model.Ticket, traceIdAttr slog.Attr) error {
	for _, holdID := range distinctHoldIDs(tickets) {
		hold, claimed, err := withTx.ClaimHold(ctx, holdID, model.HoldStatusReleased)
		if err != nil {
			slog.ErrorContext(ctx, "failed to claim hold", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			return err
		}

		if !claimed {
			continue
		}

		if err := withTx.ReleaseReserved(ctx, hold.Key, hold.Quantity); err != nil {
			slog.ErrorContext(ctx, "failed to release reserved inventory", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			return err
		}
	}

	return nil
}

func distinctHoldIDs(tickets []model.Ticket) []string {
	seen := make(map[string]struct{}, len(tickets))
	ids := make([]string, 0, len(tickets))
	for _, t := range tickets {
		if t.HoldID == nil {
			continue
		}
		if _, ok := seen[*t.HoldID]; ok {
			continue
		}
		seen[*t.HoldID] = struct{}{}
		ids = append(ids, *t.HoldID)
	}
	return ids
}

func failVerdictStatus(verdict string) model.TicketStatus {
	switch verdict {
	case "expired":
		return model.TicketStatusExpired
	case "overdue":
		return model.TicketStatusOverdue
	default:
		return model.TicketStatusFailed
	}
}
