package http

import (
	"context"
	"encoding/json"
	"event-ticket/common"
	"event-ticket/common/constant"
	"event-ticket/common/contract"
	"event-ticket/common/errs"
	"event-ticket/common/otel"
	"event-ticket/model"
	"event-ticket/outbound/store"
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"log/slog"
	"net/http"
	"time"
)

type OrderHttp struct {
	Db        contract.DbConn
	Querier   *store.Queries
	Cache     *redis.Client
	Publisher jetstream.Publisher
	Validate  *validator.Validate

	TimeNow func() time.Time

	paymentWindow time.Duration
}

func RegisterOrderHttp(
	mux *http.ServeMux,
	cfg *viper.Viper,
	db contract.DbConn,
	querier *store.Queries,
	cache *redis.Client,
	publisher jetstream.Publisher,
	validate *validator.Validate,
) *OrderHttp {
	in := &OrderHttp{
		Db:        db,
		Querier:   querier,
		Cache:     cache,
		Publisher: publisher,
		Validate:  validate,
		TimeNow:   time.Now,

		paymentWindow: cfg.GetDuration("order.payment_window"),
	}

	mux.HandleFunc("POST /api/orders", in.create)

	return in
}

// create binds a buyer's holds into PENDING tickets and registers the
// payment intent. The holds stay active until settlement converts them or
// the payment window lapses.
func (in OrderHttp) create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	if err := in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "OrderHttp.create")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	slog.InfoContext(ctx, "create order receive request", slog.Any(constant.LogFieldPayload, req), traceIdAttr)

	emailLock, err := in.Cache.SetNX(ctx, fmt.Sprintf(constant.OrderEmailLock, req.Email), true, constant.OrderEmailLockDefaultTTL).Result()
	if err != nil {
		slog.ErrorContext(ctx, "failed to set email lock", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if !emailLock {
		slog.DebugContext(ctx, "email checkout already in flight", traceIdAttr)
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusConflict, Message: "Checkout already in progress for this email"})
		return
	}

	now := in.TimeNow().UTC()
	paymentID := ulid.Make().String()
	paymentCode := generatePaymentCode()
	paymentExpiresAt := now.Add(in.paymentWindow)

	tx, err := in.Db.Begin(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to begin transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			slog.ErrorContext(ctx, "failed to rollback transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		}
	}()

	withTx := in.Querier.WithTx(tx)

	var tickets []model.Ticket
	var totalCents int64

	for _, item := range req.Items {
		hold, err := withTx.FindActiveHoldForUpdate(ctx, item.HoldID, now)
		if err != nil {
			if err == pgx.ErrNoRows {
				writeErrorResponse(w, in.missingHoldError(ctx, item.HoldID, now))
				return
			}
			slog.ErrorContext(ctx, "failed to find hold", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			writeErrorResponse(w, err)
			return
		}

		if hold.OwnerID != req.OwnerID {
			writeErrorResponse(w, errs.ErrHoldNotFound)
			return
		}

		priceCents, err := withTx.FindTicketTypePrice(ctx, hold.Key.TicketTypeID)
		if err != nil {
			slog.ErrorContext(ctx, "failed to find ticket type price", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			writeErrorResponse(w, err)
			return
		}

		dateIDs := item.EventDateIDs
		if len(dateIDs) == 0 {
			dateIDs = []int64{hold.Key.EventDateID}
		} else {
			// Client-supplied dates are only trusted after checking them
			// against the dates the event actually has, and the pass must
			// cover the date whose inventory the hold reserved.
			known, err := withTx.ListEventDateIDs(ctx, hold.Key.EventID)
			if err != nil {
				slog.ErrorContext(ctx, "failed to list event dates", traceIdAttr, slog.Any(constant.LogFieldErr, err))
				writeErrorResponse(w, err)
				return
			}

			if err := checkPassDates(dateIDs, hold.Key.EventDateID, known); err != nil {
				writeErrorResponse(w, err)
				return
			}
		}

		holdID := hold.ID
		for i := int32(0); i < hold.Quantity; i++ {
			ticket := model.Ticket{
				ID:               ulid.Make().String(),
				EventID:          hold.Key.EventID,
				EventDateIDs:     dateIDs,
				TicketTypeID:     hold.Key.TicketTypeID,
				CustomerID:       req.OwnerID,
				CustomerName:     req.Name,
				CustomerEmail:    req.Email,
				CustomerPhone:    req.Phone,
				PriceCents:       priceCents,
				Code:             generateEntryCode(),
				PaymentID:        paymentID,
				PaymentCode:      paymentCode,
				PaymentExpiresAt: paymentExpiresAt,
				Status:           model.TicketStatusPending,
				HoldID:           &holdID,
				CreatedAt:        now,
				UpdatedAt:        now,
			}

			if err := withTx.InsertTicket(ctx, ticket); err != nil {
				slog.ErrorContext(ctx, "failed to insert ticket", traceIdAttr, slog.Any(constant.LogFieldErr, err))
				writeErrorResponse(w, err)
				return
			}

			tickets = append(tickets, ticket)
			totalCents += priceCents
		}
	}

	if err := tx.Commit(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to commit transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	err = common.PublishMessage(ctx, in.Publisher, constant.SubjectTicketNotification, model.TicketNotificationEventMessage{
		Kind:        constant.NotificationKindPending,
		PaymentID:   paymentID,
		Name:        req.Name,
		Email:       req.Email,
		PriceCents:  totalCents,
		PaymentCode: paymentCode,
		ExpiredAt:   paymentExpiresAt.Format(time.RFC3339),
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to publish pending notification", traceIdAttr, slog.Any(constant.LogFieldErr, err))
	}

	resp := model.CreateOrderResponse{
		PaymentID:   paymentID,
		PaymentCode: paymentCode,
		ExpiredAt:   paymentExpiresAt.Format(time.RFC3339),
		Tickets:     make([]model.OrderTicketResponse, 0, len(tickets)),
	}
	for _, t := range tickets {
		resp.Tickets = append(resp.Tickets, model.OrderTicketResponse{
			ID:     t.ID,
			Code:   t.Code,
			Status: t.Status,
		})
	}

	slog.InfoContext(ctx, "create order success", traceIdAttr, slog.Any(constant.LogFieldResponse, paymentID))

	writeJSONResponse(w, http.StatusOK, resp)
}

// checkPassDates rejects a multi-date pass naming dates outside the event or
// omitting the hold's own date.
func checkPassDates(dateIDs []int64, holdDateID int64, known []int64) error {
	knownSet := make(map[int64]struct{}, len(known))
	for _, id := range known {
		knownSet[id] = struct{}{}
	}

	coversHold := false
	for _, id := range dateIDs {
		if _, ok := knownSet[id]; !ok {
			return errs.ErrUnknownEventDate
		}
		if id == holdDateID {
			coversHold = true
		}
	}

	if !coversHold {
		return &errs.HttpError{Code: http.StatusBadRequest, Message: "event_date_ids must include the hold's date"}
	}

	return nil
}

func (in OrderHttp) missingHoldError(ctx context.Context, holdID string, now time.Time) error {
	hold, err := in.Querier.FindHold(ctx, holdID)
	if err == pgx.ErrNoRows {
		return errs.ErrHoldNotFound
	}
	if err != nil {
		return err
	}

	if hold.Status == model.HoldStatusActive && hold.ExpiredAt(now) {
		return errs.ErrHoldExpired
	}

	return errs.ErrHoldNotFound
}
