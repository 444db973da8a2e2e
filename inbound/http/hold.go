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
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/viper"
	"log/slog"
	"net/http"
	"time"
)

type HoldHttp struct {
	Db       contract.DbConn
	Querier  *store.Queries
	Validate *validator.Validate

	TimeNow func() time.Time

	holdTTL time.Duration
}

func RegisterHoldHttp(
	mux *http.ServeMux,
	cfg *viper.Viper,
	db contract.DbConn,
	querier *store.Queries,
	validate *validator.Validate,
) *HoldHttp {
	in := &HoldHttp{
		Db:       db,
		Querier:  querier,
		Validate: validate,
		TimeNow:  time.Now,

		holdTTL: cfg.GetDuration("hold.ttl"),
	}

	mux.HandleFunc("POST /api/holds", in.create)
	mux.HandleFunc("PATCH /api/holds/{id}", in.updateQuantity)
	mux.HandleFunc("DELETE /api/holds/{id}", in.release)
	mux.HandleFunc("DELETE /api/holds", in.releaseByOwner)

	return in
}

// create reserves every line of the cart or nothing: the reservations and
// hold rows share one transaction, so any failed line rolls the rest back.
func (in HoldHttp) create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	if err := in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "HoldHttp.create")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	slog.InfoContext(ctx, "create hold receive request", slog.Any(constant.LogFieldPayload, req), traceIdAttr)

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

	now := in.TimeNow().UTC()
	expiresAt := now.Add(in.holdTTL)
	holds := make([]model.Hold, 0, len(req.Items))

	for _, item := range req.Items {
		key := model.InventoryKey{
			EventID:      item.EventID,
			EventDateID:  item.EventDateID,
			TicketTypeID: item.TicketTypeID,
		}

		if err := withTx.Reserve(ctx, key, item.Quantity); err != nil {
			if err == errs.ErrInsufficientInventory {
				slog.DebugContext(ctx, "insufficient inventory", traceIdAttr)
			} else {
				slog.ErrorContext(ctx, "failed to reserve inventory", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			}
			writeErrorResponse(w, err)
			return
		}

		hold := model.Hold{
			ID:        ulid.Make().String(),
			Key:       key,
			Quantity:  item.Quantity,
			OwnerID:   req.OwnerID,
			Status:    model.HoldStatusActive,
			CreatedAt: now,
			ExpiresAt: expiresAt,
		}

		if err := withTx.InsertHold(ctx, hold); err != nil {
			slog.ErrorContext(ctx, "failed to insert hold", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			writeErrorResponse(w, err)
			return
		}

		holds = append(holds, hold)
	}

	if err := tx.Commit(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to commit transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	resp := model.CreateHoldResponse{Holds: make([]model.HoldResponse, 0, len(holds))}
	for _, h := range holds {
		resp.Holds = append(resp.Holds, holdResponse(h))
	}

	slog.InfoContext(ctx, "create hold success", traceIdAttr, slog.Any(constant.LogFieldResponse, len(holds)))

	writeJSONResponse(w, http.StatusCreated, resp)
}

func (in HoldHttp) updateQuantity(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateHoldQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	if err := in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "HoldHttp.updateQuantity")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	holdID := r.PathValue("id")

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

	now := in.TimeNow().UTC()
	hold, err := withTx.FindActiveHoldForUpdate(ctx, holdID, now)
	if err != nil {
		if err == pgx.ErrNoRows {
			writeErrorResponse(w, in.missingHoldError(ctx, holdID, now))
			return
		}
		slog.ErrorContext(ctx, "failed to find hold", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	delta := req.Quantity - hold.Quantity
	switch {
	case delta > 0:
		// Growing re-validates against current availability.
		if err := withTx.Reserve(ctx, hold.Key, delta); err != nil {
			writeErrorResponse(w, err)
			return
		}
	case delta < 0:
		if err := withTx.ReleaseReserved(ctx, hold.Key, -delta); err != nil {
			slog.ErrorContext(ctx, "failed to release inventory", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			writeErrorResponse(w, err)
			return
		}
	}

	if err := withTx.UpdateHoldQuantity(ctx, holdID, req.Quantity); err != nil {
		slog.ErrorContext(ctx, "failed to update hold quantity", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to commit transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	hold.Quantity = req.Quantity

	slog.InfoContext(ctx, "update hold quantity success", traceIdAttr)

	writeJSONResponse(w, http.StatusOK, holdResponse(hold))
}

func (in HoldHttp) release(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer.Start(r.Context(), "HoldHttp.release")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	holdID := r.PathValue("id")

	// Claim and give-back share one transaction: a hold must never sit in
	// 'released' while its quantity is still counted as held.
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

	hold, claimed, err := withTx.ClaimHold(ctx, holdID, model.HoldStatusReleased)
	if err != nil {
		slog.ErrorContext(ctx, "failed to release hold", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if !claimed {
		// Sweep or an earlier release won the race. Releasing again stays a
		// no-op, but an id that never existed is still a 404.
		if _, err := in.Querier.FindHold(ctx, holdID); err == pgx.ErrNoRows {
			writeErrorResponse(w, errs.ErrHoldNotFound)
			return
		} else if err != nil {
			writeErrorResponse(w, err)
			return
		}

		writeJSONResponse(w, http.StatusNoContent, nil)
		return
	}

	if err := withTx.ReleaseReserved(ctx, hold.Key, hold.Quantity); err != nil {
		slog.ErrorContext(ctx, "failed to release inventory", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to commit transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	slog.InfoContext(ctx, "release hold success", traceIdAttr)

	writeJSONResponse(w, http.StatusNoContent, nil)
}

// releaseByOwner drops every active hold of an owner, used on cart
// abandonment and logout.
func (in HoldHttp) releaseByOwner(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "owner_id is required"})
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "HoldHttp.releaseByOwner")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	holds, err := in.Querier.ListActiveHoldsByOwner(ctx, ownerID, in.TimeNow().UTC())
	if err != nil {
		slog.ErrorContext(ctx, "failed to list holds", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

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

	released := 0
	for _, h := range holds {
		hold, claimed, err := withTx.ClaimHold(ctx, h.ID, model.HoldStatusReleased)
		if err != nil {
			slog.ErrorContext(ctx, "failed to release hold", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			writeErrorResponse(w, err)
			return
		}

		if !claimed {
			continue
		}

		if err := withTx.ReleaseReserved(ctx, hold.Key, hold.Quantity); err != nil {
			slog.ErrorContext(ctx, "failed to release inventory", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			writeErrorResponse(w, err)
			return
		}

		released++
	}

	if err := tx.Commit(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to commit transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	slog.InfoContext(ctx, "release holds by owner success", traceIdAttr, slog.Any(constant.LogFieldResponse, released))

	writeJSONResponse(w, http.StatusNoContent, nil)
}

// missingHoldError distinguishes an expired hold from one that never
// existed, without treating either as an internal failure.
func (in HoldHttp) missingHoldError(ctx context.Context, holdID string, now time.Time) error {
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

func holdResponse(h model.Hold) model.HoldResponse {
	return model.HoldResponse{
		ID:           h.ID,
		EventID:      h.Key.EventID,
		EventDateID:  h.Key.EventDateID,
		TicketTypeID: h.Key.TicketTypeID,
		Quantity:     h.Quantity,
		ExpiresAt:    h.ExpiresAt.UTC().Format(time.RFC3339),
	}
}
