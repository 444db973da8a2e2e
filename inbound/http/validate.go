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
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	HeaderOrganizerID = "X-Organizer-Id"
	HeaderScanToken   = "X-Scan-Token"
)

type ValidateHttp struct {
	Db       contract.DbConn
	Querier  *store.Queries
	Cache    *redis.Client
	Validate *validator.Validate

	TimeNow func() time.Time
}

func RegisterValidateHttp(
	mux *http.ServeMux,
	db contract.DbConn,
	querier *store.Queries,
	cache *redis.Client,
	validate *validator.Validate,
) *ValidateHttp {
	in := &ValidateHttp{
		Db:       db,
		Querier:  querier,
		Cache:    cache,
		Validate: validate,
		TimeNow:  time.Now,
	}

	mux.HandleFunc("POST /api/tickets/validate", in.validateByCode)

	return in
}

// validateByCode runs one entry check. Outcomes other than VALID are still
// 200 responses: the gate UI needs to distinguish "already used" from "not a
// valid ticket" from "cancelled", not just see an error.
func (in ValidateHttp) validateByCode(w http.ResponseWriter, r *http.Request) {
	var req model.ValidateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	if err := in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "ValidateHttp.validateByCode")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	slog.InfoContext(ctx, "validate ticket receive request", traceIdAttr)

	actor, err := in.resolveActor(ctx, r)
	if err != nil {
		writeErrorResponse(w, err)
		return
	}

	if actor.Delegated() {
		actor.StaffName = req.StaffName
		actor.StaffPlace = req.StaffPlace
	}

	// Serializes concurrent scans of one code; independent across tickets.
	lockKey := fmt.Sprintf(constant.TicketValidationLock, req.Code)
	locked, err := in.Cache.SetNX(ctx, lockKey, true, constant.TicketValidationLockDefaultTTL).Result()
	if err != nil {
		slog.ErrorContext(ctx, "failed to set validation lock", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if !locked {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusConflict, Message: "Validation already in progress"})
		return
	}

	defer func() {
		if err := in.Cache.Del(ctx, lockKey).Err(); err != nil {
			slog.ErrorContext(ctx, "failed to release validation lock", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		}
	}()

	ticket, err := in.Querier.FindTicketByCode(ctx, req.Code)
	if err != nil {
		if err == pgx.ErrNoRows {
			writeJSONResponse(w, http.StatusOK, model.ValidateTicketResponse{Result: model.ValidationOutcomeInvalidCode})
			return
		}
		slog.ErrorContext(ctx, "failed to find ticket by code", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if ticket.EventID != req.EventID {
		writeJSONResponse(w, http.StatusOK, model.ValidateTicketResponse{Result: model.ValidationOutcomeWrongEvent})
		return
	}

	if outcome, halted := ineligibleOutcome(ticket.Status); halted {
		writeJSONResponse(w, http.StatusOK, model.ValidateTicketResponse{Result: outcome})
		return
	}

	dateID, ok := admissionDate(ticket, req.EventDateID)
	if !ok {
		writeJSONResponse(w, http.StatusOK, model.ValidateTicketResponse{Result: model.ValidationOutcomeWrongEvent})
		return
	}

	outcome, err := in.recordValidation(ctx, ticket, dateID, req, actor, r)
	if err != nil {
		slog.ErrorContext(ctx, "failed to record validation", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	slog.InfoContext(ctx, "validate ticket result", traceIdAttr, slog.Any(constant.LogFieldResponse, outcome))

	resp := model.ValidateTicketResponse{Result: outcome}
	if outcome == model.ValidationOutcomeValid {
		tr := ticketResponse(ticket)
		resp.Ticket = &tr
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

// recordValidation appends the audit record and advances the ticket status
// in one transaction. The unique index on (ticket_id, event_date_id) is the
// backstop should the redis lock ever be bypassed.
func (in ValidateHttp) recordValidation(
	ctx context.Context,
	ticket model.Ticket,
	dateID int64,
	req model.ValidateTicketRequest,
	actor model.ValidationActor,
	r *http.Request,
) (model.ValidationOutcome, error) {
	tx, err := in.Db.Begin(ctx)
	if err != nil {
		return "", err
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			slog.ErrorContext(ctx, "failed to rollback transaction", slog.Any(constant.LogFieldErr, err))
		}
	}()

	withTx := in.Querier.WithTx(tx)
	now := in.TimeNow().UTC()

	exists, err := withTx.ExistsValidation(ctx, ticket.ID, dateID)
	if err != nil {
		return "", err
	}
	if exists {
		return model.ValidationOutcomeAlreadyUsed, nil
	}

	record := model.ValidationRecord{
		ID:                   ulid.Make().String(),
		TicketID:             ticket.ID,
		EventDateID:          dateID,
		ValidatedAt:          now,
		ValidatedByOrganizer: !actor.Delegated(),
		Method:               req.Method,
	}

	if actor.Delegated() {
		record.ScanLinkID = &actor.ScanLinkID
		if actor.StaffName != "" {
			record.ValidatorName = &actor.StaffName
		}
		if actor.StaffPlace != "" {
			record.ValidatorLocation = &actor.StaffPlace
		}
		if host, _, splitErr := net.SplitHostPort(r.RemoteAddr); splitErr == nil {
			record.ValidatorIP = &host
		}
	}

	if err := withTx.InsertValidationRecord(ctx, record); err != nil {
		if err == errs.ErrAlreadyValidated {
			return model.ValidationOutcomeAlreadyUsed, nil
		}
		return "", err
	}

	count, err := withTx.CountValidationsByTicket(ctx, ticket.ID)
	if err != nil {
		return "", err
	}

	target := model.TicketStatusPartiallyUsed
	if int(count) >= ticket.AdmissionUnits() {
		target = model.TicketStatusUsed
	}

	tag, err := withTx.UpdateTicketStatus(ctx, ticket.ID, ticket.Status, target, now)
	if err != nil {
		return "", err
	}

	if tag.RowsAffected() == 0 {
		// Someone transitioned the ticket under us; report by its new state.
		current, err := in.Querier.FindTicketByID(ctx, ticket.ID)
		if err != nil {
			return "", err
		}
		outcome, _ := ineligibleOutcome(current.Status)
		if outcome == "" {
			outcome = model.ValidationOutcomeAlreadyUsed
		}
		return outcome, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}

	return model.ValidationOutcomeValid, nil
}

// resolveActor accepts either the organizer's own session or a delegated
// scan-link session token.
func (in ValidateHttp) resolveActor(ctx context.Context, r *http.Request) (model.ValidationActor, error) {
	if token := r.Header.Get(HeaderScanToken); token != "" {
		linkID, err := in.Cache.Get(ctx, fmt.Sprintf(constant.ScanLinkSessionKey, token)).Result()
		if err == redis.Nil {
			return model.ValidationActor{}, &errs.HttpError{Code: http.StatusUnauthorized, Message: "Scan session expired"}
		}
		if err != nil {
			return model.ValidationActor{}, err
		}

		// The token may outlive its link: a deleted or lapsed link must stop
		// admitting even while session tokens are still in redis.
		link, err := in.Querier.FindScanLink(ctx, linkID)
		if err == pgx.ErrNoRows {
			return model.ValidationActor{}, &errs.HttpError{Code: http.StatusUnauthorized, Message: "Scan session expired"}
		}
		if err != nil {
			return model.ValidationActor{}, err
		}
		if link.ExpiredAt(in.TimeNow().UTC()) {
			return model.ValidationActor{}, &errs.HttpError{Code: http.StatusUnauthorized, Message: "Scan session expired"}
		}

		return model.ValidationActor{ScanLinkID: linkID}, nil
	}

	organizerID := r.Header.Get(HeaderOrganizerID)
	if organizerID == "" {
		return model.ValidationActor{}, &errs.HttpError{Code: http.StatusUnauthorized, Message: "Missing organizer session or scan token"}
	}

	return model.ValidationActor{OrganizerID: organizerID}, nil
}

// ineligibleOutcome maps a non-admittable status to its gate outcome.
// halted=false means the ticket may proceed to validation.
func ineligibleOutcome(status model.TicketStatus) (model.ValidationOutcome, bool) {
	switch {
	case status.AdmissionEligible():
		return "", false
	case status == model.TicketStatusUsed:
		return model.ValidationOutcomeAlreadyUsed, true
	case status.Terminal() || status == model.TicketStatusRefundRequested:
		return model.ValidationOutcomeCancelled, true
	default:
		// PENDING, FAILED, EXPIRED, OVERDUE: never issued for entry.
		return model.ValidationOutcomeInvalidCode, true
	}
}

// admissionDate picks the date component being validated. Single-date
// tickets ignore an omitted date; multi-date passes require one.
func admissionDate(t model.Ticket, requested int64) (int64, bool) {
	if requested == 0 {
		if t.AdmissionUnits() == 1 && len(t.EventDateIDs) == 1 {
			return t.EventDateIDs[0], true
		}
		return 0, false
	}

	if !t.CoversDate(requested) {
		return 0, false
	}

	return requested, true
}
