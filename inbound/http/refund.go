package http

import (
	"context"
	"encoding/json"
	"errors"
	"event-ticket/common"
	"event-ticket/common/constant"
	"event-ticket/common/errs"
	"event-ticket/common/otel"
	"event-ticket/model"
	"event-ticket/outbound/auth"
	"event-ticket/outbound/payment"
	"event-ticket/outbound/store"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/viper"
	"log/slog"
	"net/http"
	"time"
)

type RefundHttp struct {
	Querier   *store.Queries
	Publisher jetstream.Publisher
	Validate  *validator.Validate
	Gateway   payment.Gateway
	Reauth    auth.Reauthenticator

	TimeNow func() time.Time

	gatewayTimeout time.Duration
}

func RegisterRefundHttp(
	mux *http.ServeMux,
	cfg *viper.Viper,
	querier *store.Queries,
	publisher jetstream.Publisher,
	validate *validator.Validate,
	gateway payment.Gateway,
	reauth auth.Reauthenticator,
) *RefundHttp {
	in := &RefundHttp{
		Querier:   querier,
		Publisher: publisher,
		Validate:  validate,
		Gateway:   gateway,
		Reauth:    reauth,
		TimeNow:   time.Now,

		gatewayTimeout: cfg.GetDuration("payment.timeout"),
	}

	mux.HandleFunc("POST /api/tickets/{id}/refund", in.requestRefund)

	return in
}

// requestRefund is two-phase: the ticket is marked REFUND_REQUESTED before
// the gateway call, and reverted to its prior status on failure or timeout,
// so a crash mid-flight leaves a recoverable state and a retryable call.
func (in RefundHttp) requestRefund(w http.ResponseWriter, r *http.Request) {
	var req model.RequestRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	if err := in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	organizerID := r.Header.Get(HeaderOrganizerID)
	if organizerID == "" {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusUnauthorized, Message: "Missing organizer session"})
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "RefundHttp.requestRefund")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	ticketID := r.PathValue("id")

	slog.InfoContext(ctx, "request refund receive request", traceIdAttr)

	// Re-authentication comes first: a wrong password must change nothing
	// and never reach the gateway.
	ok, err := in.Reauth.CheckPassword(ctx, organizerID, req.Password)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check password", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if !ok {
		writeErrorResponse(w, errs.ErrReauthenticationFail)
		return
	}

	ticket, err := in.Querier.FindTicketByID(ctx, ticketID)
	if err != nil {
		if err == pgx.ErrNoRows {
			writeErrorResponse(w, errs.ErrTicketNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to find ticket", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	// A void is also the manual way out of a stuck REFUND_REQUESTED once the
	// gateway outcome is known out-of-band.
	voidableStuck := req.Void && ticket.Status == model.TicketStatusRefundRequested
	if !ticket.Status.RefundEligible() && !voidableStuck {
		writeErrorResponse(w, errs.ErrInvalidTransition)
		return
	}

	now := in.TimeNow().UTC()

	// CANCELLED is reserved for non-monetary voids: free tickets and
	// administrative cancellations.
	if req.Void || ticket.PriceCents == 0 {
		tag, err := in.Querier.MarkTicketCancelled(ctx, ticket.ID, organizerID, req.Reason, ticket.Status, now)
		if err != nil {
			slog.ErrorContext(ctx, "failed to cancel ticket", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			writeErrorResponse(w, err)
			return
		}

		if tag.RowsAffected() == 0 {
			writeErrorResponse(w, errs.ErrInvalidTransition)
			return
		}

		in.publishNotification(ctx, ticket, constant.NotificationKindCancelled, &req.Reason)

		slog.InfoContext(ctx, "ticket cancelled", traceIdAttr)
		writeJSONResponse(w, http.StatusOK, model.RequestRefundResponse{
			Refunded: false,
			Status:   model.TicketStatusCancelled,
		})
		return
	}

	tag, err := in.Querier.UpdateTicketStatus(ctx, ticket.ID, ticket.Status, model.TicketStatusRefundRequested, now)
	if err != nil {
		slog.ErrorContext(ctx, "failed to mark refund requested", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if tag.RowsAffected() == 0 {
		writeErrorResponse(w, errs.ErrInvalidTransition)
		return
	}

	// A ticket's price traces to exactly one payment or installment.
	refundTarget := ticket.PaymentID
	if ticket.InstallmentID != nil {
		refundTarget = *ticket.InstallmentID
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, in.gatewayTimeout)
	defer cancel()

	receiptURL, gatewayErr := in.Gateway.Refund(gatewayCtx, refundTarget, ticket.PriceCents)
	if gatewayErr != nil {
		in.revertRefundRequest(ctx, ticket, now)

		reason := ""
		var refundErr *payment.RefundError
		if errors.As(gatewayErr, &refundErr) {
			reason = refundErr.Reason
		}

		slog.ErrorContext(ctx, "refund gateway call failed", traceIdAttr, slog.Any(constant.LogFieldErr, gatewayErr))

		message := errs.ErrRefundGatewayFailure.Message
		if reason != "" {
			message = reason
		}
		writeErrorResponse(w, &errs.DomainError{Code: errs.ErrRefundGatewayFailure.Code, Message: message})
		return
	}

	tag, err = in.Querier.MarkTicketRefunded(ctx, ticket.ID, organizerID, req.Reason, receiptURL, now)
	if err != nil || tag.RowsAffected() == 0 {
		// The money moved but the stamp failed; leave REFUND_REQUESTED for
		// the stuck-refund sweep rather than guess at a state.
		slog.ErrorContext(ctx, "failed to mark ticket refunded", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusInternalServerError, Message: "Refund completed but not recorded, operator attention required"})
		return
	}

	in.publishNotification(ctx, ticket, constant.NotificationKindRefunded, &req.Reason)

	slog.InfoContext(ctx, "refund success", traceIdAttr, slog.Any(constant.LogFieldResponse, receiptURL))

	writeJSONResponse(w, http.StatusOK, model.RequestRefundResponse{
		Refunded:   true,
		Status:     model.TicketStatusRefunded,
		ReceiptURL: receiptURL,
	})
}

func (in RefundHttp) revertRefundRequest(ctx context.Context, ticket model.Ticket, now time.Time) {
	tag, err := in.Querier.UpdateTicketStatus(ctx, ticket.ID, model.TicketStatusRefundRequested, ticket.Status, now)
	if err != nil || tag.RowsAffected() == 0 {
		slog.ErrorContext(ctx, "failed to revert refund request, ticket left for stuck-refund sweep",
			slog.String("ticket_id", ticket.ID), slog.Any(constant.LogFieldErr, err))
	}
}

func (in RefundHttp) publishNotification(ctx context.Context, ticket model.Ticket, kind string, reason *string) {
	err := common.PublishMessage(ctx, in.Publisher, constant.SubjectTicketNotification, model.TicketNotificationEventMessage{
		Kind:         kind,
		TicketID:     ticket.ID,
		PaymentID:    ticket.PaymentID,
		Name:         ticket.CustomerName,
		Email:        ticket.CustomerEmail,
		Code:         ticket.Code,
		PriceCents:   ticket.PriceCents,
		RefundReason: reason,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to publish ticket notification", slog.Any(constant.LogFieldErr, err))
	}
}
