package http

import (
	"event-ticket/common"
	"event-ticket/common/constant"
	"event-ticket/common/errs"
	"event-ticket/common/otel"
	"event-ticket/model"
	"event-ticket/outbound/store"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

type TicketHttp struct {
	Querier *store.Queries
}

func RegisterTicketHttp(mux *http.ServeMux, querier *store.Queries) *TicketHttp {
	in := &TicketHttp{Querier: querier}

	mux.HandleFunc("GET /api/tickets", in.list)
	mux.HandleFunc("GET /api/tickets/{id}/validations", in.validations)

	return in
}

func (in *TicketHttp) list(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer.Start(r.Context(), "TicketHttp.list")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	eventID, err := strconv.ParseInt(r.URL.Query().Get("event_id"), 10, 64)
	if err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "event_id is required"})
		return
	}

	params := store.ListTicketsParams{
		EventID: eventID,
		Status:  model.TicketStatus(r.URL.Query().Get("status")),
		Search:  r.URL.Query().Get("search"),
		Limit:   20,
	}

	if raw := r.URL.Query().Get("event_date_id"); raw != "" {
		params.EventDateID, _ = strconv.ParseInt(raw, 10, 64)
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, _ := strconv.ParseInt(raw, 10, 32)
		params.Offset = max(int32(offset), 0)
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ := strconv.ParseInt(raw, 10, 32)
		params.Limit = min(max(int32(limit), 1), 100)
	}

	tickets, total, err := in.Querier.ListTickets(ctx, params)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list tickets", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	resp := model.ListTicketsResponse{
		Tickets: make([]model.TicketResponse, 0, len(tickets)),
		Total:   total,
		Offset:  params.Offset,
		Limit:   params.Limit,
	}
	for _, t := range tickets {
		resp.Tickets = append(resp.Tickets, ticketResponse(t))
	}

	writeJSONWithETag(w, r, http.StatusOK, resp)
}

func (in *TicketHttp) validations(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer.Start(r.Context(), "TicketHttp.validations")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	records, err := in.Querier.ListValidationsByTicket(ctx, r.PathValue("id"))
	if err != nil {
		slog.ErrorContext(ctx, "failed to list validations", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, records)
}

func ticketResponse(t model.Ticket) model.TicketResponse {
	return model.TicketResponse{
		ID:            t.ID,
		EventID:       t.EventID,
		EventDateIDs:  t.EventDateIDs,
		TicketTypeID:  t.TicketTypeID,
		CustomerName:  t.CustomerName,
		CustomerEmail: t.CustomerEmail,
		PriceCents:    t.PriceCents,
		Status:        t.Status,
		PaymentID:     t.PaymentID,
		CreatedAt:     t.CreatedAt.UTC().Format(time.RFC3339),
	}
}
