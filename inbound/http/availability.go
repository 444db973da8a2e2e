package http

import (
	"event-ticket/common/constant"
	"event-ticket/common/errs"
	"event-ticket/model"
	"event-ticket/outbound/store"
	"log/slog"
	"net/http"
	"strconv"
)

type AvailabilityHttp struct {
	Querier *store.Queries
}

func RegisterAvailabilityHttp(mux *http.ServeMux, querier *store.Queries) *AvailabilityHttp {
	in := &AvailabilityHttp{Querier: querier}
	mux.HandleFunc("GET /api/availability", in.get)
	return in
}

func (in AvailabilityHttp) get(w http.ResponseWriter, r *http.Request) {
	eventID, err := strconv.ParseInt(r.URL.Query().Get("event_id"), 10, 64)
	if err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid event_id"})
		return
	}

	ctx := r.Context()

	counters, err := in.Querier.ListCountersByEvent(ctx, eventID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list inventory counters", slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	resp := model.AvailabilityResponse{
		EventID: eventID,
		Items:   make([]model.AvailabilityItem, 0, len(counters)),
	}
	for _, c := range counters {
		available := c.Available()
		if available < 0 {
			available = 0
		}
		resp.Items = append(resp.Items, model.AvailabilityItem{
			EventDateID:  c.Key.EventDateID,
			TicketTypeID: c.Key.TicketTypeID,
			Available:    available,
		})
	}

	writeJSONWithETag(w, r, http.StatusOK, resp)
}
