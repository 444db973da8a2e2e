package http

import (
	"encoding/json"
	"event-ticket/common"
	"event-ticket/common/constant"
	"event-ticket/common/errs"
	"event-ticket/common/otel"
	"event-ticket/model"
	"event-ticket/outbound/store"
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"log/slog"
	"net/http"
	"time"
)

type ScanLinkHttp struct {
	Querier  *store.Queries
	Cache    *redis.Client
	Validate *validator.Validate

	TimeNow func() time.Time
}

func RegisterScanLinkHttp(
	mux *http.ServeMux,
	querier *store.Queries,
	cache *redis.Client,
	validate *validator.Validate,
) *ScanLinkHttp {
	in := &ScanLinkHttp{
		Querier:  querier,
		Cache:    cache,
		Validate: validate,
		TimeNow:  time.Now,
	}

	mux.HandleFunc("POST /api/scan-links", in.create)
	mux.HandleFunc("GET /api/scan-links", in.list)
	mux.HandleFunc("DELETE /api/scan-links/{id}", in.delete)
	mux.HandleFunc("POST /api/scan-links/{id}/sessions", in.createSession)
	mux.HandleFunc("DELETE /api/scan-links/{id}/sessions/{token}", in.deleteSession)

	return in
}

func (in ScanLinkHttp) create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateScanLinkRequest
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

	ctx, span := otel.Tracer.Start(r.Context(), "ScanLinkHttp.create")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash password", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	now := in.TimeNow().UTC()
	link := model.ScanLink{
		ID:           ulid.Make().String(),
		OrganizerID:  organizerID,
		PasswordHash: string(hash),
		MaxUsers:     req.MaxUsers,
		ExpiresAt:    now.Add(time.Duration(req.ExpiresInHr) * time.Hour),
		CreatedAt:    now,
	}

	if err := in.Querier.InsertScanLink(ctx, link); err != nil {
		if err == errs.ErrTooManyScanLinks {
			slog.DebugContext(ctx, "scan link limit reached", traceIdAttr)
		} else {
			slog.ErrorContext(ctx, "failed to insert scan link", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		}
		writeErrorResponse(w, err)
		return
	}

	slog.InfoContext(ctx, "create scan link success", traceIdAttr)

	writeJSONResponse(w, http.StatusCreated, scanLinkResponse(link))
}

func (in ScanLinkHttp) list(w http.ResponseWriter, r *http.Request) {
	organizerID := r.Header.Get(HeaderOrganizerID)
	if organizerID == "" {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusUnauthorized, Message: "Missing organizer session"})
		return
	}

	ctx := r.Context()

	links, err := in.Querier.ListScanLinksByOrganizer(ctx, organizerID, in.TimeNow().UTC())
	if err != nil {
		slog.ErrorContext(ctx, "failed to list scan links", slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	resp := make([]model.ScanLinkResponse, 0, len(links))
	for _, l := range links {
		resp = append(resp, scanLinkResponse(l))
	}

	writeJSONWithETag(w, r, http.StatusOK, resp)
}

func (in ScanLinkHttp) delete(w http.ResponseWriter, r *http.Request) {
	organizerID := r.Header.Get(HeaderOrganizerID)
	if organizerID == "" {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusUnauthorized, Message: "Missing organizer session"})
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "ScanLinkHttp.delete")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	deleted, err := in.Querier.DeleteScanLink(ctx, r.PathValue("id"), organizerID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete scan link", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if !deleted {
		writeErrorResponse(w, errs.ErrScanLinkNotFound)
		return
	}

	slog.InfoContext(ctx, "delete scan link success", traceIdAttr)

	writeJSONResponse(w, http.StatusNoContent, nil)
}

// createSession authenticates delegated staff against a link's password and
// grants a validation token for the rest of the link's lifetime.
func (in ScanLinkHttp) createSession(w http.ResponseWriter, r *http.Request) {
	var req model.AuthScanLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	if err := in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "ScanLinkHttp.createSession")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	linkID := r.PathValue("id")

	link, err := in.Querier.FindScanLink(ctx, linkID)
	if err != nil {
		if err == pgx.ErrNoRows {
			writeErrorResponse(w, errs.ErrScanLinkNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to find scan link", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	now := in.TimeNow().UTC()
	if link.ExpiredAt(now) {
		writeErrorResponse(w, errs.ErrScanLinkNotFound)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(link.PasswordHash), []byte(req.Password)); err != nil {
		writeErrorResponse(w, errs.ErrInvalidScanPassword)
		return
	}

	if err := in.Querier.IncrementScanLinkUsers(ctx, linkID); err != nil {
		if err == errs.ErrScanLinkFull {
			slog.DebugContext(ctx, "scan link full", traceIdAttr)
		} else {
			slog.ErrorContext(ctx, "failed to increment scan link users", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		}
		writeErrorResponse(w, err)
		return
	}

	token := ulid.Make().String()
	ttl := link.ExpiresAt.Sub(now)

	err = in.Cache.Set(ctx, fmt.Sprintf(constant.ScanLinkSessionKey, token), linkID, ttl).Err()
	if err != nil {
		slog.ErrorContext(ctx, "failed to store scan session", traceIdAttr, slog.Any(constant.LogFieldErr, err))

		if decErr := in.Querier.DecrementScanLinkUsers(ctx, linkID); decErr != nil {
			slog.ErrorContext(ctx, "failed to decrement scan link users", traceIdAttr, slog.Any(constant.LogFieldErr, decErr))
		}
		writeErrorResponse(w, err)
		return
	}

	slog.InfoContext(ctx, "create scan session success", traceIdAttr)

	writeJSONResponse(w, http.StatusCreated, model.AuthScanLinkResponse{
		Token:     token,
		ExpiresAt: link.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (in ScanLinkHttp) deleteSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer.Start(r.Context(), "ScanLinkHttp.deleteSession")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	linkID := r.PathValue("id")
	token := r.PathValue("token")

	sessionKey := fmt.Sprintf(constant.ScanLinkSessionKey, token)

	// The token must belong to the link in the path, or a token from one
	// link could free a seat on another.
	storedLinkID, err := in.Cache.Get(ctx, sessionKey).Result()
	if err == redis.Nil {
		// Already ended; deleting again stays a no-op.
		writeJSONResponse(w, http.StatusNoContent, nil)
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to look up scan session", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if storedLinkID != linkID {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusNotFound, Message: "Scan session not found"})
		return
	}

	removed, err := in.Cache.Del(ctx, sessionKey).Result()
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete scan session", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	// Only the delete that actually removed the session releases the seat;
	// a concurrent delete of the same token must not decrement twice.
	if removed > 0 {
		if err := in.Querier.DecrementScanLinkUsers(ctx, linkID); err != nil {
			slog.ErrorContext(ctx, "failed to decrement scan link users", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			writeErrorResponse(w, err)
			return
		}
	}

	writeJSONResponse(w, http.StatusNoContent, nil)
}

func scanLinkResponse(l model.ScanLink) model.ScanLinkResponse {
	return model.ScanLinkResponse{
		ID:           l.ID,
		MaxUsers:     l.MaxUsers,
		CurrentUsers: l.CurrentUsers,
		ExpiresAt:    l.ExpiresAt.UTC().Format(time.RFC3339),
	}
}
