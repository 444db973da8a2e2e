package http

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"encoding/json"
	"event-ticket/common/errs"
	"event-ticket/model"
	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"net/http"
)

func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// writeJSONWithETag serves a read endpoint cache-friendly: strong ETag over
// the encoded body, 304 when If-None-Match matches.
func writeJSONWithETag(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	sum := sha256.Sum256(body)
	tag := `"` + hex.EncodeToString(sum[:]) + `"`

	w.Header().Set("ETag", tag)
	if r.Header.Get("If-None-Match") == tag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(body)
}

// domainErrorStatus maps the stable error codes to HTTP statuses in one
// place so client UIs can branch on cause.
var domainErrorStatus = map[string]int{
	errs.ErrInsufficientInventory.Code: http.StatusConflict,
	errs.ErrHoldExpired.Code:           http.StatusGone,
	errs.ErrHoldNotFound.Code:          http.StatusNotFound,
	errs.ErrInvalidTransition.Code:     http.StatusConflict,
	errs.ErrUnknownEventDate.Code:      http.StatusBadRequest,
	errs.ErrAlreadyValidated.Code:      http.StatusConflict,
	errs.ErrTicketNotFound.Code:        http.StatusNotFound,
	errs.ErrRefundGatewayFailure.Code:  http.StatusBadGateway,
	errs.ErrReauthenticationFail.Code:  http.StatusUnauthorized,
	errs.ErrTooManyScanLinks.Code:      http.StatusConflict,
	errs.ErrInvalidScanPassword.Code:   http.StatusUnauthorized,
	errs.ErrScanLinkFull.Code:          http.StatusConflict,
	errs.ErrScanLinkNotFound.Code:      http.StatusNotFound,
}

func writeErrorResponse(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	w.Header().Set("Content-Type", "application/json")

	var message, code string
	var data any
	if httpErr, ok := err.(*errs.HttpError); ok {
		message = httpErr.Message
		data = httpErr.Data
		w.WriteHeader(httpErr.Code)
	} else if domainErr, ok := err.(*errs.DomainError); ok {
		message = domainErr.Message
		code = domainErr.Code

		status, found := domainErrorStatus[domainErr.Code]
		if !found {
			status = http.StatusInternalServerError
		}
		w.WriteHeader(status)
	} else if validationErr, ok := err.(validator.ValidationErrors); ok {
		message = "Validation failed"
		w.WriteHeader(http.StatusBadRequest)

		validationErrors := make(map[string]string)
		for _, fieldErr := range validationErr {
			fieldName := fieldErr.Field()
			validationErrors[fieldName] = fieldErr.Tag()
		}

		data = validationErrors
	} else {
		message = "Internal Server Error"
		w.WriteHeader(500)
	}

	errorResponse := model.ErrorResponse{Error: message, Code: code, Data: data}
	if err := json.NewEncoder(w).Encode(errorResponse); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

var entryCodeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// generateEntryCode returns an opaque, unguessable ticket code: 160 bits
// from crypto/rand, base32 without padding.
func generateEntryCode() string {
	var buf [20]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err)
	}
	return entryCodeEncoding.EncodeToString(buf[:])
}

func generatePaymentCode() string {
	return ulid.Make().String()
}
