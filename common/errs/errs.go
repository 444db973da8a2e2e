package errs

import "fmt"

type HttpError struct {
	Code    int
	Message string
	Data    any
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("code %d: %s, data: %v", e.Code, e.Message, e.Data)
}

// DomainError carries a stable machine-readable code so client UIs can branch
// on cause instead of parsing free text.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var (
	ErrInsufficientInventory = &DomainError{Code: "INSUFFICIENT_INVENTORY", Message: "not enough remaining capacity"}
	ErrHoldExpired           = &DomainError{Code: "HOLD_EXPIRED", Message: "hold has expired"}
	ErrHoldNotFound          = &DomainError{Code: "HOLD_NOT_FOUND", Message: "hold not found"}
	ErrInvalidTransition     = &DomainError{Code: "INVALID_TRANSITION", Message: "illegal ticket status transition"}
	ErrUnknownEventDate      = &DomainError{Code: "UNKNOWN_EVENT_DATE", Message: "event date does not belong to the event"}
	ErrAlreadyValidated      = &DomainError{Code: "ALREADY_VALIDATED", Message: "ticket already validated for this date"}
	ErrTicketNotFound        = &DomainError{Code: "TICKET_NOT_FOUND", Message: "ticket not found"}
	ErrRefundGatewayFailure  = &DomainError{Code: "REFUND_GATEWAY_FAILURE", Message: "payment gateway refund failed"}
	ErrReauthenticationFail  = &DomainError{Code: "REAUTHENTICATION_FAILED", Message: "password confirmation failed"}
	ErrTooManyScanLinks      = &DomainError{Code: "TOO_MANY_SCAN_LINKS", Message: "scan link limit reached"}
	ErrInvalidScanPassword   = &DomainError{Code: "INVALID_SCAN_PASSWORD", Message: "invalid scan link password"}
	ErrScanLinkFull          = &DomainError{Code: "SCAN_LINK_FULL", Message: "scan link user limit reached"}
	ErrScanLinkNotFound      = &DomainError{Code: "SCAN_LINK_NOT_FOUND", Message: "scan link not found"}
)
