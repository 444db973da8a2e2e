package model

import "time"

// ValidationOutcome is the structured result of a validateByCode call. The
// gate UI branches on it: deny entry, no action, or investigate.
type ValidationOutcome string

const (
	ValidationOutcomeValid       ValidationOutcome = "VALID"
	ValidationOutcomeAlreadyUsed ValidationOutcome = "ALREADY_USED"
	ValidationOutcomeInvalidCode ValidationOutcome = "INVALID_CODE"
	ValidationOutcomeCancelled   ValidationOutcome = "CANCELLED"
	ValidationOutcomeWrongEvent  ValidationOutcome = "WRONG_EVENT"
)

type ValidationMethod string

const (
	ValidationMethodButton  ValidationMethod = "button"
	ValidationMethodQRScan  ValidationMethod = "qr-scan"
	ValidationMethodQRImage ValidationMethod = "qr-image"
)

type ValidationRecord struct {
	ID                   string
	TicketID             string
	EventDateID          int64
	ValidatedAt          time.Time
	ValidatedByOrganizer bool
	Method               ValidationMethod
	ValidatorName        *string
	ValidatorLocation    *string
	ValidatorIP          *string
	ScanLinkID           *string
}

// ValidationActor identifies who is performing an entry check: either the
// organizer's own session or delegated scan-link staff.
type ValidationActor struct {
	OrganizerID string
	ScanLinkID  string
	StaffName   string
	StaffPlace  string
	IP          string
}

func (a ValidationActor) Delegated() bool {
	return a.ScanLinkID != ""
}
