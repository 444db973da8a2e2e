package model

import "time"

type TicketStatus string

const (
	TicketStatusPending         TicketStatus = "PENDING"
	TicketStatusConfirmed       TicketStatus = "CONFIRMED"
	TicketStatusUsed            TicketStatus = "USED"
	TicketStatusPartiallyUsed   TicketStatus = "PARTIALLY_USED"
	TicketStatusCancelled       TicketStatus = "CANCELLED"
	TicketStatusRefunded        TicketStatus = "REFUNDED"
	TicketStatusRefundRequested TicketStatus = "REFUND_REQUESTED"
	TicketStatusOverdue         TicketStatus = "OVERDUE"
	TicketStatusExpired         TicketStatus = "EXPIRED"
	TicketStatusFailed          TicketStatus = "FAILED"
)

// ticketTransitions is the closed transition table. PENDING is the sole
// initial state; CANCELLED and REFUNDED are terminal. REFUND_REQUESTED may
// fall back to CONFIRMED or PARTIALLY_USED when the gateway call fails.
var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusPending:         {TicketStatusConfirmed, TicketStatusFailed, TicketStatusExpired, TicketStatusOverdue},
	TicketStatusConfirmed:       {TicketStatusUsed, TicketStatusPartiallyUsed, TicketStatusRefundRequested, TicketStatusCancelled},
	TicketStatusPartiallyUsed:   {TicketStatusUsed, TicketStatusPartiallyUsed, TicketStatusRefundRequested, TicketStatusCancelled},
	TicketStatusRefundRequested: {TicketStatusRefunded, TicketStatusConfirmed, TicketStatusPartiallyUsed, TicketStatusCancelled},
	TicketStatusUsed:            {},
	TicketStatusCancelled:       {},
	TicketStatusRefunded:        {},
	TicketStatusOverdue:         {},
	TicketStatusExpired:         {},
	TicketStatusFailed:          {},
}

func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	if s == next {
		return s == TicketStatusPartiallyUsed
	}
	for _, allowed := range ticketTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s TicketStatus) Terminal() bool {
	return s == TicketStatusCancelled || s == TicketStatusRefunded
}

// AdmissionEligible reports whether a ticket in this status can be admitted
// at the gate.
func (s TicketStatus) AdmissionEligible() bool {
	return s == TicketStatusConfirmed || s == TicketStatusPartiallyUsed
}

// RefundEligible reports whether an organizer may start a refund. Fully used
// tickets are deliberately excluded.
func (s TicketStatus) RefundEligible() bool {
	return s == TicketStatusConfirmed || s == TicketStatusPartiallyUsed
}

type Ticket struct {
	ID               string
	EventID          int64
	EventDateIDs     []int64
	TicketTypeID     int64
	CustomerID       string
	CustomerName     string
	CustomerEmail    string
	CustomerPhone    string
	PriceCents       int64
	Code             string
	PaymentID        string
	InstallmentID    *string
	PaymentCode      string
	PaymentExpiresAt time.Time
	Status           TicketStatus
	HoldID           *string

	CancelledBy      *string
	CancelledAt      *time.Time
	RefundedAt       *time.Time
	RefundedBy       *string
	RefundReason     *string
	RefundReceiptURL *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AdmissionUnits is the number of separately validatable occurrences: one for
// single-date tickets, one per date for multi-date passes.
func (t Ticket) AdmissionUnits() int {
	if len(t.EventDateIDs) == 0 {
		return 1
	}
	return len(t.EventDateIDs)
}

func (t Ticket) CoversDate(eventDateID int64) bool {
	for _, id := range t.EventDateIDs {
		if id == eventDateID {
			return true
		}
	}
	return false
}
