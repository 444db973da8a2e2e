package model

// PaymentCallbackRequest is the gateway webhook payload. Status is the
// gateway verdict: settled, failed, expired or overdue.
type PaymentCallbackRequest struct {
	PaymentID string `json:"payment_id" validate:"required"`
	Status    string `json:"status" validate:"required,oneof=settled failed expired overdue"`
	Reason    string `json:"reason"`
}

type SettlePaymentEventMessage struct {
	PaymentID string `json:"payment_id"`
}

type FailPaymentEventMessage struct {
	PaymentID string `json:"payment_id"`
	Verdict   string `json:"verdict"`
	Reason    string `json:"reason"`
}

type TicketNotificationEventMessage struct {
	Kind         string  `json:"kind"`
	TicketID     string  `json:"ticket_id"`
	PaymentID    string  `json:"payment_id"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	Code         string  `json:"code"`
	PriceCents   int64   `json:"price_cents"`
	PaymentCode  string  `json:"payment_code,omitempty"`
	ExpiredAt    string  `json:"expired_at,omitempty"`
	RefundReason *string `json:"refund_reason,omitempty"`
}

type SendEmailEventMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
