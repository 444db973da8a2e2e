package model

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Data  any    `json:"data,omitempty"`
}

type CreateHoldLineRequest struct {
	EventID      int64 `json:"event_id" validate:"required"`
	EventDateID  int64 `json:"event_date_id" validate:"required"`
	TicketTypeID int64 `json:"ticket_type_id" validate:"required"`
	Quantity     int32 `json:"quantity" validate:"required,min=1,max=20"`
}

type CreateHoldRequest struct {
	OwnerID string                  `json:"owner_id" validate:"required,max=64"`
	Items   []CreateHoldLineRequest `json:"items" validate:"required,min=1,max=10,dive"`
}

type HoldResponse struct {
	ID           string `json:"id"`
	EventID      int64  `json:"event_id"`
	EventDateID  int64  `json:"event_date_id"`
	TicketTypeID int64  `json:"ticket_type_id"`
	Quantity     int32  `json:"quantity"`
	ExpiresAt    string `json:"expires_at"`
}

type CreateHoldResponse struct {
	Holds []HoldResponse `json:"holds"`
}

type UpdateHoldQuantityRequest struct {
	Quantity int32 `json:"quantity" validate:"required,min=1,max=20"`
}

type CreateOrderItemRequest struct {
	HoldID string `json:"hold_id" validate:"required,len=26"`
	// EventDateIDs covers multi-date passes; empty means the hold's own date.
	EventDateIDs []int64 `json:"event_date_ids" validate:"max=31,unique"`
}

type CreateOrderRequest struct {
	OwnerID string                   `json:"owner_id" validate:"required,max=64"`
	Items   []CreateOrderItemRequest `json:"items" validate:"required,min=1,max=10,dive"`
	Name    string                   `json:"name" validate:"required,max=100"`
	Email   string                   `json:"email" validate:"required,email"`
	Phone   string                   `json:"phone" validate:"required,e164"`
}

type OrderTicketResponse struct {
	ID     string       `json:"id"`
	Code   string       `json:"code"`
	Status TicketStatus `json:"status"`
}

type CreateOrderResponse struct {
	PaymentID   string                `json:"payment_id"`
	PaymentCode string                `json:"payment_code"`
	ExpiredAt   string                `json:"expired_at"`
	Tickets     []OrderTicketResponse `json:"tickets"`
}

type TicketResponse struct {
	ID            string       `json:"id"`
	EventID       int64        `json:"event_id"`
	EventDateIDs  []int64      `json:"event_date_ids"`
	TicketTypeID  int64        `json:"ticket_type_id"`
	CustomerName  string       `json:"customer_name"`
	CustomerEmail string       `json:"customer_email"`
	PriceCents    int64        `json:"price_cents"`
	Status        TicketStatus `json:"status"`
	PaymentID     string       `json:"payment_id"`
	CreatedAt     string       `json:"created_at"`
}

type ListTicketsResponse struct {
	Tickets []TicketResponse `json:"tickets"`
	Total   int64            `json:"total"`
	Offset  int32            `json:"offset"`
	Limit   int32            `json:"limit"`
}

type ValidateTicketRequest struct {
	Code        string           `json:"code" validate:"required,max=64"`
	EventID     int64            `json:"event_id" validate:"required"`
	EventDateID int64            `json:"event_date_id"`
	Method      ValidationMethod `json:"method" validate:"required,oneof=button qr-scan qr-image"`
	StaffName   string           `json:"staff_name" validate:"max=100"`
	StaffPlace  string           `json:"staff_place" validate:"max=100"`
}

type ValidateTicketResponse struct {
	Result ValidationOutcome `json:"result"`
	Ticket *TicketResponse   `json:"ticket,omitempty"`
}

type RequestRefundRequest struct {
	Reason   string `json:"reason" validate:"required,min=1,max=600"`
	Password string `json:"password" validate:"required"`
	Void     bool   `json:"void"`
}

type RequestRefundResponse struct {
	Refunded   bool         `json:"refunded"`
	Status     TicketStatus `json:"status"`
	ReceiptURL string       `json:"receipt_url,omitempty"`
	Reason     string       `json:"reason,omitempty"`
}

type CreateScanLinkRequest struct {
	MaxUsers    int32  `json:"max_users" validate:"required,min=1,max=50"`
	Password    string `json:"password" validate:"required,min=4,max=72"`
	ExpiresInHr int32  `json:"expires_in_hours" validate:"required,min=1,max=168"`
}

type ScanLinkResponse struct {
	ID           string `json:"id"`
	MaxUsers     int32  `json:"max_users"`
	CurrentUsers int32  `json:"current_users"`
	ExpiresAt    string `json:"expires_at"`
}

type AuthScanLinkRequest struct {
	Password  string `json:"password" validate:"required"`
	StaffName string `json:"staff_name" validate:"required,max=100"`
}

type AuthScanLinkResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

type AvailabilityResponse struct {
	EventID int64              `json:"event_id"`
	Items   []AvailabilityItem `json:"items"`
}

type AvailabilityItem struct {
	EventDateID  int64 `json:"event_date_id"`
	TicketTypeID int64 `json:"ticket_type_id"`
	Available    int32 `json:"available"`
}
