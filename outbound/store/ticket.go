package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"event-ticket/common/errs"
	"event-ticket/model"

	"github.com/jackc/pgx/v5/pgconn"
)

const ticketColumns = `id, event_id, event_date_ids, ticket_type_id, customer_id, customer_name,
	customer_email, customer_phone, price_cents, code, payment_id, installment_id,
	payment_code, payment_expires_at, status, hold_id, cancelled_by, cancelled_at,
	refunded_at, refunded_by, refund_reason, refund_receipt_url, created_at, updated_at`

func (q *Queries) InsertTicket(ctx context.Context, t model.Ticket) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO tickets (id, event_id, event_date_ids, ticket_type_id, customer_id, customer_name,
			customer_email, customer_phone, price_cents, code, payment_id, installment_id,
			payment_code, payment_expires_at, status, hold_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		t.ID, t.EventID, t.EventDateIDs, t.TicketTypeID, t.CustomerID, t.CustomerName,
		t.CustomerEmail, t.CustomerPhone, t.PriceCents, t.Code, t.PaymentID, t.InstallmentID,
		t.PaymentCode, t.PaymentExpiresAt, t.Status, t.HoldID, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (q *Queries) FindTicketByID(ctx context.Context, id string) (model.Ticket, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)
	return scanTicket(row)
}

// FindTicketByCode resolves a ticket by its opaque entry code. The code
// column is unique, giving a constant-time index lookup.
func (q *Queries) FindTicketByCode(ctx context.Context, code string) (model.Ticket, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE code = $1`, code)
	return scanTicket(row)
}

func (q *Queries) FindTicketsByPaymentID(ctx context.Context, paymentID string) ([]model.Ticket, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE payment_id = $1 ORDER BY id`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}

	return tickets, rows.Err()
}

// UpdateTicketStatus is a CAS on the expected prior status. RowsAffected 0
// means someone else transitioned the ticket first. Pairs outside the
// transition table are refused before any row is touched.
func (q *Queries) UpdateTicketStatus(ctx context.Context, id string, from, to model.TicketStatus, now time.Time) (pgconn.CommandTag, error) {
	if !from.CanTransitionTo(to) {
		return pgconn.CommandTag{}, errs.ErrInvalidTransition
	}

	return q.db.Exec(ctx,
		`UPDATE tickets SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		id, from, to, now,
	)
}

func (q *Queries) MarkTicketRefunded(ctx context.Context, id string, by, reason, receiptURL string, now time.Time) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx,
		`UPDATE tickets
		 SET status = $2, refunded_at = $3, refunded_by = $4, refund_reason = $5,
		     refund_receipt_url = $6, updated_at = $3
		 WHERE id = $1 AND status = $7`,
		id, model.TicketStatusRefunded, now, by, reason, receiptURL, model.TicketStatusRefundRequested,
	)
}

func (q *Queries) MarkTicketCancelled(ctx context.Context, id string, by, reason string, from model.TicketStatus, now time.Time) (pgconn.CommandTag, error) {
	if !from.CanTransitionTo(model.TicketStatusCancelled) {
		return pgconn.CommandTag{}, errs.ErrInvalidTransition
	}

	return q.db.Exec(ctx,
		`UPDATE tickets
		 SET status = $2, cancelled_by = $3, cancelled_at = $4, refund_reason = $5, updated_at = $4
		 WHERE id = $1 AND status = $6`,
		id, model.TicketStatusCancelled, by, now, reason, from,
	)
}

// ListStuckRefundRequests returns tickets sitting in REFUND_REQUESTED longer
// than maxAge. They indicate a refund that reached the gateway but never got
// recorded, and need operator follow-up.
func (q *Queries) ListStuckRefundRequests(ctx context.Context, now time.Time, maxAge time.Duration, limit int32) ([]model.Ticket, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+ticketColumns+` FROM tickets
		 WHERE status = 'REFUND_REQUESTED' AND updated_at <= $1
		 ORDER BY updated_at
		 LIMIT $2`,
		now.Add(-maxAge), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}

	return tickets, rows.Err()
}

// ClaimOverdueTickets batch-flips PENDING tickets past their payment window
// to OVERDUE and returns them so the caller can release the backing holds.
func (q *Queries) ClaimOverdueTickets(ctx context.Context, now time.Time, limit int32) ([]model.Ticket, error) {
	rows, err := q.db.Query(ctx,
		`UPDATE tickets SET status = 'OVERDUE', updated_at = $1
		 WHERE id IN (
		 	SELECT id FROM tickets
		 	WHERE status = 'PENDING' AND payment_expires_at <= $1
		 	LIMIT $2
		 	FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+ticketColumns,
		now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}

	return tickets, rows.Err()
}

type ListTicketsParams struct {
	EventID     int64
	Status      model.TicketStatus
	EventDateID int64
	Search      string
	Offset      int32
	Limit       int32
}

// ListTickets is the organizer listing: filter by status and date, free-text
// match on name, email or phone, offset/limit pagination.
func (q *Queries) ListTickets(ctx context.Context, p ListTicketsParams) ([]model.Ticket, int64, error) {
	where := []string{"event_id = $1"}
	args := []any{p.EventID}

	if p.Status != "" {
		args = append(args, p.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if p.EventDateID != 0 {
		args = append(args, p.EventDateID)
		where = append(where, fmt.Sprintf("$%d = ANY(event_date_ids)", len(args)))
	}
	if p.Search != "" {
		args = append(args, "%"+p.Search+"%")
		where = append(where, fmt.Sprintf("(customer_name ILIKE $%d OR customer_email ILIKE $%d OR customer_phone ILIKE $%d)",
			len(args), len(args), len(args)))
	}

	cond := strings.Join(where, " AND ")

	var total int64
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE `+cond, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	args = append(args, p.Limit, p.Offset)
	rows, err := q.db.Query(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE `+cond+
			fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tickets []model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, err
		}
		tickets = append(tickets, t)
	}

	return tickets, total, rows.Err()
}

func scanTicket(row interface{ Scan(dest ...any) error }) (model.Ticket, error) {
	var t model.Ticket
	err := row.Scan(
		&t.ID, &t.EventID, &t.EventDateIDs, &t.TicketTypeID, &t.CustomerID, &t.CustomerName,
		&t.CustomerEmail, &t.CustomerPhone, &t.PriceCents, &t.Code, &t.PaymentID, &t.InstallmentID,
		&t.PaymentCode, &t.PaymentExpiresAt, &t.Status, &t.HoldID, &t.CancelledBy, &t.CancelledAt,
		&t.RefundedAt, &t.RefundedBy, &t.RefundReason, &t.RefundReceiptURL, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}
