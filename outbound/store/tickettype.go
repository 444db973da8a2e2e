package store

import "context"

// FindTicketTypePrice returns the current price of a ticket type in cents.
// Pricing is owned by the catalog tables; the engine only reads it at
// issuance so each ticket records the price it was sold at.
func (q *Queries) FindTicketTypePrice(ctx context.Context, ticketTypeID int64) (int64, error) {
	var priceCents int64
	err := q.db.QueryRow(ctx,
		`SELECT price_cents FROM ticket_types WHERE id = $1`, ticketTypeID,
	).Scan(&priceCents)
	return priceCents, err
}
