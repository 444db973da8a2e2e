package store

import (
	"context"

	"event-ticket/common/errs"
	"event-ticket/model"
)

// Reserve adds qty to held_count, but only when the capacity check inside
// the statement passes. Zero rows affected means the reservation failed
// closed with no partial effect.
func (q *Queries) Reserve(ctx context.Context, key model.InventoryKey, qty int32) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE inventory_counters
		 SET held_count = held_count + $4
		 WHERE event_id = $1 AND event_date_id = $2 AND ticket_type_id = $3
		   AND held_count + issued_count + $4 <= total_capacity`,
		key.EventID, key.EventDateID, key.TicketTypeID, qty,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return errs.ErrInsufficientInventory
	}

	return nil
}

// CommitReserved moves qty from held to issued. Called inside the hold
// conversion transaction once payment has settled.
func (q *Queries) CommitReserved(ctx context.Context, key model.InventoryKey, qty int32) error {
	_, err := q.db.Exec(ctx,
		`UPDATE inventory_counters
		 SET held_count = GREATEST(held_count - $4, 0),
		     issued_count = issued_count + $4
		 WHERE event_id = $1 AND event_date_id = $2 AND ticket_type_id = $3`,
		key.EventID, key.EventDateID, key.TicketTypeID, qty,
	)
	return err
}

// ReleaseReserved gives qty back. Floored at zero so racing releases cannot
// double-credit inventory.
func (q *Queries) ReleaseReserved(ctx context.Context, key model.InventoryKey, qty int32) error {
	_, err := q.db.Exec(ctx,
		`UPDATE inventory_counters
		 SET held_count = GREATEST(held_count - $4, 0)
		 WHERE event_id = $1 AND event_date_id = $2 AND ticket_type_id = $3`,
		key.EventID, key.EventDateID, key.TicketTypeID, qty,
	)
	return err
}

// ListEventDateIDs returns the date components the catalog seeded inventory
// for, so multi-date passes can be checked against dates the event actually
// has.
func (q *Queries) ListEventDateIDs(ctx context.Context, eventID int64) ([]int64, error) {
	rows, err := q.db.Query(ctx,
		`SELECT DISTINCT event_date_id FROM inventory_counters WHERE event_id = $1 ORDER BY event_date_id`,
		eventID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (q *Queries) ListCountersByEvent(ctx context.Context, eventID int64) ([]model.InventoryCounter, error) {
	rows, err := q.db.Query(ctx,
		`SELECT event_id, event_date_id, ticket_type_id, total_capacity, held_count, issued_count
		 FROM inventory_counters
		 WHERE event_id = $1
		 ORDER BY event_date_id, ticket_type_id`,
		eventID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counters []model.InventoryCounter
	for rows.Next() {
		var c model.InventoryCounter
		err = rows.Scan(&c.Key.EventID, &c.Key.EventDateID, &c.Key.TicketTypeID,
			&c.TotalCapacity, &c.HeldCount, &c.IssuedCount)
		if err != nil {
			return nil, err
		}
		counters = append(counters, c)
	}

	return counters, rows.Err()
}
