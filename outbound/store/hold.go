package store

import (
	"context"
	"time"

	"event-ticket/model"
)

func (q *Queries) InsertHold(ctx context.Context, h model.Hold) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO holds (id, event_id, event_date_id, ticket_type_id, quantity, owner_id, status, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		h.ID, h.Key.EventID, h.Key.EventDateID, h.Key.TicketTypeID,
		h.Quantity, h.OwnerID, h.Status, h.CreatedAt, h.ExpiresAt,
	)
	return err
}

// FindActiveHold returns pgx.ErrNoRows when the hold is absent, released,
// converted, or past its expiry. An expired hold is treated as absent even
// before the sweep collects it.
func (q *Queries) FindActiveHold(ctx context.Context, id string, now time.Time) (model.Hold, error) {
	var h model.Hold
	err := q.db.QueryRow(ctx,
		`SELECT id, event_id, event_date_id, ticket_type_id, quantity, owner_id, status, created_at, expires_at
		 FROM holds
		 WHERE id = $1 AND status = 'active' AND expires_at > $2`,
		id, now,
	).Scan(&h.ID, &h.Key.EventID, &h.Key.EventDateID, &h.Key.TicketTypeID,
		&h.Quantity, &h.OwnerID, &h.Status, &h.CreatedAt, &h.ExpiresAt)
	return h, err
}

// FindActiveHoldForUpdate is FindActiveHold with a row lock, for quantity
// changes that must serialize against concurrent updates of the same hold.
func (q *Queries) FindActiveHoldForUpdate(ctx context.Context, id string, now time.Time) (model.Hold, error) {
	var h model.Hold
	err := q.db.QueryRow(ctx,
		`SELECT id, event_id, event_date_id, ticket_type_id, quantity, owner_id, status, created_at, expires_at
		 FROM holds
		 WHERE id = $1 AND status = 'active' AND expires_at > $2
		 FOR UPDATE`,
		id, now,
	).Scan(&h.ID, &h.Key.EventID, &h.Key.EventDateID, &h.Key.TicketTypeID,
		&h.Quantity, &h.OwnerID, &h.Status, &h.CreatedAt, &h.ExpiresAt)
	return h, err
}

func (q *Queries) FindHold(ctx context.Context, id string) (model.Hold, error) {
	var h model.Hold
	err := q.db.QueryRow(ctx,
		`SELECT id, event_id, event_date_id, ticket_type_id, quantity, owner_id, status, created_at, expires_at
		 FROM holds
		 WHERE id = $1`,
		id,
	).Scan(&h.ID, &h.Key.EventID, &h.Key.EventDateID, &h.Key.TicketTypeID,
		&h.Quantity, &h.OwnerID, &h.Status, &h.CreatedAt, &h.ExpiresAt)
	return h, err
}

// ClaimHold flips an active hold to the given terminal status and returns it.
// The CAS on status makes racing sweep/release/commit idempotent: only one
// caller wins the row, everyone else gets claimed=false.
func (q *Queries) ClaimHold(ctx context.Context, id string, to model.HoldStatus) (model.Hold, bool, error) {
	var h model.Hold
	err := q.db.QueryRow(ctx,
		`UPDATE holds SET status = $2
		 WHERE id = $1 AND status = 'active'
		 RETURNING id, event_id, event_date_id, ticket_type_id, quantity, owner_id, status, created_at, expires_at`,
		id, to,
	).Scan(&h.ID, &h.Key.EventID, &h.Key.EventDateID, &h.Key.TicketTypeID,
		&h.Quantity, &h.OwnerID, &h.Status, &h.CreatedAt, &h.ExpiresAt)
	if err != nil {
		if isNoRows(err) {
			return model.Hold{}, false, nil
		}
		return model.Hold{}, false, err
	}

	return h, true, nil
}

func (q *Queries) UpdateHoldQuantity(ctx context.Context, id string, quantity int32) error {
	_, err := q.db.Exec(ctx,
		`UPDATE holds SET quantity = $2 WHERE id = $1 AND status = 'active'`,
		id, quantity,
	)
	return err
}

func (q *Queries) ListActiveHoldsByOwner(ctx context.Context, ownerID string, now time.Time) ([]model.Hold, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, event_id, event_date_id, ticket_type_id, quantity, owner_id, status, created_at, expires_at
		 FROM holds
		 WHERE owner_id = $1 AND status = 'active' AND expires_at > $2`,
		ownerID, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanHolds(rows)
}

// ClaimExpiredHolds marks a batch of expired active holds released and
// returns the claimed rows so the caller can give their inventory back.
// SKIP LOCKED keeps concurrent sweeps and explicit releases from fighting
// over the same rows.
func (q *Queries) ClaimExpiredHolds(ctx context.Context, now time.Time, limit int32) ([]model.Hold, error) {
	rows, err := q.db.Query(ctx,
		`UPDATE holds SET status = 'released'
		 WHERE id IN (
		 	SELECT id FROM holds
		 	WHERE status = 'active' AND expires_at <= $1
		 	LIMIT $2
		 	FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, event_id, event_date_id, ticket_type_id, quantity, owner_id, status, created_at, expires_at`,
		now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanHolds(rows)
}

func scanHolds(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]model.Hold, error) {
	var holds []model.Hold
	for rows.Next() {
		var h model.Hold
		err := rows.Scan(&h.ID, &h.Key.EventID, &h.Key.EventDateID, &h.Key.TicketTypeID,
			&h.Quantity, &h.OwnerID, &h.Status, &h.CreatedAt, &h.ExpiresAt)
		if err != nil {
			return nil, err
		}
		holds = append(holds, h)
	}

	return holds, rows.Err()
}
