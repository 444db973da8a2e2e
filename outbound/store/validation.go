package store

import (
	"context"

	"event-ticket/common/errs"
	"event-ticket/model"
)

// InsertValidationRecord appends one entry-check audit row. The unique index
// on (ticket_id, event_date_id) is the backstop against two scans of the
// same admission unit both succeeding.
func (q *Queries) InsertValidationRecord(ctx context.Context, r model.ValidationRecord) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO validation_records (id, ticket_id, event_date_id, validated_at, validated_by_organizer,
			method, validator_name, validator_location, validator_ip, scan_link_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.TicketID, r.EventDateID, r.ValidatedAt, r.ValidatedByOrganizer,
		r.Method, r.ValidatorName, r.ValidatorLocation, r.ValidatorIP, r.ScanLinkID,
	)
	if err != nil && isUniqueViolation(err) {
		return errs.ErrAlreadyValidated
	}
	return err
}

func (q *Queries) CountValidationsByTicket(ctx context.Context, ticketID string) (int32, error) {
	var count int32
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM validation_records WHERE ticket_id = $1`, ticketID,
	).Scan(&count)
	return count, err
}

func (q *Queries) ExistsValidation(ctx context.Context, ticketID string, eventDateID int64) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM validation_records WHERE ticket_id = $1 AND event_date_id = $2)`,
		ticketID, eventDateID,
	).Scan(&exists)
	return exists, err
}

func (q *Queries) ListValidationsByTicket(ctx context.Context, ticketID string) ([]model.ValidationRecord, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, ticket_id, event_date_id, validated_at, validated_by_organizer,
			method, validator_name, validator_location, validator_ip, scan_link_id
		 FROM validation_records
		 WHERE ticket_id = $1
		 ORDER BY validated_at`,
		ticketID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.ValidationRecord
	for rows.Next() {
		var r model.ValidationRecord
		err = rows.Scan(&r.ID, &r.TicketID, &r.EventDateID, &r.ValidatedAt, &r.ValidatedByOrganizer,
			&r.Method, &r.ValidatorName, &r.ValidatorLocation, &r.ValidatorIP, &r.ScanLinkID)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, rows.Err()
}
