package store

import (
	"context"
	"time"

	"event-ticket/common/errs"
	"event-ticket/model"
)

// InsertScanLink enforces the per-organizer cap inside the statement: the
// insert only happens while fewer than MaxScanLinksPerOrganizer live links
// exist. Run it inside a transaction so concurrent creates serialize on the
// organizer's rows.
func (q *Queries) InsertScanLink(ctx context.Context, l model.ScanLink) error {
	tag, err := q.db.Exec(ctx,
		`INSERT INTO scan_links (id, organizer_id, password_hash, max_users, current_users, expires_at, created_at)
		 SELECT $1, $2, $3, $4, 0, $5, $6
		 WHERE (SELECT COUNT(*) FROM scan_links WHERE organizer_id = $2 AND expires_at > $6) < $7`,
		l.ID, l.OrganizerID, l.PasswordHash, l.MaxUsers, l.ExpiresAt, l.CreatedAt,
		model.MaxScanLinksPerOrganizer,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return errs.ErrTooManyScanLinks
	}

	return nil
}

func (q *Queries) FindScanLink(ctx context.Context, id string) (model.ScanLink, error) {
	var l model.ScanLink
	err := q.db.QueryRow(ctx,
		`SELECT id, organizer_id, password_hash, max_users, current_users, expires_at, created_at
		 FROM scan_links WHERE id = $1`,
		id,
	).Scan(&l.ID, &l.OrganizerID, &l.PasswordHash, &l.MaxUsers, &l.CurrentUsers, &l.ExpiresAt, &l.CreatedAt)
	return l, err
}

func (q *Queries) ListScanLinksByOrganizer(ctx context.Context, organizerID string, now time.Time) ([]model.ScanLink, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, organizer_id, password_hash, max_users, current_users, expires_at, created_at
		 FROM scan_links
		 WHERE organizer_id = $1 AND expires_at > $2
		 ORDER BY created_at`,
		organizerID, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []model.ScanLink
	for rows.Next() {
		var l model.ScanLink
		err = rows.Scan(&l.ID, &l.OrganizerID, &l.PasswordHash, &l.MaxUsers, &l.CurrentUsers, &l.ExpiresAt, &l.CreatedAt)
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}

	return links, rows.Err()
}

func (q *Queries) DeleteScanLink(ctx context.Context, id, organizerID string) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`DELETE FROM scan_links WHERE id = $1 AND organizer_id = $2`,
		id, organizerID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// IncrementScanLinkUsers admits one more staff session, but never past
// max_users.
func (q *Queries) IncrementScanLinkUsers(ctx context.Context, id string) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE scan_links SET current_users = current_users + 1
		 WHERE id = $1 AND current_users + 1 <= max_users`,
		id,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return errs.ErrScanLinkFull
	}

	return nil
}

func (q *Queries) DecrementScanLinkUsers(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx,
		`UPDATE scan_links SET current_users = GREATEST(current_users - 1, 0) WHERE id = $1`,
		id,
	)
	return err
}
