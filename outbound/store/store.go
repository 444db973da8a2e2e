// Package store is the hand-written pgx persistence layer for the ticket
// lifecycle engine: inventory counters, holds, tickets, validation records
// and scan links. Every cross-row invariant is enforced inside a single SQL
// statement or a transaction, never as read-then-write in Go.
package store

import (
	"event-ticket/common/contract"

	"github.com/jackc/pgx/v5"
)

type Queries struct {
	db contract.DbConn
}

func New(db contract.DbConn) *Queries {
	return &Queries{db: db}
}

// WithTx returns a copy of Queries bound to the given transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}
