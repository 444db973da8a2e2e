package model

import "time"

type HoldStatus string

const (
	HoldStatusActive    HoldStatus = "active"
	HoldStatusConverted HoldStatus = "converted"
	HoldStatusReleased  HoldStatus = "released"
)

// InventoryKey identifies one sellable unit of capacity.
type InventoryKey struct {
	EventID      int64
	EventDateID  int64
	TicketTypeID int64
}

type InventoryCounter struct {
	Key           InventoryKey
	TotalCapacity int32
	HeldCount     int32
	IssuedCount   int32
}

func (c InventoryCounter) Available() int32 {
	return c.TotalCapacity - c.HeldCount - c.IssuedCount
}

type Hold struct {
	ID        string
	Key       InventoryKey
	Quantity  int32
	OwnerID   string
	Status    HoldStatus
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ExpiredAt reports whether the hold must be treated as absent at the given
// instant, even if the sweep has not collected it yet.
func (h Hold) ExpiredAt(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}
