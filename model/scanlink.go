package model

import "time"

const MaxScanLinksPerOrganizer = 5

type ScanLink struct {
	ID           string
	OrganizerID  string
	PasswordHash string
	MaxUsers     int32
	CurrentUsers int32
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

func (l ScanLink) ExpiredAt(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}
