package constant

import "time"

const (
	OrderEmailLock       = "order:email_lock:%s"
	TicketValidationLock = "ticket:validation_lock:%s"
	ScanLinkSessionKey   = "scanlink:session:%s"
)

const (
	OrderEmailLockDefaultTTL       = 1 * time.Minute
	TicketValidationLockDefaultTTL = 10 * time.Second
)
