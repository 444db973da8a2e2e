package constant

const (
	QueueStreamName = "event_ticket_queue_stream"
)

const (
	AllWildcard    = "events.>"
	TicketWildcard = "events.ticket.>"
	EmailWildcard  = "events.email.>"

	SubjectSettlePayment      = "events.ticket.settle"
	SubjectFailPayment        = "events.ticket.fail"
	SubjectTicketNotification = "events.email.ticket"
	SubjectSendEmail          = "events.email.send"
)

const (
	NotificationKindConfirmed = "confirmed"
	NotificationKindPending   = "pending"
	NotificationKindCancelled = "cancelled"
	NotificationKindRefunded  = "refunded"
)
