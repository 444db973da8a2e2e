package event

import (
	"context"
	"encoding/json"
	"event-ticket/common"
	"event-ticket/common/constant"
	"event-ticket/model"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/oklog/ulid/v2"
	"golang.org/x/text/message"
)

type NotificationEvent struct {
	Publisher            jetstream.Publisher
	BrlCurrencyFormatter *message.Printer

	Timeout time.Duration
}

// TicketNotificationHandler renders a lifecycle email for a ticket and hands
// it to the email queue.
func (in NotificationEvent) TicketNotificationHandler(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, in.Timeout)
	defer cancel()

	var req model.TicketNotificationEventMessage
	err := json.Unmarshal(msg, &req)
	if err != nil {
		slog.WarnContext(ctx, "ticket notification event unmarshal error", slog.Any(constant.LogFieldErr, err))
		return nil
	}

	traceIdAttr := slog.String(constant.LogFieldTraceId, ulid.Make().String())
	reqAttr := slog.Any(constant.LogFieldPayload, string(msg))

	subject, body, ok := in.buildEmail(req)
	if !ok {
		slog.WarnContext(ctx, "unknown ticket notification kind", reqAttr, traceIdAttr)
		return nil
	}

	sendEmailReq := model.SendEmailEventMessage{
		To:      req.Email,
		Subject: subject,
		Body:    body,
	}

	err = common.PublishMessage(ctx, in.Publisher, constant.SubjectSendEmail, sendEmailReq)
	if err != nil {
		slog.ErrorContext(ctx, "ticket notification event publish error", slog.Any(constant.LogFieldErr, err), reqAttr, traceIdAttr)
		return err
	}

	slog.DebugContext(ctx, "ticket notification event publish success", reqAttr, traceIdAttr)

	return nil
}

func (in NotificationEvent) buildEmail(req model.TicketNotificationEventMessage) (subject, body string, ok bool) {
	price := in.formatPrice(req.PriceCents)

	switch req.Kind {
	case constant.NotificationKindPending:
		subject = "Complete Your Ticket Payment"
		body = fmt.Sprintf(constant.EmailTicketPendingTemplate, req.Name, req.PaymentID, price, req.PaymentCode, req.ExpiredAt)
	case constant.NotificationKindConfirmed:
		subject = "Your Ticket Is Confirmed"
		body = fmt.Sprintf(constant.EmailTicketConfirmedTemplate, req.Name, req.TicketID, req.Code, price)
	case constant.NotificationKindCancelled:
		subject = "Your Ticket Was Cancelled"
		body = fmt.Sprintf(constant.EmailTicketCancelledTemplate, req.Name, req.TicketID, price)
	case constant.NotificationKindRefunded:
		subject = "Your Refund Was Processed"
		body = fmt.Sprintf(constant.EmailTicketRefundedTemplate, req.Name, req.TicketID, price)
	default:
		return "", "", false
	}

	return subject, body, true
}

func (in NotificationEvent) formatPrice(cents int64) string {
	return in.BrlCurrencyFormatter.Sprintf("R$%.2f", float64(cents)/100)
}
