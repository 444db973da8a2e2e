package event

import (
	"context"
	"encoding/json"
	"event-ticket/common"
	"event-ticket/common/constant"
	"event-ticket/model"
	emailOutbound "event-ticket/outbound/email"
	"log/slog"
	"time"
)

type EmailEvent struct {
	EmailOutbound emailOutbound.EmailOutbound
	Timeout       time.Duration
}

// SendEmailHandler is the terminal consumer of the notification pipeline:
// everything upstream renders subjects and bodies, this only delivers.
func (in EmailEvent) SendEmailHandler(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, in.Timeout)
	defer cancel()

	var req model.SendEmailEventMessage
	err := json.Unmarshal(msg, &req)
	if err != nil {
		slog.WarnContext(ctx, "send email event unmarshal error", slog.Any(constant.LogFieldErr, err))
		return nil
	}

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	err = in.EmailOutbound.Send([]string{req.To}, req.Subject, req.Body)
	if err != nil {
		slog.ErrorContext(ctx, "failed to send email", slog.Any(constant.LogFieldErr, err), slog.String("to", req.To), traceIdAttr)
		return err
	}

	slog.InfoContext(ctx, "send email success", traceIdAttr, slog.String("to", req.To))

	return nil
}
