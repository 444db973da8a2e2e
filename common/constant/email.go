package constant

const EmailTicketPendingTemplate = `
Dear %s,

Thank you for your order! Your tickets are reserved and waiting for payment.

Order Details:
------------------------------------------
Payment ID: %s
Total Amount: %s
Payment Code: %s
------------------------------------------

Please complete your payment before: %s

Payment Instructions:
1. Use the payment code above in your banking app (PIX) or card checkout
2. Complete the payment within the time limit to secure your tickets
3. You will receive your entry codes once payment is confirmed

If you have any questions, please contact our support team at support@event-ticket.com.

Best regards,
Event Ticket Team

Note: This is an automated message, please do not reply to this email.
`

const EmailTicketConfirmedTemplate = `
Dear %s,

Great news! Your payment has been confirmed and your ticket is ready.

Ticket Details:
------------------------------------------
Ticket ID: %s
Entry Code: %s
Total Amount: %s
------------------------------------------

Show the QR code in the app (or this entry code) at the venue entrance.

Important Information:
• Please arrive at least 30 minutes before the event starts
• Valid ID may be required for entry
• Each entry code admits one person per event date

We look forward to seeing you at the event!

Best regards,
Event Ticket Team
`

const EmailTicketCancelledTemplate = `
Dear %s,

Your ticket has been cancelled.

Ticket Details:
------------------------------------------
Ticket ID: %s
Total Amount: %s
------------------------------------------

If you did not request this cancellation or have any questions, please contact
our support team at support@event-ticket.com.

Best regards,
Event Ticket Team

Note: This is an automated message, please do not reply to this email.
`

const EmailTicketRefundedTemplate = `
Dear %s,

Your refund has been processed.

Ticket Details:
------------------------------------------
Ticket ID: %s
Refunded Amount: %s
------------------------------------------

The amount will be returned to your original payment method. Depending on your
bank this can take a few business days.

Best regards,
Event Ticket Team

Note: This is an automated message, please do not reply to this email.
`
