package jobqueue

import (
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/invoiceportal/InvoicePortal/internal/pkg/mail"
)

// processSendReceiptJob delivers one receipt email over SMTP.
func (q *Queue) processSendReceiptJob(job *Job) error {
	payload, err := SendReceiptJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid receipt payload: %w", err)
	}
	if payload.To == "" {
		return fmt.Errorf("receipt payload has no recipient")
	}

	if err := mail.SendMail(payload.To, payload.Subject, payload.HTMLBody, payload.TextBody); err != nil {
		return fmt.Errorf("sending receipt %s: %w", payload.ReferenceNumber, err)
	}

	log.Infof("[JobQueue] Receipt %s sent to %s", payload.ReferenceNumber, payload.To)
	return nil
}

// QueueMailer hands receipt emails to the job queue instead of blocking the
// payment request on SMTP.
type QueueMailer struct{}

func NewQueueMailer() QueueMailer {
	return QueueMailer{}
}

func (QueueMailer) SendMail(to, subject, htmlBody, textBody string) error {
	payload := SendReceiptJobPayload{
		To:       to,
		Subject:  subject,
		HTMLBody: htmlBody,
		TextBody: textBody,
	}
	_, err := GetManager().GetQueue().EnqueueJob(JobTypeSendReceipt, payload.ToMap())
	return err
}
