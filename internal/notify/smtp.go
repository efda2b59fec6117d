package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPSinkOptions configures an SMTP-backed email sink.
type SMTPSinkOptions struct {
	// Addr is the relay address, host:port.
	Addr     string
	Username string
	Password string
	// From is the sender address on outgoing mail.
	From string
}

// SMTPSink delivers coalesced batches through an SMTP relay with STARTTLS
// auth. Delivery failures are returned to the caller, which owns retry.
type SMTPSink struct {
	opts SMTPSinkOptions
	auth smtp.Auth

	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSink creates a sink for the given relay.
func NewSMTPSink(opts SMTPSinkOptions) *SMTPSink {
	host := opts.Addr
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return &SMTPSink{
		opts: opts,
		auth: smtp.PlainAuth("", opts.Username, opts.Password, host),
		send: smtp.SendMail,
	}
}

func (s *SMTPSink) Enqueue(ctx context.Context, userID string, batch *EmailBatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := s.buildMessage(batch)
	if err := s.send(s.opts.Addr, s.auth, s.opts.From, []string{batch.Email}, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", batch.Email, err)
	}
	return nil
}

func (s *SMTPSink) buildMessage(batch *EmailBatch) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.opts.From)
	fmt.Fprintf(&b, "To: %s\r\n", batch.Email)
	fmt.Fprintf(&b, "Subject: %s\r\n", batch.Subject())
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "We found %d deal updates in %s matching your preferences:\r\n\r\n",
		batch.Total(), batch.Region)
	for _, deal := range batch.Sample {
		fmt.Fprintf(&b, "- %s at %s: $%d.%02d", deal.Name, deal.StoreName,
			deal.PriceCents/100, deal.PriceCents%100)
		if deal.OldPriceCents > 0 {
			fmt.Fprintf(&b, " (was $%d.%02d)", deal.OldPriceCents/100, deal.OldPriceCents%100)
		} else if deal.OriginalPriceCents > 0 {
			fmt.Fprintf(&b, " (%d%% off)", deal.DiscountPercent)
		}
		b.WriteString("\r\n")
	}
	if extra := batch.Total() - len(batch.Sample); extra > 0 {
		fmt.Fprintf(&b, "\r\n...and %d more.\r\n", extra)
	}
	b.WriteString("\r\nYou are receiving this because deal notifications are enabled in your preferences.\r\n")
	return []byte(b.String())
}
