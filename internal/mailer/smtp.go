// SMTP-backed MTA. The worker only depends on the MTA interface; this is the
// single concrete adapter, kept deliberately small because the real SMTP
// client is an external collaborator.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// SMTPMTA delivers mail over a plain SMTP hop, one connection per batch.
type SMTPMTA struct {
	Addr string // host:port of the relay
	From string // envelope and header sender
}

// Session dials the relay and returns a per-mail send function. The
// connection is reused for the whole batch and closed when the batch ends.
func (s *SMTPMTA) Session(ctx context.Context) (SendFunc, func() error, error) {
	client, err := smtp.Dial(s.Addr)
	if err != nil {
		return nil, nil, err
	}

	send := func(_ context.Context, m *domain.Mail) error {
		if err := client.Mail(s.From); err != nil {
			return err
		}
		if err := client.Rcpt(m.Receiver); err != nil {
			_ = client.Reset()
			return err
		}
		wc, err := client.Data()
		if err != nil {
			_ = client.Reset()
			return err
		}
		if _, err := wc.Write([]byte(formatMessage(s.From, m))); err != nil {
			_ = wc.Close()
			return err
		}
		return wc.Close()
	}
	return send, client.Quit, nil
}

// formatMessage renders a minimal RFC 5322 message.
func formatMessage(from string, m *domain.Mail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", m.Receiver)
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(m.Body)
	return b.String()
}
