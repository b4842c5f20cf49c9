package digest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// Message is one outgoing HTML mail.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Mailer delivers messages. Delivery is best effort.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends mail through an SMTP relay with PLAIN auth. The relay
// upgrades to TLS with STARTTLS when it advertises it.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Send delivers msg. ctx bounds the wait, not the SMTP dialogue itself.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("digest: message has no recipients")
	}
	addr := net.JoinHostPort(m.Host, strconv.Itoa(m.Port))

	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}

	body, err := buildMIME(m.From, msg, time.Now())
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- smtp.SendMail(addr, auth, m.From, msg.To, body)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("digest: send mail: %w", ctx.Err())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("digest: send mail via %s: %w", addr, err)
		}
		return nil
	}
}

func buildMIME(from string, msg Message, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", now.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(msg.HTML)); err != nil {
		return nil, fmt.Errorf("digest: encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("digest: encode body: %w", err)
	}
	return buf.Bytes(), nil
}
