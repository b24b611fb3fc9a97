package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/cotidiano/api/internal/platform/config"
)

const (
	crlf          = "\r\n"
	base64LineLen = 76
)

// Attachment is a binary file shipped with a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is a plain-text email with optional attachments.
type Message struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// SendFunc matches smtp.SendMail and allows substituting the transport in tests.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer delivers messages through a plain SMTP relay.
type SMTPMailer struct {
	cfg  config.SMTPConfig
	send SendFunc
}

// SMTPOption customises the mailer.
type SMTPOption func(*SMTPMailer)

// WithSendFunc overrides the SMTP transport, primarily for tests.
func WithSendFunc(send SendFunc) SMTPOption {
	return func(m *SMTPMailer) {
		if send != nil {
			m.send = send
		}
	}
}

// NewSMTPMailer constructs a mailer from the SMTP configuration.
func NewSMTPMailer(cfg config.SMTPConfig, opts ...SMTPOption) (*SMTPMailer, error) {
	if !cfg.Enabled() {
		return nil, errors.New("mail: smtp host and from address are required")
	}
	m := &SMTPMailer{
		cfg:  cfg,
		send: smtp.SendMail,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Send delivers the message, honouring context cancellation while the
// underlying dial is in flight.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if m == nil {
		return errors.New("mail: mailer not initialised")
	}
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return errors.New("mail: recipient is required")
	}

	payload := m.encode(to, msg)

	var auth smtp.Auth
	if strings.TrimSpace(m.cfg.Username) != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	done := make(chan error, 1)
	go func() {
		done <- m.send(addr, auth, m.cfg.From, []string{to}, payload)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("mail: send to %s: %w", to, err)
		}
		return nil
	}
}

func (m *SMTPMailer) encode(to string, msg Message) []byte {
	var buf bytes.Buffer

	from := m.cfg.From
	if name := strings.TrimSpace(m.cfg.FromName); name != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), m.cfg.From)
	}

	header := func(key, value string) {
		buf.WriteString(key)
		buf.WriteString(": ")
		buf.WriteString(value)
		buf.WriteString(crlf)
	}

	header("From", from)
	header("To", to)
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", time.Now().UTC().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")

	if len(msg.Attachments) == 0 {
		header("Content-Type", "text/plain; charset=utf-8")
		buf.WriteString(crlf)
		buf.WriteString(msg.Body)
		return buf.Bytes()
	}

	boundary := fmt.Sprintf("part-%d", time.Now().UnixNano())
	header("Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", boundary))
	buf.WriteString(crlf)

	buf.WriteString("--" + boundary + crlf)
	buf.WriteString("Content-Type: text/plain; charset=utf-8" + crlf + crlf)
	buf.WriteString(msg.Body)
	buf.WriteString(crlf)

	for _, att := range msg.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		buf.WriteString("--" + boundary + crlf)
		buf.WriteString(fmt.Sprintf("Content-Type: %s; name=%q", contentType, att.Filename) + crlf)
		buf.WriteString("Content-Transfer-Encoding: base64" + crlf)
		buf.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=%q", att.Filename) + crlf + crlf)
		writeBase64Wrapped(&buf, att.Data)
	}
	buf.WriteString("--" + boundary + "--" + crlf)

	return buf.Bytes()
}

func writeBase64Wrapped(buf *bytes.Buffer, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 0 {
		n := base64LineLen
		if n > len(encoded) {
			n = len(encoded)
		}
		buf.WriteString(encoded[:n])
		buf.WriteString(crlf)
		encoded = encoded[n:]
	}
}
