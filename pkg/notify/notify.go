// Package notify sends a short HTML email whenever a story is created.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/kcaldas/storysprout/pkg/config"
	"github.com/kcaldas/storysprout/pkg/logging"
)

// SubjectPrefix starts every notification subject; the creation time follows.
const SubjectPrefix = "New story created, "

const subjectLayout = "2006-01-02 15:04:05"

// Field is one labelled value of a notification.
type Field struct {
	Key   string
	Value any
}

// Notification describes a created story.
type Notification struct {
	Fields []Field
	// Time stamps the subject. Zero means now.
	Time time.Time
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NoopNotifier drops every notification. Used when email is disabled.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, Notification) error { return nil }

// FormatLines renders each field as a bold key, its value and a blank line.
func FormatLines(fields []Field) []string {
	lines := make([]string, 0, len(fields)*3)
	for _, f := range fields {
		lines = append(lines,
			"<strong>"+html.EscapeString(f.Key)+"</strong>",
			html.EscapeString(fmt.Sprint(f.Value)),
			"",
		)
	}
	return lines
}

// Subject returns the subject line for a notification created at t.
func Subject(t time.Time) string {
	return SubjectPrefix + t.Format(subjectLayout)
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier mails notifications through an SMTP relay. smtp.SendMail upgrades
// the connection with STARTTLS before PLAIN authentication.
type SMTPNotifier struct {
	cfg    config.SMTPConfig
	send   sendFunc
	now    func() time.Time
	logger logging.Logger
}

// Option configures an SMTPNotifier.
type Option func(*SMTPNotifier)

// WithLogger injects a custom logger implementation.
func WithLogger(logger logging.Logger) Option {
	return func(n *SMTPNotifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewSMTPNotifier validates cfg and returns a notifier for it.
func NewSMTPNotifier(cfg config.SMTPConfig, opts ...Option) (*SMTPNotifier, error) {
	if !cfg.SendEmail {
		return nil, errors.New("email sending is disabled")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := &SMTPNotifier{
		cfg:    cfg,
		send:   smtp.SendMail,
		now:    time.Now,
		logger: logging.NewComponentLogger("notify"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// New returns an SMTPNotifier when sending is enabled and a NoopNotifier otherwise.
func New(cfg config.SMTPConfig, opts ...Option) (Notifier, error) {
	if !cfg.SendEmail {
		return NoopNotifier{}, nil
	}
	return NewSMTPNotifier(cfg, opts...)
}

// Notify builds the message and hands it to the relay.
func (n *SMTPNotifier) Notify(ctx context.Context, note Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	at := note.Time
	if at.IsZero() {
		at = n.now()
	}
	msg := n.buildMessage(Subject(at), FormatLines(note.Fields))

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	auth := smtp.PlainAuth("", n.cfg.SenderEmail, n.cfg.SenderPassword, n.cfg.Host)

	n.logger.Debug("sending notification", "addr", addr, "recipient", n.cfg.RecipientEmail)
	if err := n.send(addr, auth, n.cfg.SenderEmail, []string{n.cfg.RecipientEmail}, msg); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

func (n *SMTPNotifier) buildMessage(subject string, lines []string) []byte {
	from := mail.Address{Name: n.cfg.SenderName, Address: n.cfg.SenderEmail}
	to := mail.Address{Name: n.cfg.RecipientName, Address: n.cfg.RecipientEmail}

	var buf bytes.Buffer
	buf.WriteString("From: " + from.String() + "\r\n")
	buf.WriteString("To: " + to.String() + "\r\n")
	buf.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	buf.WriteString("\r\n")
	buf.WriteString("<html>\r\n<body>\r\n")
	buf.WriteString(strings.Join(lines, "<br />\r\n"))
	buf.WriteString("\r\n</body>\r\n</html>\r\n")
	return buf.Bytes()
}
