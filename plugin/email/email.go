// Package email delivers reminder notifications by SMTP.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/geominder/plugin/notify"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Notifier sends one plain-text mail per notification.
type Notifier struct {
	config Config
	send   sendFunc
}

func NewNotifier(config Config) (*Notifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Notifier{config: config, send: smtp.SendMail}, nil
}

func (n *Notifier) Deliver(ctx context.Context, notification notify.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if n.config.SMTPUsername != "" {
		auth = smtp.PlainAuth("", n.config.SMTPUsername, n.config.SMTPPassword, n.config.SMTPHost)
	}
	msg := n.buildMessage(notification)
	if err := n.send(n.config.ServerAddress(), auth, n.config.FromEmail, n.config.To, msg); err != nil {
		return errors.Wrap(err, "failed to send email")
	}
	return nil
}

func (n *Notifier) buildMessage(notification notify.Notification) []byte {
	subject := "Reminder"
	if notification.PlaceName != "" {
		subject = "Reminder near " + notification.PlaceName
	}
	firedAt := notification.FiredAt
	if firedAt.IsZero() {
		firedAt = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.config.from())
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(n.config.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", firedAt.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(notification.Text())
	b.WriteString("\r\n")
	return []byte(b.String())
}
