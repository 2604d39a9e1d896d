// Package notify turns appointment status events into patient emails.
package notify

import (
	"context"
	"fmt"

	"github.com/go-gomail/gomail"
)

// Message is a plain-text email to a single recipient.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// Mailer delivers a message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig holds the outgoing mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPMailer sends mail through an SMTP relay, one connection per message.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	name   string
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		name:   cfg.FromName,
	}
}

// Send composes and delivers msg. gomail has no context support, so ctx is
// only checked before dialing.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gm := gomail.NewMessage()
	gm.SetAddressHeader("From", m.from, m.name)
	gm.SetAddressHeader("To", msg.To, msg.ToName)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Body)

	if err := m.dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}
