package notify

import (
	"context"
	"fmt"
	"html"

	"gopkg.in/gomail.v2"
)

// EmailConfig holds SMTP settings
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailDispatcher sends notifications over SMTP
type EmailDispatcher struct {
	dialer *gomail.Dialer
	from   string
}

// NewEmailDispatcher creates an SMTP dispatcher
func NewEmailDispatcher(cfg EmailConfig) *EmailDispatcher {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &EmailDispatcher{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   from,
	}
}

// Dispatch sends n. gomail is not context aware; ctx is checked before dialing.
func (d *EmailDispatcher) Dispatch(ctx context.Context, n Notification) error {
	if n.Recipient == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.dialer.DialAndSend(d.message(n)); err != nil {
		return fmt.Errorf("failed to send email: %v", err)
	}
	return nil
}

func (d *EmailDispatcher) message(n Notification) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", d.from)
	m.SetHeader("To", n.Recipient)
	m.SetHeader("Subject", subject(n))
	m.SetBody("text/html", emailBody(n))
	return m
}

func emailBody(n Notification) string {
	if n.Audience == AudienceAdmin {
		return fmt.Sprintf(`
		<h2>Payment update</h2>
		<p>Order <strong>#%d</strong> moved to <strong>%s</strong>.</p>
		<p>%s</p>
	`, n.OrderID, html.EscapeString(n.Status), html.EscapeString(n.Reason))
	}

	switch n.Status {
	case "paid":
		return fmt.Sprintf(`
		<h2>Thank you for your order!</h2>
		<p>We have received your payment for order <strong>#%d</strong>.</p>
		<p>We will let you know when it ships.</p>
	`, n.OrderID)
	default:
		return fmt.Sprintf(`
		<h2>We could not confirm your payment</h2>
		<p>Order <strong>#%d</strong> was not paid: %s</p>
		<p>No money has been taken. You can try again from your orders page.</p>
	`, n.OrderID, html.EscapeString(n.Reason))
	}
}
