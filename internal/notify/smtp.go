package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/vasiliy-maslov/storefront/internal/config"
	"github.com/wneessen/go-mail"
)

// ErrMailDisabled is returned by the disabled mailer for every send.
var ErrMailDisabled = errors.New("notify: email configuration is missing")

type smtpMailer struct {
	cfg config.MailConfig
}

// NewMailer returns an SMTP mailer, or one that always fails when the sender
// credentials are not configured.
func NewMailer(cfg config.MailConfig) Mailer {
	if !cfg.Enabled() {
		return disabledMailer{}
	}
	return &smtpMailer{cfg: cfg}
}

func (m *smtpMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat(m.cfg.SenderName, m.cfg.SenderEmail); err != nil {
		return fmt.Errorf("notify: invalid sender: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("notify: invalid recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	opts := []mail.Option{
		mail.WithPort(m.cfg.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.SenderEmail),
		mail.WithPassword(m.cfg.SenderPassword),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if m.cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(m.cfg.Timeout))
	}

	client, err := mail.NewClient(m.cfg.SMTPHost, opts...)
	if err != nil {
		return fmt.Errorf("notify: failed to create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("notify: failed to send email: %w", err)
	}
	return nil
}

type disabledMailer struct{}

func (disabledMailer) Send(context.Context, string, string, string) error {
	return ErrMailDisabled
}
