package mail

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"wellnesscms/api/internal/config"
)

type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
	appURL string
}

func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		from:   cfg.From,
		appURL: cfg.AppURL,
	}
}

func (s *SMTPSender) SendPasswordReset(ctx context.Context, msg ResetMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", resetSubject())
	m.SetBody("text/html", resetBody(s.appURL, msg))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
