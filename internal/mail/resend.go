package mail

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v3"

	"wellnesscms/api/internal/config"
)

type ResendSender struct {
	client *resend.Client
	from   string
	appURL string
}

func NewResendSender(cfg config.MailConfig) *ResendSender {
	return &ResendSender{
		client: resend.NewClient(cfg.ResendAPIKey),
		from:   cfg.From,
		appURL: cfg.AppURL,
	}
}

func (s *ResendSender) SendPasswordReset(ctx context.Context, msg ResetMessage) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: resetSubject(),
		Html:    resetBody(s.appURL, msg),
	}

	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("resend send: %w", err)
	}
	return nil
}
