// Package mail delivers password reset links.
package mail

import (
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wellnesscms/api/internal/config"
)

type ResetMessage struct {
	To        string
	Name      string
	Token     string
	ExpiresAt time.Time
}

type Sender interface {
	SendPasswordReset(ctx context.Context, msg ResetMessage) error
}

// New picks the provider named in cfg.Provider.
func New(cfg config.MailConfig, log zerolog.Logger) (Sender, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "log":
		return NewLogSender(log), nil
	case "smtp":
		return NewSMTPSender(cfg), nil
	case "resend":
		if cfg.ResendAPIKey == "" {
			return nil, fmt.Errorf("mail.resendapikey is required for the resend provider")
		}
		return NewResendSender(cfg), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}

func resetLink(appURL, token string) string {
	return fmt.Sprintf("%s/reset-password?token=%s", strings.TrimSuffix(appURL, "/"), url.QueryEscape(token))
}

func resetSubject() string {
	return "Reset your admin console password"
}

var resetTemplate = template.Must(template.New("reset").Parse(`<p>Hi {{.Name}},</p>
<p>We received a request to reset the password of your admin console account.</p>
<p><a href="{{.Link}}">Choose a new password</a></p>
<p>The link expires at {{.ExpiresAt}} and can be used once. If you did not ask for this, ignore this email.</p>`))

func resetBody(appURL string, msg ResetMessage) string {
	name := msg.Name
	if name == "" {
		name = "there"
	}
	var b strings.Builder
	// The template only reads strings, so Execute cannot fail here.
	_ = resetTemplate.Execute(&b, struct {
		Name      string
		Link      string
		ExpiresAt string
	}{
		Name:      name,
		Link:      resetLink(appURL, msg.Token),
		ExpiresAt: msg.ExpiresAt.UTC().Format(time.RFC1123),
	})
	return b.String()
}

// LogSender writes the recipient to the log instead of sending mail. The
// token itself is never logged.
type LogSender struct {
	log zerolog.Logger
}

func NewLogSender(log zerolog.Logger) LogSender {
	return LogSender{log: log}
}

func (s LogSender) SendPasswordReset(_ context.Context, msg ResetMessage) error {
	s.log.Info().
		Str("to", msg.To).
		Time("expires_at", msg.ExpiresAt).
		Msg("password reset email suppressed (log provider)")
	return nil
}
