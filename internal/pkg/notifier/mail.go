package notifier

import (
	"context"
	"time"

	"github.com/mhilgert/docdepot/internal/pkg/logger"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// MailConfig for the SMTP sink.
type MailConfig struct {
	SMTPHost string        `mapstructure:"smtphost"`
	SMTPPort int           `mapstructure:"smtpport"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	To       string        `mapstructure:"to"`
	Subject  string        `mapstructure:"subject"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Mail delivers notifications as plain-text e-mail.
type Mail struct {
	config *MailConfig
	logger *logger.Logger
}

// NewMail creates a mail sink; nil when no SMTP host is configured.
func NewMail(cfg *MailConfig, log *logger.Logger) *Mail {
	if cfg == nil || cfg.SMTPHost == "" {
		return nil
	}
	return &Mail{config: cfg, logger: log}
}

// Send delivers the message; failures are logged at warn and swallowed.
func (m *Mail) Send(ctx context.Context, message string) bool {
	timeout := m.config.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	opts := []mail.Option{
		mail.WithPort(m.config.SMTPPort),
		mail.WithTimeout(timeout),
	}
	if m.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.config.Username),
			mail.WithPassword(m.config.Password),
		)
	}

	client, err := mail.NewClient(m.config.SMTPHost, opts...)
	if err != nil {
		m.logger.Warn("mail notification failed", zap.Error(err))
		return false
	}

	msg := mail.NewMsg()
	if err := msg.From(m.config.From); err != nil {
		return false
	}
	if err := msg.To(m.config.To); err != nil {
		return false
	}

	subject := m.config.Subject
	if subject == "" {
		subject = "docdepot notification"
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, message)

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		m.logger.Warn("mail notification failed", zap.Error(err))
		return false
	}

	return true
}
