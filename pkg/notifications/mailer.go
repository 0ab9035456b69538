package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"
)

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPMailer opens one connection per message.
type SMTPMailer struct {
	conf SMTPConfig
}

func NewSMTPMailer(conf SMTPConfig) *SMTPMailer {
	if conf.Timeout == 0 {
		conf.Timeout = 10 * time.Second
	}

	return &SMTPMailer{conf: conf}
}

func (m *SMTPMailer) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(m.conf.Port),
		mail.WithTimeout(m.conf.Timeout),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}

	if m.conf.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.conf.Username),
			mail.WithPassword(m.conf.Password),
		)
	}

	return mail.NewClient(m.conf.Host, opts...)
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.conf.From); err != nil {
		return fmt.Errorf("invalid sender %q: %w", m.conf.From, err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}

	msg.SetMessageIDWithValue(uuid.New().String() + "@petitionator")
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	c, err := m.client()
	if err != nil {
		return err
	}

	return c.DialAndSendWithContext(ctx, msg)
}
