package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/dramauth"
	"github.com/wneessen/go-mail"
)

// SMTPConfig configures SMTPNotifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLS is one of "mandatory", "opportunistic" or "none".
	TLS     string
	BaseURL string
}

// SMTPNotifier delivers notifications over SMTP. A new connection is
// dialed per message.
type SMTPNotifier struct {
	client   *mail.Client
	from     string
	renderer Renderer
}

var _ dramauth.Notifier = (*SMTPNotifier)(nil)

// NewSMTP builds a notifier from cfg. No connection is made until Send.
func NewSMTP(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, errors.New("notify: SMTP host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("notify: sender address is required")
	}

	policy, err := tlsPolicy(cfg.TLS)
	if err != nil {
		return nil, err
	}
	var opts []mail.Option
	if cfg.Port > 0 {
		opts = append(opts, mail.WithTLSPolicy(policy), mail.WithPort(cfg.Port))
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(policy))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: smtp client: %w", err)
	}
	return &SMTPNotifier{
		client:   client,
		from:     cfg.From,
		renderer: Renderer{BaseURL: cfg.BaseURL},
	}, nil
}

func tlsPolicy(name string) (mail.TLSPolicy, error) {
	switch name {
	case "", "mandatory":
		return mail.TLSMandatory, nil
	case "opportunistic":
		return mail.TLSOpportunistic, nil
	case "none":
		return mail.NoTLS, nil
	default:
		return mail.NoTLS, fmt.Errorf("notify: unknown TLS policy %q", name)
	}
}

// Send renders n and delivers it.
func (s *SMTPNotifier) Send(ctx context.Context, n dramauth.Notification) error {
	msg, err := s.message(n)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("notify: deliver %s: %w", n.Kind, err)
	}
	return nil
}

func (s *SMTPNotifier) message(n dramauth.Notification) (*mail.Msg, error) {
	rendered, err := s.renderer.Render(n)
	if err != nil {
		return nil, err
	}

	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, fmt.Errorf("notify: sender: %w", err)
	}
	if err := msg.To(rendered.To); err != nil {
		return nil, fmt.Errorf("notify: recipient: %w", err)
	}
	msg.Subject(rendered.Subject)
	msg.SetBodyString(mail.TypeTextPlain, rendered.Body)
	return msg, nil
}
