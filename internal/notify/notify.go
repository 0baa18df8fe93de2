// Package notify delivers outbound messages through one configured provider.
//
// Providers form a closed set. The kind is parsed and the provider built once by the
// composition root, so an unknown or misconfigured provider fails at startup.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"gopkg.in/gomail.v2"
)

// Kind names a provider.
type Kind string

const (
	KindLog  Kind = "log"
	KindSMTP Kind = "smtp"
)

// Kinds lists every supported provider.
func Kinds() []Kind {
	return []Kind{KindLog, KindSMTP}
}

// ErrUnknownKind rejects provider names outside Kinds.
var ErrUnknownKind = errors.New("notify: unknown provider")

// ParseKind normalises and validates a configured provider name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k == "" {
		return KindLog, nil
	}
	if !slices.Contains(Kinds(), k) {
		return "", fmt.Errorf("%w %q (supported: %v)", ErrUnknownKind, s, Kinds())
	}
	return k, nil
}

// Message is one outbound notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier sends messages.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Config selects and configures the provider.
type Config struct {
	Kind         Kind
	From         string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

// New builds the provider named by cfg.Kind.
func New(cfg Config, logger *slog.Logger) (Notifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Kind {
	case KindLog, "":
		return &LogNotifier{logger: logger}, nil
	case KindSMTP:
		return newSMTP(cfg)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, cfg.Kind)
	}
}

// LogNotifier writes messages to the log instead of delivering them.
type LogNotifier struct {
	logger *slog.Logger
}

// Send implements Notifier.
func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	n.logger.InfoContext(ctx, "notification",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("body_bytes", len(msg.Body)))
	return nil
}

// SMTPNotifier delivers mail through an SMTP relay.
type SMTPNotifier struct {
	from   string
	dialer *gomail.Dialer
}

func newSMTP(cfg Config) (*SMTPNotifier, error) {
	if cfg.SMTPHost == "" || cfg.SMTPPort <= 0 {
		return nil, errors.New("notify: smtp provider requires host and port")
	}
	if cfg.From == "" {
		return nil, errors.New("notify: smtp provider requires a sender address")
	}
	return &SMTPNotifier{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
	}, nil
}

// Send implements Notifier.
func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("notify: smtp send: %w", err)
	}
	return nil
}

// Welcome builds the onboarding message for a new tenant owner.
func Welcome(tenantName, ownerName, ownerEmail string) Message {
	return Message{
		To:      ownerEmail,
		Subject: fmt.Sprintf("Welcome to Rentora, %s", tenantName),
		Body: fmt.Sprintf("Hi %s,\n\nYour workspace %s is ready. Sign in with %s to invite your team "+
			"and set up your business units.\n", ownerName, tenantName, ownerEmail),
	}
}
