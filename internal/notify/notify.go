// Package notify delivers the operator summary of a fetch run.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"location-sync-service/pkg/errors"
	"location-sync-service/pkg/logger"
)

// Message is one operator notification
type Message struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// FilesMissing is sent when a fetch run downloaded nothing
func FilesMissing() Message {
	return Message{
		Subject: "Sync Files Missing",
		Body:    "No sync files found",
	}
}

// FilesFound is sent when a fetch run downloaded count files
func FilesFound(count int) Message {
	return Message{
		Subject: "Sync Files Found",
		Body:    fmt.Sprintf("%d sync files found", count),
	}
}

// Summary picks the message for a successful download count
func Summary(downloaded int) Message {
	if downloaded == 0 {
		return FilesMissing()
	}
	return FilesFound(downloaded)
}

// Notifier sends operator notifications
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Config holds the SMTP settings of the notifier
type Config struct {
	Host     string
	Port     int
	From     string
	To       []string
	Username string
	Password string
	UseTLS   bool
	Timeout  time.Duration
}

// DefaultConfig returns a configuration for an unauthenticated local relay
func DefaultConfig() *Config {
	return &Config{
		Host:    "localhost",
		Port:    25,
		Timeout: 15 * time.Second,
	}
}

// Enabled reports whether mail delivery is configured
func (c *Config) Enabled() bool {
	return len(c.To) > 0
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if strings.TrimSpace(c.Host) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "smtp_host", c.Host, nil)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "smtp_port", c.Port, nil)
	}
	if strings.TrimSpace(c.From) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "mail_from", c.From, nil).
			WithSuggestion("Set --mail-from when --mail-to is given")
	}
	if c.Username != "" && c.Password == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "smtp_password", "", nil)
	}
	return nil
}

// New returns an SMTP notifier when mail is configured and a log-only
// notifier otherwise
func New(config *Config) (Notifier, error) {
	if config == nil || !config.Enabled() {
		return NewLogNotifier(nil), nil
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return NewSMTPNotifier(config), nil
}

// LogNotifier writes notifications to the process log
type LogNotifier struct {
	logger logger.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(log logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.GetGlobalLogger().WithComponent("notify")
	}
	return &LogNotifier{logger: log}
}

// Notify logs the message
func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	n.logger.WithField("subject", msg.Subject).Info(msg.Body)
	return nil
}

// SMTPNotifier sends notifications by mail
type SMTPNotifier struct {
	config *Config
	logger logger.Logger
	send   func(ctx context.Context, m *mail.Msg) error
}

// NewSMTPNotifier creates a mail notifier
func NewSMTPNotifier(config *Config) *SMTPNotifier {
	n := &SMTPNotifier{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("notify"),
	}
	n.send = n.dialAndSend
	return n
}

// Notify builds and sends one mail to every recipient
func (n *SMTPNotifier) Notify(ctx context.Context, msg Message) error {
	m, err := n.buildMessage(msg)
	if err != nil {
		return err
	}

	if err := n.send(ctx, m); err != nil {
		n.logger.WithError(err).WithField("subject", msg.Subject).Error("Notification failed")
		return errors.NetworkError(errors.CodeConnectionFailed, n.endpoint(), err)
	}

	n.logger.WithFields(logger.Fields{
		"subject":    msg.Subject,
		"recipients": len(n.config.To),
	}).Info("Notification sent")
	return nil
}

func (n *SMTPNotifier) buildMessage(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(n.config.From); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "mail_from", n.config.From, err)
	}
	if err := m.To(n.config.To...); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "mail_to", strings.Join(n.config.To, ","), err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

func (n *SMTPNotifier) dialAndSend(ctx context.Context, m *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(n.config.Port),
		mail.WithTLSPolicy(mail.NoTLS),
	}
	if n.config.UseTLS {
		opts[1] = mail.WithTLSPolicy(mail.TLSMandatory)
	}
	if n.config.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(n.config.Timeout))
	}
	if n.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.config.Username),
			mail.WithPassword(n.config.Password),
		)
	}

	client, err := mail.NewClient(n.config.Host, opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, m)
}

func (n *SMTPNotifier) endpoint() string {
	return fmt.Sprintf("%s:%d", n.config.Host, n.config.Port)
}
