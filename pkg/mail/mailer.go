package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrSMTPDisabled signals that SMTP delivery is disabled via configuration.
	ErrSMTPDisabled = errors.New("smtp: delivery disabled")
	// ErrNoRecipients is returned when a message has no usable recipient.
	ErrNoRecipients = errors.New("smtp: at least one recipient is required")
)

const defaultTimeout = 10 * time.Second

// Message represents an outbound email. When HTML is set the message is sent
// as multipart/alternative with Body as the plain text part.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
	HTML    string
}

// Mailer defines behaviour for sending email messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSettings capture the runtime configuration required by the SMTP mailer.
// UseTLS selects implicit TLS; otherwise STARTTLS is used when the server
// offers it.
type SMTPSettings struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	Timeout  time.Duration
}

func (s SMTPSettings) address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// envelope is the resolved sender and recipient list of one message.
type envelope struct {
	from string
	to   []string
}

// newEnvelope trims and de-duplicates recipients, falls back to the default
// sender and checks every address.
func newEnvelope(msg Message, defaultFrom string) (envelope, error) {
	env := envelope{from: strings.TrimSpace(msg.From), to: uniqueAddresses(msg.To)}
	if len(env.to) == 0 {
		return envelope{}, ErrNoRecipients
	}
	if env.from == "" {
		env.from = strings.TrimSpace(defaultFrom)
	}
	if env.from == "" {
		return envelope{}, errors.New("smtp: sender address is required")
	}
	if _, err := mail.ParseAddress(env.from); err != nil {
		return envelope{}, fmt.Errorf("smtp: invalid from address: %w", err)
	}
	for _, rcpt := range env.to {
		if _, err := mail.ParseAddress(rcpt); err != nil {
			return envelope{}, fmt.Errorf("smtp: invalid recipient address %q: %w", rcpt, err)
		}
	}
	return env, nil
}

type smtpMailer struct {
	cfg  SMTPSettings
	dial func(ctx context.Context, cfg SMTPSettings) (*smtp.Client, error)
}

// NewSMTPMailer validates cfg and returns a mailer that delivers over SMTP.
// A disabled configuration yields a mailer whose Send returns ErrSMTPDisabled.
func NewSMTPMailer(cfg SMTPSettings) (Mailer, error) {
	if cfg.Enabled {
		if strings.TrimSpace(cfg.Host) == "" {
			return nil, errors.New("smtp: host is required when enabled")
		}
		if cfg.Port == 0 {
			return nil, errors.New("smtp: port is required when enabled")
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &smtpMailer{cfg: cfg, dial: dialSMTP}, nil
}

func (m *smtpMailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Enabled {
		return ErrSMTPDisabled
	}
	env, err := newEnvelope(msg, m.cfg.From)
	if err != nil {
		return err
	}

	client, err := m.dial(ctx, m.cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	return deliver(client, env, formatMessage(env.from, env.to, msg))
}

// dialSMTP connects, upgrades to TLS and authenticates when credentials are set.
func dialSMTP(ctx context.Context, cfg SMTPSettings) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.address())
	if err != nil {
		return nil, fmt.Errorf("smtp: dial %s: %w", cfg.address(), err)
	}
	tlsConfig := &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	if cfg.UseTLS {
		conn = tls.Client(conn, tlsConfig)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp: greeting: %w", err)
	}

	if ok, _ := client.Extension("STARTTLS"); ok && !cfg.UseTLS {
		if err := client.StartTLS(tlsConfig); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("smtp: start tls: %w", err)
		}
	}
	if strings.TrimSpace(cfg.Username) != "" {
		if err := client.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("smtp: auth: %w", err)
		}
	}
	return client, nil
}

func deliver(client *smtp.Client, env envelope, content string) error {
	if err := client.Mail(env.from); err != nil {
		return fmt.Errorf("smtp: mail from: %w", err)
	}
	for _, rcpt := range env.to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp: rcpt to %s: %w", rcpt, err)
		}
	}

	body, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp: data: %w", err)
	}
	if _, err := body.Write([]byte(content)); err != nil {
		_ = body.Close()
		return fmt.Errorf("smtp: write body: %w", err)
	}
	if err := body.Close(); err != nil {
		return fmt.Errorf("smtp: end data: %w", err)
	}
	return client.Quit()
}

func uniqueAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	var result []string
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		result = append(result, addr)
	}
	return result
}

var headerEscaper = strings.NewReplacer("\r", " ", "\n", " ")

func formatMessage(from string, to []string, msg Message) string {
	var b strings.Builder
	header := func(name, value string) {
		fmt.Fprintf(&b, "%s: %s\r\n", name, value)
	}
	header("From", from)
	header("To", strings.Join(to, ", "))
	header("Subject", headerEscaper.Replace(msg.Subject))
	header("Date", time.Now().UTC().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")

	if strings.TrimSpace(msg.HTML) == "" {
		header("Content-Type", "text/plain; charset=UTF-8")
		b.WriteString("\r\n")
		b.WriteString(msg.Body)
		return b.String()
	}

	boundary := "multiguard-" + boundaryFor(msg)
	header("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", boundary))
	b.WriteString("\r\n")
	for _, part := range []struct{ kind, body string }{{"text/plain", msg.Body}, {"text/html", msg.HTML}} {
		fmt.Fprintf(&b, "--%s\r\nContent-Type: %s; charset=UTF-8\r\n\r\n%s\r\n", boundary, part.kind, part.body)
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.String()
}

// boundaryFor derives a boundary that cannot appear in either part.
func boundaryFor(msg Message) string {
	for n := len(msg.Body) + len(msg.HTML); ; n++ {
		candidate := strconv.FormatInt(int64(n), 16)
		if !strings.Contains(msg.Body, candidate) && !strings.Contains(msg.HTML, candidate) {
			return candidate
		}
	}
}
