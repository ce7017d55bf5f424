package mail

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

type logMailer struct {
	log  *zap.Logger
	from string
}

// NewLogMailer returns a Mailer that writes messages to the logger instead of
// delivering them. It backs local development when SMTP is disabled.
func NewLogMailer(log *zap.Logger, from string) Mailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &logMailer{log: log, from: from}
}

func (m *logMailer) Send(_ context.Context, msg Message) error {
	recipients := uniqueAddresses(msg.To)
	if len(recipients) == 0 {
		return ErrNoRecipients
	}
	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = m.from
	}
	m.log.Info("mail captured",
		zap.String("from", from),
		zap.Strings("to", recipients),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}

// New picks the SMTP mailer when delivery is enabled and the log mailer otherwise.
func New(cfg SMTPSettings, log *zap.Logger) (Mailer, error) {
	if !cfg.Enabled {
		return NewLogMailer(log, cfg.From), nil
	}
	return NewSMTPMailer(cfg)
}
