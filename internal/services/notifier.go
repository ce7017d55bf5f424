package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/charlesng35/multiguard/internal/auth"
	"github.com/charlesng35/multiguard/internal/models"
	"github.com/charlesng35/multiguard/pkg/mail"
)

// MailNotifier delivers auth links through a mail.Mailer.
type MailNotifier struct {
	mailer  mail.Mailer
	appName string
}

// NewMailNotifier constructs a notifier. appName is used in subjects and greetings.
func NewMailNotifier(mailer mail.Mailer, appName string) (*MailNotifier, error) {
	if mailer == nil {
		return nil, errors.New("mail notifier: mailer is required")
	}
	appName = strings.TrimSpace(appName)
	if appName == "" {
		appName = "Multiguard"
	}
	return &MailNotifier{mailer: mailer, appName: appName}, nil
}

// SendVerificationLink mails the signed email verification link.
func (n *MailNotifier) SendVerificationLink(ctx context.Context, guard auth.Guard, principal *models.Principal, link string) error {
	body := fmt.Sprintf("Hello %s,\n\nPlease click the link below to verify your email address:\n%s\n\nIf you did not create an account, no further action is required.\n", principal.Name, link)
	return n.send(ctx, principal.Email, "Verify Email Address", body, link, "Verify Email Address")
}

// SendPasswordResetLink mails the password reset link.
func (n *MailNotifier) SendPasswordResetLink(ctx context.Context, guard auth.Guard, email, link string) error {
	body := fmt.Sprintf("You are receiving this email because we received a password reset request for your account.\n\nReset your password here:\n%s\n\nIf you did not request a password reset, no further action is required.\n", link)
	return n.send(ctx, email, "Reset Password Notification", body, link, "Reset Password")
}

func (n *MailNotifier) send(ctx context.Context, to, subject, body, link, action string) error {
	message := mail.Message{
		To:      []string{to},
		Subject: fmt.Sprintf("%s: %s", n.appName, subject),
		Body:    body,
		HTML: fmt.Sprintf("<p>%s</p><p><a href=\"%s\">%s</a></p>",
			html.EscapeString(strings.SplitN(body, "\n\n", 2)[0]),
			html.EscapeString(link),
			html.EscapeString(action)),
	}
	if err := n.mailer.Send(ctx, message); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		return fmt.Errorf("mail notifier: send %q: %w", subject, err)
	}
	return nil
}
