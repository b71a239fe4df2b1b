package mailer

import (
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog"
)

type Config struct {
	Host     string
	Port     string
	From     string
	Password string
}

func (c Config) addr() string {
	return c.Host + ":" + c.Port
}

// SendStatusEmail emails a registrant about their registration status. It is
// only ever called from the notification consumer, so a failure here is the
// consumer's problem, never the registration's.
func SendStatusEmail(log *zerolog.Logger, cfg Config, eventSlug, status, recipient string) error {
	var subject, body string
	switch status {
	case "approved":
		subject = "Your registration is approved"
		body = fmt.Sprintf("Hi!\n\nYour registration for %q has been approved. Your ticket is ready, see you there!", eventSlug)
	case "rejected":
		subject = "Your registration was declined"
		body = fmt.Sprintf("Hi!\n\nUnfortunately your registration for %q was declined by the organizer.", eventSlug)
	case "waitlist":
		subject = "You are on the waitlist"
		body = fmt.Sprintf("Hi!\n\n%q is currently full. You are on the waitlist and will be notified if a spot frees up.", eventSlug)
	case "pending":
		subject = "Your registration is pending approval"
		body = fmt.Sprintf("Hi!\n\nWe received your registration for %q. The organizer will review it shortly.", eventSlug)
	case "cancelled":
		subject = "Your registration was cancelled"
		body = fmt.Sprintf("Hi!\n\nYour registration for %q has been cancelled.", eventSlug)
	default:
		subject = "Registration update"
		body = fmt.Sprintf("Hi!\n\nYour registration for %q is now %q.", eventSlug, status)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		cfg.From, recipient, subject, body,
	)

	auth := smtp.PlainAuth("", cfg.From, cfg.Password, cfg.Host)

	if err := smtp.SendMail(cfg.addr(), auth, cfg.From, []string{recipient}, []byte(msg)); err != nil {
		log.Warn().Msgf("failed to send email to %s: %v", recipient, err)
		return fmt.Errorf("send email: %w", err)
	}

	log.Info().Msgf("email sent to %s (status: %s)", recipient, status)
	return nil
}
