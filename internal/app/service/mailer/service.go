package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"go.uber.org/zap"

	"github.com/drydocs/billing/pkg/config"
	"github.com/drydocs/billing/pkg/logctx"
)

// Service sends transactional billing notices over SMTP. All callers treat
// sends as best-effort: a failed notice is logged by the caller and never
// fails the webhook that triggered it.
type Service struct {
	cfg config.SMTPConfig
	log *zap.SugaredLogger
}

func New(cfg *config.Config, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg.SMTP, log: log}
}

// SendCancellationNotice tells the user when their already-paid access ends.
func (s *Service) SendCancellationNotice(ctx context.Context, to, plan string, accessEnd time.Time) error {
	subject := "Your subscription has been canceled"
	body := fmt.Sprintf(
		"<p>Your %s subscription has been canceled.</p>"+
			"<p>You keep full access and any remaining report credits until <b>%s</b>.</p>",
		plan, accessEnd.Format("January 2, 2006"))
	return s.send(ctx, to, subject, body)
}

// SendDunningNotice asks the user to update their payment method. portalURL
// may be empty when the portal link could not be created.
func (s *Service) SendDunningNotice(ctx context.Context, to, plan, portalURL string) error {
	subject := "Payment failed for your subscription"
	body := fmt.Sprintf("<p>The latest payment for your %s subscription failed.</p>", plan)
	if portalURL != "" {
		body += fmt.Sprintf(`<p><a href="%s">Update your payment details</a> to keep your account active.</p>`, portalURL)
	} else {
		body += "<p>Please update your payment details from the billing page to keep your account active.</p>"
	}
	return s.send(ctx, to, subject, body)
}

// send runs the whole SMTP exchange under the configured timeout. A hung
// server must never stall a caller past the provider's webhook budget.
func (s *Service) send(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("empty recipient")
	}
	if s.cfg.Host == "" {
		// dev setups run without SMTP; the notice is dropped on purpose
		logctx.FromCtx(ctx, s.log).Infow("smtp not configured, dropping notice", "to", to, "subject", subject)
		return nil
	}

	sender := s.cfg.Sender
	if sender == "" {
		sender = "no-reply@localhost"
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout())
	defer cancel()

	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s failed: %w", addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp handshake with %s failed: %w", addr, err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return fmt.Errorf("smtp starttls failed: %w", err)
		}
	}
	if s.cfg.Username != "" && s.cfg.Password != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}
	if err := c.Mail(sender); err != nil {
		return fmt.Errorf("smtp mail from failed: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to %s failed: %w", to, err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data failed: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp body write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp body close failed: %w", err)
	}
	_ = c.Quit()

	logctx.FromCtx(ctx, s.log).Infow("notice sent", "to", to, "subject", subject)
	return nil
}
