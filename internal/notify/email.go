package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/securesteps/auth-service/internal/auth/domain"
	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Sender is the part of gomail.Dialer the notifier needs.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailNotifier struct {
	from   string
	sender Sender
}

func NewEmailNotifier(cfg SMTPConfig) *EmailNotifier {
	return &EmailNotifier{
		from:   cfg.From,
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func NewEmailNotifierWithSender(from string, sender Sender) *EmailNotifier {
	return &EmailNotifier{from: from, sender: sender}
}

func (n *EmailNotifier) SendOTP(ctx context.Context, to, code string, purpose domain.OTPPurpose, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.sender.DialAndSend(BuildOTPMessage(n.from, to, code, purpose, ttl)); err != nil {
		return fmt.Errorf("send %s otp: %w", purpose, err)
	}
	return nil
}

// BuildOTPMessage renders the OTP mail for a purpose.
func BuildOTPMessage(from, to, code string, purpose domain.OTPPurpose, ttl time.Duration) *gomail.Message {
	var subject, intro string
	switch purpose {
	case domain.PurposeSignupVerification:
		subject = "Verify your Secure Steps account"
		intro = "Your email verification code is"
	case domain.PurposeLoginVerification:
		subject = "Secure Steps login code"
		intro = "Your login verification code is"
	case domain.PurposePasswordReset:
		subject = "Reset your Secure Steps password"
		intro = "Your password reset code is"
	default:
		subject = "Secure Steps verification code"
		intro = "Your verification code is"
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", fmt.Sprintf("%s: %s\n\nThis code will expire in %d minutes.\n\nIf you did not request it, you can ignore this email.",
		intro, code, int(ttl.Minutes())))
	return m
}

// LogNotifier writes codes to the process log. Development only.
type LogNotifier struct{}

func (LogNotifier) SendOTP(_ context.Context, to, code string, purpose domain.OTPPurpose, ttl time.Duration) error {
	log.Printf("notify: %s otp for %s: %s (valid %s)", purpose, to, code, ttl)
	return nil
}
