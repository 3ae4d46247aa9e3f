// Package mailer sends transactional email (OTP codes, order notifications)
// over SMTP.
package mailer

import (
	"fmt"
	"net/smtp"
	"os"

	"go.uber.org/zap"
)

type Mailer interface {
	Send(to, subject, body string) error
}

type smtpMailer struct {
	host   string
	port   string
	from   string
	auth   smtp.Auth
	logger *zap.Logger
}

func NewSMTPMailer(logger *zap.Logger) Mailer {
	host := getEnv("SMTP_HOST", "localhost")
	port := getEnv("SMTP_PORT", "587")
	from := getEnv("SMTP_FROM", "noreply@shop.local")
	user := os.Getenv("SMTP_USER")
	password := os.Getenv("SMTP_PASSWORD")

	var auth smtp.Auth
	if user != "" {
		auth = smtp.PlainAuth("", user, password, host)
	}

	return &smtpMailer{
		host:   host,
		port:   port,
		from:   from,
		auth:   auth,
		logger: logger,
	}
}

func (m *smtpMailer) Send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		m.from, to, subject, body)

	addr := m.host + ":" + m.port
	if err := smtp.SendMail(addr, m.auth, m.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	m.logger.Info("Email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
