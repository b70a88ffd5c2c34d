// Package contact relays contact-form messages to the site owner by email.
package contact

import (
	"errors"
	"fmt"
	"log"
	"net/mail"
	"net/smtp"
	"strings"
)

var (
	ErrNotConfigured = errors.New("SMTP credentials not configured")
	ErrInvalid       = errors.New("invalid contact message")
)

// Message is one contact-form submission.
type Message struct {
	Name  string
	Email string
	Body  string
}

// Validate checks the fields the form requires.
func (m Message) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if strings.TrimSpace(m.Body) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalid)
	}
	if _, err := mail.ParseAddress(m.Email); err != nil {
		return fmt.Errorf("%w: email is not valid", ErrInvalid)
	}
	// Header injection guard: name and email end up in headers.
	if strings.ContainsAny(m.Name+m.Email, "\r\n") {
		return fmt.Errorf("%w: line breaks are not allowed", ErrInvalid)
	}
	return nil
}

// Mailer delivers a message to the owner.
type Mailer interface {
	Send(msg Message) error
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends through an SMTP relay with PLAIN auth.
type SMTPMailer struct {
	Host     string
	Port     string
	User     string
	Password string
	To       string

	send SendFunc
}

func NewSMTPMailer(host, port, user, password, to string) *SMTPMailer {
	if to == "" {
		to = user
	}
	return &SMTPMailer{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		To:       to,
		send:     smtp.SendMail,
	}
}

// WithSendFunc replaces the transport. Used by tests.
func (m *SMTPMailer) WithSendFunc(fn SendFunc) *SMTPMailer {
	m.send = fn
	return m
}

func (m *SMTPMailer) Send(msg Message) error {
	if m.User == "" || m.Password == "" {
		return ErrNotConfigured
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	auth := smtp.PlainAuth("", m.User, m.Password, m.Host)
	if err := m.send(m.Host+":"+m.Port, auth, m.User, []string{m.To}, m.compose(msg)); err != nil {
		log.Printf("Error sending email: %v", err)
		return fmt.Errorf("failed to send contact email: %w", err)
	}

	log.Printf("Email sent successfully from %s (%s)", msg.Name, msg.Email)
	return nil
}

func (m *SMTPMailer) compose(msg Message) []byte {
	subject := fmt.Sprintf("Portfolio Contact: %s", msg.Name)
	body := fmt.Sprintf(`
New contact form submission from your portfolio:

Name: %s
Email: %s
Message:
%s

---
Sent from your portfolio contact form
`, msg.Name, msg.Email, msg.Body)

	return []byte("To: " + m.To + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"From: " + m.User + "\r\n" +
		"Reply-To: " + msg.Email + "\r\n" +
		"\r\n" +
		body + "\r\n")
}
