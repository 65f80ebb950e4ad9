package auth

import (
	"context"
	"fmt"
	"log"
)

// DevConsoleMailer logs emails instead of delivering them. Production wires
// a real SMTP-backed implementation behind the same interface.
type DevConsoleMailer struct {
	enabled bool
}

func NewDevConsoleMailer(enabled bool) *DevConsoleMailer {
	return &DevConsoleMailer{enabled: enabled}
}

func (m *DevConsoleMailer) Send(_ context.Context, to, subject, html string) error {
	if m.enabled {
		log.Printf("[DEV-EMAIL] to=%s subject=%q body_len=%d", to, subject, len(html))
	}
	return nil
}

func welcomeEmail(fullName string) (subject, html string) {
	name := fullName
	if name == "" {
		name = "there"
	}
	subject = "Welcome!"
	html = fmt.Sprintf("<p>Hi %s,</p><p>Your account has been created. You can now sign in with your email address.</p>", name)
	return subject, html
}

func passwordResetEmail(token string) (subject, html string) {
	subject = "Password reset request"
	html = fmt.Sprintf("<p>We received a request to reset your password.</p><p>Use this token to set a new one: <code>%s</code></p><p>The token expires in one hour. If you did not request a reset, ignore this email.</p>", token)
	return subject, html
}
