package adapter

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/burrowhq/burrow/pkg/types"
)

// NewSMTPSender returns a SendFunc delivering through a plain SMTP relay.
// from defaults to the auth user when empty.
func NewSMTPSender(host string, port int, user, pass, from string) SendFunc {
	if from == "" {
		from = user
	}
	return func(ctx context.Context, msg EmailMessage) error {
		addr := fmt.Sprintf("%s:%d", host, port)
		var auth smtp.Auth
		if user != "" {
			auth = smtp.PlainAuth("", user, pass, host)
		}
		payload := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
			from, msg.To, msg.Subject, msg.Body)

		// net/smtp is not context-aware; bound it from outside.
		done := make(chan error, 1)
		go func() {
			done <- smtp.SendMail(addr, auth, from, []string{msg.To}, []byte(payload))
		}()
		select {
		case err := <-done:
			if err == nil {
				return nil
			}
			if isAuthFailure(err) {
				return types.Permanent(err)
			}
			return types.Transient(err)
		case <-ctx.Done():
			return types.Transient(ctx.Err())
		}
	}
}

// isAuthFailure spots the 5xx auth replies that retrying cannot fix.
func isAuthFailure(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "535") || strings.Contains(s, "authentication") || strings.Contains(s, "auth failed")
}
