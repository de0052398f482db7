// -----------------------------------------------------------------------
// Email sink - SMTP delivery of outcomes with a markdown-rendered HTML part
// -----------------------------------------------------------------------

package notify

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"

	"github.com/ternarybob/autobond/internal/common"
)

const smtpDialTimeout = 15 * time.Second

// Email sends each message to every configured recipient
type Email struct {
	config common.NotifyConfig
	logger arbor.ILogger

	// deliver is swapped in tests
	deliver func(ctx context.Context, to, msg string) error
}

// NewEmail creates the sink from the notify section
func NewEmail(config common.NotifyConfig, logger arbor.ILogger) *Email {
	e := &Email{config: config, logger: logger}
	e.deliver = e.dial
	return e
}

func (e *Email) Send(ctx context.Context, message, title string) {
	if !e.config.SMTPConfigured() {
		return
	}

	htmlBody, err := renderHTML(message)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to render email body, sending plain text only")
		htmlBody = ""
	}

	subject := "autobond: " + title
	for _, to := range e.config.EmailTo {
		msg := e.buildMessage(to, subject, htmlBody, message)
		if err := e.deliver(ctx, to, msg); err != nil {
			e.logger.Warn().Err(err).Str("to", to).Msg("Failed to send notification email")
			continue
		}
		e.logger.Debug().Str("to", to).Msg("Notification email sent")
	}
}

// renderHTML turns the outcome text (markdown) into an HTML fragment
func renderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}

func (e *Email) buildMessage(to, subject, htmlBody, textBody string) string {
	var msg strings.Builder
	fromName := mime.QEncoding.Encode("utf-8", e.config.SMTPFromName)
	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", fromName, e.config.SMTPFrom))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject)))
	msg.WriteString("MIME-Version: 1.0\r\n")

	if htmlBody == "" {
		msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
		msg.WriteString("Content-Transfer-Encoding: base64\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(encodeBase64WithLineBreaks(textBody))
		msg.WriteString("\r\n")
		return msg.String()
	}

	boundary := generateBoundary()
	msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	msg.WriteString("\r\n")

	msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	msg.WriteString("Content-Transfer-Encoding: base64\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(encodeBase64WithLineBreaks(textBody))
	msg.WriteString("\r\n")

	msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("Content-Transfer-Encoding: base64\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(encodeBase64WithLineBreaks(htmlBody))
	msg.WriteString("\r\n")

	msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	return msg.String()
}

func (e *Email) auth() smtp.Auth {
	if e.config.SMTPUsername == "" {
		return nil
	}
	return smtp.PlainAuth("", e.config.SMTPUsername, e.config.SMTPPassword, e.config.SMTPHost)
}

// dial delivers over implicit TLS, falling back to STARTTLS, or plain SMTP when TLS is off
func (e *Email) dial(ctx context.Context, to, msg string) error {
	addr := net.JoinHostPort(e.config.SMTPHost, fmt.Sprintf("%d", e.config.SMTPPort))
	dialer := &net.Dialer{Timeout: smtpDialTimeout}

	if !e.config.SMTPUseTLS {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to connect to SMTP server: %w", err)
		}
		return e.deliverOn(conn, false, to, msg)
	}

	tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: e.config.SMTPHost}}
	conn, err := tlsDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		e.logger.Debug().Err(err).Msg("Direct TLS failed, trying STARTTLS")
		plain, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to connect to SMTP server: %w", err)
		}
		return e.deliverOn(plain, true, to, msg)
	}
	return e.deliverOn(conn, false, to, msg)
}

func (e *Email) deliverOn(conn net.Conn, startTLS bool, to, msg string) error {
	defer conn.Close()

	client, err := smtp.NewClient(conn, e.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if startTLS {
		if err := client.StartTLS(&tls.Config{ServerName: e.config.SMTPHost}); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if auth := e.auth(); auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(e.config.SMTPFrom); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set mail recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

// generateBoundary creates a unique MIME boundary string
func generateBoundary() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "autobond_boundary_fallback"
	}
	return fmt.Sprintf("autobond_%x", b)
}

// encodeBase64WithLineBreaks wraps base64 output at 76 characters (RFC 2045)
func encodeBase64WithLineBreaks(content string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))

	var result strings.Builder
	const lineLen = 76
	for i := 0; i < len(encoded); i += lineLen {
		end := i + lineLen
		if end > len(encoded) {
			end = len(encoded)
		}
		result.WriteString(encoded[i:end])
		if end < len(encoded) {
			result.WriteString("\r\n")
		}
	}
	return result.String()
}
