// Package mail sends transactional email for account flows.
//
// Sender is the delivery seam: SMTPSender pushes messages through a real
// SMTP relay, LogSender writes them to the structured log for local
// development. The variant is chosen once at startup from config.
package mail

import (
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"gopkg.in/gomail.v2"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers a single message.
type Sender interface {
	Send(msg Message) error
}

// SMTPSender delivers mail through an SMTP relay using gomail.
type SMTPSender struct {
	host string
	port int
	user string
	pass string
	from string
}

func NewSMTPSender(host string, port int, user, pass, from string) *SMTPSender {
	return &SMTPSender{host: host, port: port, user: user, pass: pass, from: from}
}

func (s *SMTPSender) Send(msg Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	d := gomail.NewDialer(s.host, s.port, s.user, s.pass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

// LogSender records messages in the log instead of delivering them.
// Useful for development and tests.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(msg Message) error {
	s.logger.Info("mail (log sender)",
		"to", msg.To,
		"subject", msg.Subject,
		"body_len", len(msg.HTML))
	return nil
}

var verificationTmpl = template.Must(template.New("verification").Parse(`
<p>Hi {{.Name}},</p>
<p>Please confirm your email address by clicking the link below. The link
is valid for 24 hours.</p>
<p><a href="{{.Link}}">Verify my email</a></p>
<p>If you did not create an account, you can ignore this message.</p>
`))

var passwordResetTmpl = template.Must(template.New("password_reset").Parse(`
<p>Hi {{.Name}},</p>
<p>We received a request to reset your password. The link below is valid
for 1 hour.</p>
<p><a href="{{.Link}}">Reset my password</a></p>
<p>If you did not request this, no action is needed.</p>
`))

var welcomeTmpl = template.Must(template.New("welcome").Parse(`
<p>Hi {{.Name}},</p>
<p>Your email address is verified and your account is ready to use.</p>
<p><a href="{{.Link}}">Start browsing</a></p>
`))

type templateData struct {
	Name string
	Link string
}

func render(t *template.Template, data templateData) (string, error) {
	var buf strings.Builder
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// VerificationMessage builds the email-verification mail. The token is
// embedded in a frontend link so the client can complete the flow.
func VerificationMessage(to, name, frontendURL, token string) (Message, error) {
	html, err := render(verificationTmpl, templateData{
		Name: name,
		Link: fmt.Sprintf("%s/verify-email?token=%s", strings.TrimRight(frontendURL, "/"), token),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Verify your email address", HTML: html}, nil
}

// PasswordResetMessage builds the password-reset mail.
func PasswordResetMessage(to, name, frontendURL, token string) (Message, error) {
	html, err := render(passwordResetTmpl, templateData{
		Name: name,
		Link: fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(frontendURL, "/"), token),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Reset your password", HTML: html}, nil
}

// WelcomeMessage builds the post-verification welcome mail.
func WelcomeMessage(to, name, frontendURL string) (Message, error) {
	html, err := render(welcomeTmpl, templateData{
		Name: name,
		Link: strings.TrimRight(frontendURL, "/"),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Welcome aboard", HTML: html}, nil
}
