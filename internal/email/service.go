// Package email delivers operator credentials and venue notices via SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

// NewService creates a new email service
func NewService(config Config) *Service {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendEmail sends a plain text email
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		from,
		subject,
		body,
	))

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg)
}

// SendHTMLEmail sends an HTML email
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	boundary := "boundary-proctor"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	// Plain text part (fallback)
	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	// HTML part
	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

type CredentialsData struct {
	AppName  string
	TestName string
	Username string
	Password string
	LoginURL string
}

type VenueUpdateData struct {
	AppName  string
	Name     string
	TestName string
	Venue    string
}

// SendCredentialsEmail delivers freshly issued operator credentials
func (s *Service) SendCredentialsEmail(to, testName, username, password, loginURL string) error {
	data := CredentialsData{
		AppName:  "Proctor",
		TestName: testName,
		Username: username,
		Password: password,
		LoginURL: loginURL,
	}

	subject := fmt.Sprintf("Operator Assignment - %s", testName)
	html, err := renderTemplate(credentialsEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render credentials template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, subject, html)
}

// SendVenueUpdateEmail notifies an applicant their venue changed
func (s *Service) SendVenueUpdateEmail(to, name, testName, venue string) error {
	data := VenueUpdateData{
		AppName:  "Proctor",
		Name:     name,
		TestName: testName,
		Venue:    venue,
	}

	subject := fmt.Sprintf("Venue Update - %s", testName)
	html, err := renderTemplate(venueUpdateEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render venue update template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, subject, html)
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const credentialsEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Operator assignment</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .creds { background: #f9f9f9; padding: 15px; border-left: 4px solid #0066cc; margin: 20px 0; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>You have been assigned as an operator for: {{.TestName}}</h2>

    <div class="creds">
        <p><strong>Login Details:</strong></p>
        <p>Username: {{.Username}}</p>
        <p>Password: {{.Password}}</p>
    </div>

    <p>
        <a href="{{.LoginURL}}" class="button">Click here to Login</a>
    </p>

    <div class="footer">
        <p>This account is scoped to the tests you are assigned to and is revoked when they complete.</p>
    </div>
</body>
</html>`

const venueUpdateEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Venue update</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .venue { background: #f0fdf4; padding: 15px; border-left: 4px solid #166534; margin: 20px 0; font-size: 1.1em; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Venue update for {{.TestName}}</h2>

    <p>Dear {{.Name}},</p>

    <p>Your venue for the upcoming test has been updated.</p>

    <div class="venue">
        <strong>Venue:</strong> {{.Venue}}
    </div>

    <div class="footer">
        <p>If you believe this change is in error, contact the placement office.</p>
    </div>
</body>
</html>`
