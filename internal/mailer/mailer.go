package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"sync"

	"go.uber.org/zap"
	gomail "gopkg.in/gomail.v2"

	"github.com/Omianju/LMS/internal/authcore"
)

// SMTPConfig carries the outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer renders embedded templates and delivers them over SMTP.
type SMTPMailer struct {
	configuration SMTPConfig
	templates     *template.Template
	subjects      map[string]string
	logger        *zap.Logger
}

var _ authcore.Mailer = (*SMTPMailer)(nil)

// New parses the embedded templates and returns a ready mailer.
func New(configuration SMTPConfig, templatesFS embed.FS, logger *zap.Logger) (*SMTPMailer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	parsed, parseErr := template.ParseFS(templatesFS, "*.html")
	if parseErr != nil {
		return nil, fmt.Errorf("mailer.templates: %w", parseErr)
	}
	return &SMTPMailer{
		configuration: configuration,
		templates:     parsed,
		subjects: map[string]string{
			authcore.ActivationMailTemplate: "Activate your account",
		},
		logger: logger,
	}, nil
}

// Send renders templateName with templateData and mails it to destination.
func (sender *SMTPMailer) Send(ctx context.Context, destination string, templateName string, templateData map[string]any) error {
	var body bytes.Buffer
	if renderErr := sender.templates.ExecuteTemplate(&body, templateName+".html", templateData); renderErr != nil {
		return fmt.Errorf("mailer.render.%s: %w", templateName, renderErr)
	}

	message := gomail.NewMessage()
	message.SetHeader("From", sender.configuration.From)
	message.SetHeader("To", destination)
	message.SetHeader("Subject", sender.subjectFor(templateName))
	message.SetBody("text/html", body.String())

	dialer := gomail.NewDialer(sender.configuration.Host, sender.configuration.Port, sender.configuration.Username, sender.configuration.Password)
	if sendErr := dialer.DialAndSend(message); sendErr != nil {
		return fmt.Errorf("mailer.send.%s: %w", templateName, sendErr)
	}
	sender.logger.Info("mail sent",
		zap.String("template", templateName),
		zap.String("destination", destination),
	)
	return nil
}

func (sender *SMTPMailer) subjectFor(templateName string) string {
	if subject, ok := sender.subjects[templateName]; ok {
		return subject
	}
	return "Notification"
}

// CaptureMailer records sends instead of delivering them, for tests and
// local runs without an SMTP endpoint.
type CaptureMailer struct {
	mutex sync.Mutex
	Sent  []CapturedMail
}

// CapturedMail is one recorded Send call.
type CapturedMail struct {
	Destination  string
	TemplateName string
	TemplateData map[string]any
}

var _ authcore.Mailer = (*CaptureMailer)(nil)

// NewCaptureMailer constructs an empty recorder.
func NewCaptureMailer() *CaptureMailer {
	return &CaptureMailer{}
}

// Send records the call and always succeeds.
func (sender *CaptureMailer) Send(ctx context.Context, destination string, templateName string, templateData map[string]any) error {
	sender.mutex.Lock()
	defer sender.mutex.Unlock()
	sender.Sent = append(sender.Sent, CapturedMail{
		Destination:  destination,
		TemplateName: templateName,
		TemplateData: templateData,
	})
	return nil
}

// Last returns the most recent recorded mail.
func (sender *CaptureMailer) Last() (CapturedMail, bool) {
	sender.mutex.Lock()
	defer sender.mutex.Unlock()
	if len(sender.Sent) == 0 {
		return CapturedMail{}, false
	}
	return sender.Sent[len(sender.Sent)-1], true
}
