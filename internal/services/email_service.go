package services

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"civicapp/internal/config"
	"civicapp/internal/models"
	"civicapp/internal/observability"
	"civicapp/internal/services/mailer"
	contextutils "civicapp/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/mail.v2"
)

// Email template names
const (
	TemplateReportReceived = "report_received"
	TemplateStatusChanged  = "status_changed"
)

// EmailService implements mailer.Mailer over SMTP using gomail
type EmailService struct {
	cfg    *config.Config
	logger *observability.Logger
	dialer *mail.Dialer
}

// Ensure EmailService implements the Mailer interface
var _ mailer.Mailer = (*EmailService)(nil)

// NewEmailService creates a new EmailService instance
func NewEmailService(cfg *config.Config, logger *observability.Logger) *EmailService {
	var dialer *mail.Dialer
	if cfg.Email.Enabled && cfg.Email.SMTP.Host != "" {
		dialer = mail.NewDialer(
			cfg.Email.SMTP.Host,
			cfg.Email.SMTP.Port,
			cfg.Email.SMTP.Username,
			cfg.Email.SMTP.Password,
		)
	}

	return &EmailService{
		cfg:    cfg,
		logger: logger,
		dialer: dialer,
	}
}

// SendReportReceived confirms a new report to its owner
func (e *EmailService) SendReportReceived(ctx context.Context, user *models.User, report *models.Report) error {
	subject := fmt.Sprintf("We received your %s report", report.Category)
	return e.SendEmail(ctx, user.Email, subject, TemplateReportReceived, reportEmailData(e.cfg, user, report))
}

// SendStatusChanged tells the owner about a moderation decision
func (e *EmailService) SendStatusChanged(ctx context.Context, user *models.User, report *models.Report) error {
	subject := fmt.Sprintf("Your %s report is now %s", report.Category, report.Status)
	return e.SendEmail(ctx, user.Email, subject, TemplateStatusChanged, reportEmailData(e.cfg, user, report))
}

// SendEmail renders templateName with data and sends it to to
func (e *EmailService) SendEmail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) (err error) {
	ctx, span := otel.Tracer("email-service").Start(ctx, "SendEmail",
		trace.WithAttributes(
			attribute.String("email.to", contextutils.MaskEmail(to)),
			attribute.String("email.subject", subject),
			attribute.String("email.template", templateName),
		),
	)
	defer observability.FinishSpan(span, &err)

	if !e.IsEnabled() {
		e.logger.Info(ctx, "Email disabled, skipping email send", map[string]interface{}{
			"to":       contextutils.MaskEmail(to),
			"template": templateName,
		})
		return nil
	}

	if e.dialer == nil {
		return contextutils.ErrorWithContextf("email service not properly configured")
	}

	content, err := renderEmailTemplate(templateName, data)
	if err != nil {
		return contextutils.WrapError(err, "failed to generate email content")
	}

	m := mail.NewMessage()
	m.SetHeader("From", m.FormatAddress(e.cfg.Email.SMTP.FromAddress, e.cfg.Email.SMTP.FromName))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", content)

	if err = e.dialer.DialAndSend(m); err != nil {
		e.logger.Error(ctx, "Failed to send email", err, map[string]interface{}{
			"to":       contextutils.MaskEmail(to),
			"template": templateName,
		})
		return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeServiceUnavailable, contextutils.SeverityError,
			"failed to send email", err.Error(), err)
	}

	e.logger.Info(ctx, "Email sent successfully", map[string]interface{}{
		"to":       contextutils.MaskEmail(to),
		"template": templateName,
		"subject":  subject,
	})
	return nil
}

// IsEnabled returns whether email functionality is enabled
func (e *EmailService) IsEnabled() bool {
	return e.cfg.Email.Enabled && e.cfg.Email.SMTP.Host != ""
}

func reportEmailData(cfg *config.Config, user *models.User, report *models.Report) map[string]interface{} {
	data := map[string]interface{}{
		"Name":        user.Name,
		"ReportID":    report.ID,
		"Category":    report.Category,
		"Description": report.Description,
		"Status":      string(report.Status),
		"ReportURL":   strings.TrimRight(cfg.Server.AppBaseURL, "/") + "/reports/" + report.ID,
	}
	if report.RejectReason.Valid {
		data["RejectReason"] = report.RejectReason.String
	}
	return data
}

const emailLayoutStart = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .content { background-color: #f9f9f9; padding: 20px; }
        .button { display: inline-block; background-color: #2e7d32; color: white; padding: 12px 24px; text-decoration: none; border-radius: 5px; margin: 20px 0; }
    </style>
</head>
<body>
    <div class="container"><div class="content">`

const emailLayoutEnd = `
        <a href="{{.ReportURL}}" class="button">View your report</a>
    </div></div>
</body>
</html>`

var emailTemplateBodies = map[string]string{
	TemplateReportReceived: `
        <h2>Hello {{.Name}},</h2>
        <p>Thank you for reporting a <strong>{{.Category}}</strong> issue. Your report is now <strong>{{.Status}}</strong> and will be reviewed by the city team.</p>
        <blockquote>{{.Description}}</blockquote>`,
	TemplateStatusChanged: `
        <h2>Hello {{.Name}},</h2>
        <p>Your <strong>{{.Category}}</strong> report has moved to <strong>{{.Status}}</strong>.</p>
        {{if .RejectReason}}<p>Reason: {{.RejectReason}}</p>{{end}}`,
}

// renderEmailTemplate renders a named template inside the shared layout
func renderEmailTemplate(templateName string, data map[string]interface{}) (string, error) {
	body, ok := emailTemplateBodies[templateName]
	if !ok {
		return "", contextutils.ErrorWithContextf("unknown template: %s", templateName)
	}

	tmpl, err := template.New(templateName).Option("missingkey=zero").Parse(emailLayoutStart + body + emailLayoutEnd)
	if err != nil {
		return "", contextutils.WrapError(err, "failed to parse template")
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", contextutils.WrapError(err, "failed to execute template")
	}
	return buf.String(), nil
}
