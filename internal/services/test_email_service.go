package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"civicapp/internal/config"
	"civicapp/internal/models"
	"civicapp/internal/observability"
	"civicapp/internal/services/mailer"
	contextutils "civicapp/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SentEmail is one message captured by TestEmailService
type SentEmail struct {
	To       string
	Subject  string
	Template string
	Data     map[string]interface{}
}

// TestEmailService implements the Mailer interface for testing purposes.
// It renders but never sends, keeping the messages in memory.
type TestEmailService struct {
	cfg    *config.Config
	logger *observability.Logger
	mu     sync.Mutex
	sent   []SentEmail
}

var _ mailer.Mailer = (*TestEmailService)(nil)

// NewTestEmailService creates a new TestEmailService instance
func NewTestEmailService(cfg *config.Config, logger *observability.Logger) *TestEmailService {
	return &TestEmailService{
		cfg:    cfg,
		logger: logger,
	}
}

// SendReportReceived records a confirmation message
func (e *TestEmailService) SendReportReceived(ctx context.Context, user *models.User, report *models.Report) error {
	subject := fmt.Sprintf("We received your %s report", report.Category)
	return e.SendEmail(ctx, user.Email, subject, TemplateReportReceived, reportEmailData(e.cfg, user, report))
}

// SendStatusChanged records a status message
func (e *TestEmailService) SendStatusChanged(ctx context.Context, user *models.User, report *models.Report) error {
	subject := fmt.Sprintf("Your %s report is now %s", report.Category, report.Status)
	return e.SendEmail(ctx, user.Email, subject, TemplateStatusChanged, reportEmailData(e.cfg, user, report))
}

// SendEmail renders the template and records the message (test mode - never sends)
func (e *TestEmailService) SendEmail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) error {
	ctx, span := otel.Tracer("test-email-service").Start(ctx, "SendEmail",
		trace.WithAttributes(
			attribute.String("email.subject", subject),
			attribute.String("email.template", templateName),
		),
	)
	defer span.End()

	if _, err := renderEmailTemplate(templateName, data); err != nil {
		return contextutils.WrapError(err, "failed to generate email content")
	}

	e.logger.Info(ctx, "TEST MODE: Would send email", map[string]interface{}{
		"to":        contextutils.MaskEmail(to),
		"subject":   subject,
		"template":  templateName,
		"test_mode": true,
		"data_keys": getMapKeys(data),
	})

	e.mu.Lock()
	e.sent = append(e.sent, SentEmail{To: to, Subject: subject, Template: templateName, Data: data})
	e.mu.Unlock()
	return nil
}

// Sent returns a copy of the captured messages
func (e *TestEmailService) Sent() []SentEmail {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]SentEmail(nil), e.sent...)
}

// IsEnabled always returns true in test mode
func (e *TestEmailService) IsEnabled() bool {
	return true
}

func getMapKeys(data map[string]interface{}) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
