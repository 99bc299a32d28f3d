// Package mailer defines the outbound e-mail interface used by notifications.
package mailer

import (
	"context"

	"civicapp/internal/models"
)

// Mailer defines the interface for email sending functionality
type Mailer interface {
	// SendReportReceived confirms to the owner that their report was filed
	SendReportReceived(ctx context.Context, user *models.User, report *models.Report) error

	// SendStatusChanged tells the owner about a moderation decision
	SendStatusChanged(ctx context.Context, user *models.User, report *models.Report) error

	// SendEmail sends a generic email with the given parameters
	SendEmail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) error

	// IsEnabled returns whether email functionality is enabled
	IsEnabled() bool
}
