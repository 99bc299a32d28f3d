package services

import (
	"context"

	"civicapp/internal/config"
	"civicapp/internal/observability"
	"civicapp/internal/services/mailer"
)

// CreateEmailService returns a TestEmailService in test mode and an SMTP EmailService otherwise
func CreateEmailService(cfg *config.Config, logger *observability.Logger) mailer.Mailer {
	if cfg.IsTest {
		logger.Info(context.Background(), "Using test email service", map[string]interface{}{
			"test_mode": true,
		})
		return NewTestEmailService(cfg, logger)
	}

	return NewEmailService(cfg, logger)
}
