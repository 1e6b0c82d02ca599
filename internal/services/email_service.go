package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/tmackenzie/veridian/internal/models"
	pkglogger "github.com/tmackenzie/veridian/pkg/logger"
)

// EmailService defines the interface for outbound notifications.
type EmailService interface {
	SendIssuanceNotification(ctx context.Context, cert *models.Certificate) error
}

// AWSSESEmailService sends notifications using AWS SES.
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	baseURL     string
	logger      *slog.Logger
}

func NewAWSSESEmailService(region, fromAddress, baseURL string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		baseURL:     baseURL,
		logger:      logger,
	}, nil
}

// SendIssuanceNotification tells the certificate holder their certificate
// has been issued and where to verify it.
func (s *AWSSESEmailService) SendIssuanceNotification(ctx context.Context, cert *models.Certificate) error {
	verifyLink := fmt.Sprintf("%s/verify/%s", s.baseURL, cert.Serial)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .content { padding: 20px 0; }
        .serial { font-family: monospace; background-color: #f8f9fa; padding: 8px 12px; border-radius: 4px; }
        .button { display: inline-block; background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Your Certificate Has Been Issued</h1>
        </div>
        <div class="content">
            <p>Hello %s,</p>
            <p>Your certificate <strong>%s</strong> has been issued.</p>
            <p>Serial number: <span class="serial">%s</span></p>
            <p>Anyone can confirm its authenticity at any time using the link below:</p>
            <p><a href="%s" class="button">Verify Certificate</a></p>
            <p>Or copy and paste this link in your browser:<br>
            <code>%s</code></p>
        </div>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, cert.HolderName, cert.Title, cert.Serial, verifyLink, verifyLink)

	textBody := fmt.Sprintf(`Your Certificate Has Been Issued

Hello %s,

Your certificate "%s" has been issued.

Serial number: %s

Anyone can confirm its authenticity at any time using this link:
%s

This is an automated message. Please do not reply to this email.
`, cert.HolderName, cert.Title, cert.Serial, verifyLink)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{cert.HolderEmail},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(fmt.Sprintf("Certificate issued: %s", cert.Title)),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send issuance notification via SES",
			slog.String("email", pkglogger.SanitizedEmail(cert.HolderEmail)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("issuance notification sent",
		slog.String("serial", cert.Serial),
		slog.String("message_id", *result.MessageId))

	return nil
}

// NoopEmailService is used when outbound email is disabled. It logs the
// notification it would have sent and succeeds.
type NoopEmailService struct {
	logger *slog.Logger
}

func NewNoopEmailService(logger *slog.Logger) *NoopEmailService {
	return &NoopEmailService{logger: logger}
}

func (s *NoopEmailService) SendIssuanceNotification(_ context.Context, cert *models.Certificate) error {
	s.logger.Info("email disabled, skipping issuance notification",
		slog.String("serial", cert.Serial))
	return nil
}
