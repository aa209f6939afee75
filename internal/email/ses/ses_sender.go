package ses

import (
	"context"
	"fmt"
	"net/url"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"gioland/internal/email"
)

type sesSender struct {
	client      *sesv2.Client
	fromAddress string
	fromName    string
	baseURL     string
}

// NewSESSender creates a new SES-backed Sender.
func NewSESSender(region, fromAddress, fromName, baseURL string) (email.Sender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for SES: %w", err)
	}
	client := sesv2.NewFromConfig(cfg)
	return &sesSender{
		client:      client,
		fromAddress: fromAddress,
		fromName:    fromName,
		baseURL:     baseURL,
	}, nil
}

func (s *sesSender) SendStageReadyEmail(ctx context.Context, toEmail, toName, parcelName, stageLabel string) error {
	parcelURL := fmt.Sprintf("%s/parcel/%s", s.baseURL, url.PathEscape(parcelName))

	subject := fmt.Sprintf("GioLand delivery ready for %s", stageLabel)
	htmlBody := buildStageReadyHTML(toName, stageLabel, parcelURL)
	textBody := fmt.Sprintf("Hi %s,\n\nA delivery is waiting for %s:\n%s\n\nGioLand", toName, stageLabel, parcelURL)

	return s.send(ctx, toEmail, subject, htmlBody, textBody)
}

func (s *sesSender) SendRejectionEmail(ctx context.Context, toEmail, toName, parcelName, stageLabel string) error {
	parcelURL := fmt.Sprintf("%s/parcel/%s", s.baseURL, url.PathEscape(parcelName))

	subject := fmt.Sprintf("GioLand delivery rejected at %s", stageLabel)
	htmlBody := buildRejectionHTML(toName, stageLabel, parcelURL)
	textBody := fmt.Sprintf("Hi %s,\n\nYour delivery was rejected at %s. A new step was opened for the corrected upload:\n%s\n\nGioLand", toName, stageLabel, parcelURL)

	return s.send(ctx, toEmail, subject, htmlBody, textBody)
}

func (s *sesSender) send(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	from := fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)

	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: &from,
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &subject},
				Body: &types.Body{
					Html: &types.Content{Data: &htmlBody},
					Text: &types.Content{Data: &textBody},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("SES SendEmail: %w", err)
	}
	return nil
}

func buildStageReadyHTML(name, stageLabel, parcelURL string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #333;">Delivery ready for %s</h2>
  <p>Hi %s,</p>
  <p>A delivery step is waiting on your team. Open it below:</p>
  <p style="text-align: center; margin: 30px 0;">
    <a href="%s" style="background-color: #4F46E5; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; display: inline-block;">View delivery</a>
  </p>
  <p>Or copy and paste this link into your browser:</p>
  <p style="word-break: break-all; color: #666;">%s</p>
  <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
  <p style="color: #999; font-size: 12px;">GioLand - Copernicus delivery workflow</p>
</body>
</html>`, stageLabel, name, parcelURL, parcelURL)
}

func buildRejectionHTML(name, stageLabel, parcelURL string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #333;">Delivery rejected at %s</h2>
  <p>Hi %s,</p>
  <p>Your delivery did not pass the check. A new step was opened for the corrected upload:</p>
  <p style="text-align: center; margin: 30px 0;">
    <a href="%s" style="background-color: #4F46E5; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; display: inline-block;">View delivery</a>
  </p>
  <p>Or copy and paste this link into your browser:</p>
  <p style="word-break: break-all; color: #666;">%s</p>
  <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
  <p style="color: #999; font-size: 12px;">GioLand - Copernicus delivery workflow</p>
</body>
</html>`, stageLabel, name, parcelURL, parcelURL)
}
