package noop

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"gioland/internal/email"
)

type noopSender struct {
	baseURL string
}

// NewNoopSender creates a no-op Sender that logs alert URLs to stdout.
func NewNoopSender(baseURL string) email.Sender {
	return &noopSender{baseURL: baseURL}
}

func (s *noopSender) SendStageReadyEmail(_ context.Context, toEmail, toName, parcelName, stageLabel string) error {
	parcelURL := fmt.Sprintf("%s/parcel/%s", s.baseURL, url.PathEscape(parcelName))
	log.Printf("[NOOP EMAIL] Stage ready alert for %s (%s): %s waiting at %s", toName, toEmail, parcelURL, stageLabel)
	return nil
}

func (s *noopSender) SendRejectionEmail(_ context.Context, toEmail, toName, parcelName, stageLabel string) error {
	parcelURL := fmt.Sprintf("%s/parcel/%s", s.baseURL, url.PathEscape(parcelName))
	log.Printf("[NOOP EMAIL] Rejection alert for %s (%s): %s rejected at %s", toName, toEmail, parcelURL, stageLabel)
	return nil
}
