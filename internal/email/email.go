// Package email defines the outgoing mail interface for workflow
// alerts. Implementations live in the ses and noop subpackages.
package email

import "context"

// Sender delivers workflow alert mail.
type Sender interface {
	// SendStageReadyEmail tells a role holder that a delivery is
	// waiting on their stage.
	SendStageReadyEmail(ctx context.Context, toEmail, toName, parcelName, stageLabel string) error
	// SendRejectionEmail tells the uploader their delivery was
	// rejected at a check stage.
	SendRejectionEmail(ctx context.Context, toEmail, toName, parcelName, stageLabel string) error
}
