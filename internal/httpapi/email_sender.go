package httpapi

import (
	"context"

	"github.com/MarkoPoloResearchLab/commission_svc/internal/notifications"
)

// EmailSender delivers one composed email and returns the provider message id.
type EmailSender interface {
	SendEmail(ctx context.Context, email notifications.OutboundEmail) (string, error)
}
