package activities

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/models"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/notification"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/repository"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/temporal"
)

// Activities carry the dependencies for out-of-band notification delivery.
// The worker registers one instance; workflows reference the methods by
// proxy.
type Activities struct {
	Notifications repository.NotificationRepository
	Users         repository.UserRepository
	Notifiers     map[models.Channel]notification.ChannelNotifier
	Logger        zerolog.Logger
}

// SendChannelActivity performs one delivery attempt for the notification's
// channel. Already-sent channels are skipped so workflow retries stay
// idempotent.
func (a *Activities) SendChannelActivity(ctx context.Context, params temporal.DeliveryParams) error {
	notif, err := a.Notifications.Get(ctx, params.NotificationID)
	if err != nil {
		return errors.Wrap(err, "load notification")
	}

	state := notif.Channels[params.Channel]
	if state.Sent {
		return nil
	}
	if !state.Requested {
		return errors.Errorf("channel %s was not requested for notification %s", params.Channel, params.NotificationID)
	}

	notifier, ok := a.Notifiers[params.Channel]
	if !ok {
		return errors.Errorf("no notifier registered for channel %s", params.Channel)
	}

	recipient, err := a.Users.GetUserByID(ctx, notif.RecipientID)
	if err != nil {
		return errors.Wrap(err, "load recipient")
	}

	if err := notifier.Notify(ctx, notif, recipient); err != nil {
		return errors.Wrapf(err, "deliver via %s", params.Channel)
	}

	a.Logger.Info().
		Str("notification_id", notif.ID).
		Str("channel", string(params.Channel)).
		Msg("channel delivered")
	return nil
}

// RecordOutcomeActivity writes the attempt outcome onto the notification's
// channel status. An empty errMsg records success; anything else records a
// surfaced failure. The repository keeps sent=true monotonic.
func (a *Activities) RecordOutcomeActivity(ctx context.Context, params temporal.DeliveryParams, errMsg string) error {
	sent := errMsg == ""
	_, err := a.Notifications.SetChannelOutcome(ctx, params.NotificationID, params.Channel, sent, errMsg)
	return errors.Wrap(err, "record delivery outcome")
}
