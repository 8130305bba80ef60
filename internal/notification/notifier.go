package notification

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/models"
)

// ChannelNotifier sends one notification to one recipient over a single
// delivery surface.
type ChannelNotifier interface {
	Channel() models.Channel
	Notify(ctx context.Context, notif models.Notification, recipient models.User) error
}

func logNotifyError(logger zerolog.Logger, err error, channel models.Channel, notif models.Notification) {
	if err == nil {
		return
	}
	logger.Warn().
		Err(err).
		Str("notification_id", notif.ID).
		Str("type", string(notif.Type)).
		Str("channel", string(channel)).
		Msg("failed to deliver notification")
}
