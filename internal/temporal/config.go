package temporal

import (
	"time"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/models"
)

// TaskQueueName is the Temporal task queue carrying notification delivery
// workflows.
const TaskQueueName = "CIVIC_NOTIFICATION_DELIVERY"

// DeliveryWorkflowIDPrefix prefixes delivery workflow IDs; combined with
// the notification ID and channel it makes re-enqueueing the same channel
// idempotent.
const DeliveryWorkflowIDPrefix = "civic-delivery-"

// DefaultActivityTimeout bounds a single delivery attempt.
const DefaultActivityTimeout = time.Minute

// DeliveryParams identifies one notification channel to deliver
// out-of-band.
type DeliveryParams struct {
	NotificationID string
	Channel        models.Channel
}
