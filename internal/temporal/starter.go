package temporal

import (
	"context"
	"fmt"

	tc "go.temporal.io/sdk/client"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/models"
)

// DeliveryStarter queues notification channels for out-of-band delivery by
// starting one workflow per (notification, channel) pair. It satisfies the
// dispatcher's AsyncDeliverer interface.
type DeliveryStarter struct {
	client tc.Client
}

func NewDeliveryStarter(client tc.Client) *DeliveryStarter {
	return &DeliveryStarter{client: client}
}

func (s *DeliveryStarter) EnqueueDelivery(ctx context.Context, notificationID string, channel models.Channel) error {
	opts := tc.StartWorkflowOptions{
		ID:        fmt.Sprintf("%s%s-%s", DeliveryWorkflowIDPrefix, notificationID, channel),
		TaskQueue: TaskQueueName,
	}

	// Referenced by name to keep this package free of a workflows import.
	_, err := s.client.ExecuteWorkflow(ctx, opts, "DeliveryWorkflow", DeliveryParams{
		NotificationID: notificationID,
		Channel:        channel,
	})
	if err != nil {
		return fmt.Errorf("start delivery workflow: %w", err)
	}
	return nil
}
