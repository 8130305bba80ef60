package workflows

import (
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/temporal"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/temporal/activities"
)

// DeliveryWorkflow attempts one out-of-band channel delivery and records
// the outcome either way. Retries are bounded: the initial attempt plus one
// immediate retry, after which the failure is written to the notification's
// channel status rather than retried indefinitely.
func DeliveryWorkflow(ctx workflow.Context, params temporal.DeliveryParams) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: temporal.DefaultActivityTimeout,
		RetryPolicy: &sdktemporal.RetryPolicy{
			MaximumAttempts: 2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("Starting delivery workflow", "NotificationID", params.NotificationID, "Channel", params.Channel)

	// The actual implementation is on the worker; this is just a proxy.
	var a *activities.Activities

	sendErr := workflow.ExecuteActivity(ctx, a.SendChannelActivity, params).Get(ctx, nil)

	errMsg := ""
	if sendErr != nil {
		errMsg = sendErr.Error()
		logger.Error("Channel delivery failed.", "error", sendErr)
	}

	// Record the outcome even when the workflow is being cancelled, so a
	// failed attempt is surfaced on the record and never dropped silently.
	recordCtx, _ := workflow.NewDisconnectedContext(ctx)
	recordCtx = workflow.WithActivityOptions(recordCtx, ao)
	if err := workflow.ExecuteActivity(recordCtx, a.RecordOutcomeActivity, params, errMsg).Get(recordCtx, nil); err != nil {
		logger.Error("Failed to record delivery outcome.", "error", err)
		return err
	}

	return sendErr
}
