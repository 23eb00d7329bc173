package cashier

import "time"

// Metrics defines the interface for tracking billing operations.
// All methods are optional - the cashier gracefully handles nil metrics.
type Metrics interface {
	// RecordWebhookEvent records a webhook event received from the provider.
	// status: "success", "ignored" or "error"
	RecordWebhookEvent(eventType, status string)

	// RecordWebhookProcessingDuration records how long a webhook took to process.
	RecordWebhookProcessingDuration(eventType string, duration time.Duration)

	// RecordGatewayCall records an outbound call to the payment provider.
	// status: "success" or "error"
	RecordGatewayCall(operation, status string)

	// RecordGatewayCallDuration records how long a gateway call took.
	RecordGatewayCallDuration(operation string, duration time.Duration)

	// RecordStatusChange records a local subscription status transition.
	RecordStatusChange(from, to string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _ string)                            {}
func (n *NoopMetrics) RecordWebhookProcessingDuration(_ string, _ time.Duration) {}
func (n *NoopMetrics) RecordGatewayCall(_, _ string)                             {}
func (n *NoopMetrics) RecordGatewayCallDuration(_ string, _ time.Duration)       {}
func (n *NoopMetrics) RecordStatusChange(_, _ string)                            {}
