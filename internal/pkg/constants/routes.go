package constants

// Static route constants
const (
	HealthRoute  = "/healthz"
	MetricsRoute = "/metrics"
	MonitorRoute = "/monitor"

	WebhooksRoute         = "/webhooks"
	CheckoutWebhookRoute  = "/webhooks/ggcheckout"
	ProviderWebhookRoute  = "/webhooks/:provider"
	AdminWebhookEventsAPI = "/webhook-events"
)
