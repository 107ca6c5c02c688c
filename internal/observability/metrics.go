package observability

const (
	MUsecaseRequests         MetricKey = "usecase_requests_total"
	MUsecaseDuration         MetricKey = "usecase_duration_seconds"
	MHTTPRequests            MetricKey = "http_requests_total"
	MHTTPRequestDuration     MetricKey = "http_request_duration_seconds"
	MExternalRequests        MetricKey = "external_requests_total"
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"

	MExchangePublishFailed MetricKey = "exchange_publish_failed_total"
	MExchangeDropped       MetricKey = "exchange_dropped_total"
	MWebhookMalformed      MetricKey = "webhook_malformed_total"
	MSignalDropped         MetricKey = "signal_dropped_total"
	MAmountMismatch        MetricKey = "payment_amount_mismatch_total"
)
