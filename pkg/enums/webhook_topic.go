package enums

import "fmt"

// WebhookTopic identifies the inbound commerce-platform event stream.
type WebhookTopic string

const (
	WebhookTopicOrderCreated         WebhookTopic = "orders/create"
	WebhookTopicContractCreated      WebhookTopic = "subscription_contracts/create"
	WebhookTopicBillingAttemptFailed WebhookTopic = "subscription_billing_attempts/failure"
)

var validWebhookTopics = []WebhookTopic{
	WebhookTopicOrderCreated,
	WebhookTopicContractCreated,
	WebhookTopicBillingAttemptFailed,
}

// String implements fmt.Stringer.
func (t WebhookTopic) String() string {
	return string(t)
}

// IsValid reports whether the value is known.
func (t WebhookTopic) IsValid() bool {
	for _, candidate := range validWebhookTopics {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseWebhookTopic converts raw input into a WebhookTopic.
func ParseWebhookTopic(value string) (WebhookTopic, error) {
	for _, candidate := range validWebhookTopics {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid webhook topic %q", value)
}
