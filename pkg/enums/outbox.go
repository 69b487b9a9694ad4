package enums

// OutboxEventType enumerates the domain events emitted by state transitions.
type OutboxEventType string

const (
	EventSubscriptionCreated        OutboxEventType = "subscription.created"
	EventSubscriptionPaused         OutboxEventType = "subscription.paused"
	EventSubscriptionResumed        OutboxEventType = "subscription.resumed"
	EventSubscriptionCancelled      OutboxEventType = "subscription.cancelled"
	EventSubscriptionRescheduled    OutboxEventType = "subscription.rescheduled"
	EventSubscriptionBillingFailure OutboxEventType = "subscription.billing_failure"
	EventPickupScheduled            OutboxEventType = "pickup.scheduled"
	EventPickupReady                OutboxEventType = "pickup.ready"
	EventPickupCompleted            OutboxEventType = "pickup.completed"
	EventPickupCancelled            OutboxEventType = "pickup.cancelled"
	EventPickupNoShow               OutboxEventType = "pickup.no_show"
)

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateSubscription OutboxAggregateType = "subscription"
	AggregatePickup       OutboxAggregateType = "pickup"
)
