package ingestion

// CustomerInfo identifies the subscriber in an inbound event.
type CustomerInfo struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name"`
}

// OrderCreatedEvent is the recurring-line-item order webhook payload.
type OrderCreatedEvent struct {
	OrderID              string       `json:"orderId" validate:"required"`
	Customer             CustomerInfo `json:"customer" validate:"required"`
	BillingIntervalCount int          `json:"billingIntervalCount" validate:"omitempty,min=0"`
	PreferredDay         *int         `json:"preferredDay" validate:"omitempty,min=0,max=6"`
	PreferredTimeSlot    string       `json:"preferredTimeSlot"`
	ProductLabel         string       `json:"productLabel"`
}

// ContractCreatedEvent is the authoritative contract webhook payload. It can
// arrive seconds after the order event that describes the same commitment.
type ContractCreatedEvent struct {
	ContractID           string       `json:"contractId" validate:"required"`
	Customer             CustomerInfo `json:"customer" validate:"required"`
	BillingIntervalCount int          `json:"billingIntervalCount" validate:"omitempty,min=0"`
	PreferredDay         *int         `json:"preferredDay" validate:"omitempty,min=0,max=6"`
	PreferredTimeSlot    string       `json:"preferredTimeSlot"`
	ProductLabel         string       `json:"productLabel"`
}

// BillingAttemptFailedEvent reports one failed charge for a contract.
type BillingAttemptFailedEvent struct {
	AttemptID  string `json:"attemptId" validate:"required"`
	ContractID string `json:"contractId" validate:"required"`
}

// Result reports how an inbound event was settled.
type Result struct {
	SubscriptionID   string `json:"subscriptionId,omitempty"`
	AlreadyProcessed bool   `json:"alreadyProcessed"`
	MatchedExisting  bool   `json:"matchedExisting,omitempty"`
}
