package payment

import (
	"strings"

	"github.com/google/uuid"
)

// Outcome is the opaque result a payment provider reports for an order.
type Outcome string

const (
	OutcomeConfirmed Outcome = "CONFIRMED"
	OutcomeFailed    Outcome = "FAILED"
	OutcomeRefunded  Outcome = "REFUNDED"
)

// Signal is an inbound payment notification, already authenticated by
// whatever relays it. Either OrderID or OrderNumber identifies the order.
type Signal struct {
	OrderID     uuid.UUID `json:"order_id,omitempty"`
	OrderNumber string    `json:"order_number,omitempty"`
	Outcome     string    `json:"outcome"`
	Provider    string    `json:"provider,omitempty"`
	ProviderRef string    `json:"provider_ref,omitempty"`
}

// providerStatuses maps the status strings gateways commonly send onto outcomes.
var providerStatuses = map[string]Outcome{
	"CONFIRMED":  OutcomeConfirmed,
	"SUCCESS":    OutcomeConfirmed,
	"SUCCESSFUL": OutcomeConfirmed,
	"COMPLETED":  OutcomeConfirmed,
	"PAID":       OutcomeConfirmed,
	"FAILED":     OutcomeFailed,
	"REJECTED":   OutcomeFailed,
	"DECLINED":   OutcomeFailed,
	"EXPIRED":    OutcomeFailed,
	"REFUNDED":   OutcomeRefunded,
	"REVERSED":   OutcomeRefunded,
}

// ParseOutcome normalizes a provider status string.
func ParseOutcome(s string) (Outcome, bool) {
	o, ok := providerStatuses[strings.ToUpper(strings.TrimSpace(s))]
	return o, ok
}
