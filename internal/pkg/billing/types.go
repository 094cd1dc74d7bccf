package billing

import (
	"encoding/json"
	"time"
)

// Event is the provider-neutral shape the reconciler consumes. The webhook
// controller builds one from a signature-verified stripe.Event; tests build
// them directly.
type Event struct {
	ID      string
	Type    string
	Created time.Time
	Raw     json.RawMessage
}

// eventMetadata is the correlation payload the checkout initiator embeds in
// every session. A completed-checkout event without an account id is not
// ours and is ignored.
type eventMetadata struct {
	Tier      string `json:"tier"`
	AccountID string `json:"account_id"`
}

// checkoutSessionPayload is the subset of a Stripe checkout session the
// reconciler reads. Provider references arrive as plain id strings in
// webhook payloads.
type checkoutSessionPayload struct {
	ID            string        `json:"id"`
	Mode          string        `json:"mode"`
	Customer      string        `json:"customer"`
	Subscription  string        `json:"subscription"`
	Invoice       string        `json:"invoice"`
	PaymentIntent string        `json:"payment_intent"`
	Metadata      eventMetadata `json:"metadata"`
}

type subscriptionItemsPayload struct {
	Data []struct {
		Price struct {
			ID string `json:"id"`
		} `json:"price"`
	} `json:"data"`
}

// subscriptionPayload is the subset of a Stripe subscription the reconciler
// reads from customer.subscription.* events.
type subscriptionPayload struct {
	ID               string                   `json:"id"`
	Status           string                   `json:"status"`
	Customer         string                   `json:"customer"`
	CurrentPeriodEnd int64                    `json:"current_period_end"`
	EndedAt          int64                    `json:"ended_at"`
	Metadata         eventMetadata            `json:"metadata"`
	Items            subscriptionItemsPayload `json:"items"`
}

// invoicePayload is the subset of a Stripe invoice the reconciler reads from
// invoice.paid and invoice.payment_failed events.
type invoicePayload struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}
