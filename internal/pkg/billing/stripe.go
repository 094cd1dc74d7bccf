package billing

import (
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// CheckoutParams carries everything the provider needs to open a hosted
// checkout page for one user and one tier.
type CheckoutParams struct {
	UserID     uint
	Email      string
	Tier       Tier
	PriceID    string
	CustomerID string
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the provider's answer: where to send the user and which
// session to correlate the completion webhook with.
type CheckoutSession struct {
	ID  string
	URL string
}

// ProviderAPI abstracts the Stripe calls the billing service makes, so the
// service can be tested without network access.
type ProviderAPI interface {
	NewCheckoutSession(params CheckoutParams) (*CheckoutSession, error)
	NewBillingPortalSession(customerID, returnURL string) (string, error)
}

type stripeAPI struct {
	sc *client.API
}

// NewStripeAPI builds a ProviderAPI against the real Stripe client using the
// given secret key.
func NewStripeAPI(secretKey string) ProviderAPI {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &stripeAPI{sc: sc}
}

func (a *stripeAPI) NewCheckoutSession(p CheckoutParams) (*CheckoutSession, error) {
	metadata := map[string]string{
		"tier":       string(p.Tier),
		"account_id": strconv.FormatUint(uint64(p.UserID), 10),
	}

	params := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Metadata: metadata},
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		ClientReferenceID: stripe.String(strconv.FormatUint(uint64(p.UserID), 10)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
	}

	if p.Tier.IsSubscription() {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		// Subscription events do not inherit session metadata, so the same
		// correlation keys are stamped onto the subscription itself.
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		}
	} else {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
	}

	// Reuse the known customer so the portal and future checkouts share one
	// Stripe customer record.
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	} else if p.Email != "" {
		params.CustomerEmail = stripe.String(p.Email)
	}

	sess, err := a.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (a *stripeAPI) NewBillingPortalSession(customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer: stripe.String(customerID),
	}
	if returnURL != "" {
		params.ReturnURL = stripe.String(returnURL)
	}
	sess, err := a.sc.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe billing portal session: %w", err)
	}
	return sess.URL, nil
}
