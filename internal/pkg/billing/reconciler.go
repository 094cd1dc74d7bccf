package billing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/cubbyhq/cubby/app/models"
)

// staleEventGrace bounds how far behind the plan row a webhook event may lag
// before it is treated as out-of-order noise and dropped. The grace absorbs
// clock skew between Stripe and the database.
const staleEventGrace = time.Minute

// ProcessWebhook records the event in the dedupe ledger, applies it to the
// plan table and marks it processed. Events already processed successfully
// are acknowledged without reapplying.
func (s *Service) ProcessWebhook(event Event) error {
	created, stored, err := s.repo.CreateWebhookEventIfNotExists(&models.BillingWebhookEvent{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       event.Type,
		PayloadJSON:     string(event.Raw),
		SignatureValid:  true,
	})
	if err != nil {
		return err
	}
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		log.Debugf("billing: duplicate webhook event %s ignored", event.ID)
		return nil
	}

	userID, applyErr := s.apply(event)

	msg := ""
	if applyErr != nil {
		msg = applyErr.Error()
	}
	if err := s.repo.MarkWebhookProcessed(stored.ID, msg); err != nil {
		log.Errorf("billing: marking webhook %s processed: %v", event.ID, err)
	}
	if userID != 0 {
		s.cache.Invalidate(userID)
	}
	return applyErr
}

// apply routes one verified event to its handler. Unrecognized event types
// are acknowledged and dropped. Returns the id of the affected user, if any.
func (s *Service) apply(event Event) (uint, error) {
	switch event.Type {
	case "checkout.session.completed":
		return s.applyCheckoutCompleted(event)
	case "customer.subscription.created", "customer.subscription.updated":
		return s.applySubscriptionChanged(event)
	case "customer.subscription.deleted":
		return s.applySubscriptionDeleted(event)
	case "invoice.paid", "invoice.payment_succeeded":
		return s.applyInvoicePaid(event)
	case "invoice.payment_failed":
		return s.applyInvoiceFailed(event)
	default:
		log.Debugf("billing: ignoring webhook event type %s", event.Type)
		return 0, nil
	}
}

// stale reports whether the event predates the plan row's last applied
// change by more than the grace window.
func stale(plan *models.PurchasePlan, event Event) bool {
	if plan == nil || event.Created.IsZero() {
		return false
	}
	return event.Created.Add(staleEventGrace).Before(plan.LastUpdatedDate)
}

func (s *Service) applyCheckoutCompleted(event Event) (uint, error) {
	var payload checkoutSessionPayload
	if err := json.Unmarshal(event.Raw, &payload); err != nil {
		return 0, fmt.Errorf("decoding checkout session: %w", err)
	}

	if payload.Metadata.AccountID == "" {
		log.Warnf("billing: checkout session %s without account metadata, skipping", payload.ID)
		return 0, nil
	}
	userID64, err := strconv.ParseUint(payload.Metadata.AccountID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("checkout session %s: bad account id %q", payload.ID, payload.Metadata.AccountID)
	}
	userID := uint(userID64)

	tier, ok := ParseTier(payload.Metadata.Tier)
	if !ok {
		// Sessions can arrive without a usable tier in metadata; fall back
		// on the session mode.
		if payload.Mode == "payment" {
			tier = TierPersonal
		} else {
			tier = TierProfessional
		}
	}
	isSubscription := tier.IsSubscription()
	if payload.Mode != "" {
		isSubscription = payload.Mode == "subscription"
	}

	plan, err := s.repo.FindPlanByUser(userID)
	if err != nil {
		return 0, err
	}
	if stale(plan, event) {
		log.Infof("billing: dropping stale checkout event %s for user %d", event.ID, userID)
		return 0, nil
	}
	if plan == nil {
		// StartDate is written exactly once, here; later events never touch it.
		plan = &models.PurchasePlan{UserID: userID, StartDate: event.Created}
	}

	priceID, _ := s.prices.PriceFor(tier)

	plan.Status = models.PlanStatusActive
	plan.PlanName = string(tier)
	plan.PlanID = priceID
	plan.IsSubscription = isSubscription
	plan.LastUpdatedDate = event.Created
	plan.EndDate = nil
	plan.StripeCustomerID = payload.Customer
	plan.StripeSubscriptionID = payload.Subscription
	plan.StripeInvoiceID = invoiceRef(payload, event)

	if err := s.repo.UpsertPlan(plan); err != nil {
		return 0, err
	}
	return userID, nil
}

// invoiceRef picks the best available payment reference for a completed
// checkout. One-time payments carry no invoice, so the chain falls through
// to the payment intent, the session id and finally the event id.
func invoiceRef(payload checkoutSessionPayload, event Event) string {
	switch {
	case payload.Invoice != "":
		return payload.Invoice
	case payload.PaymentIntent != "":
		return payload.PaymentIntent
	case payload.ID != "":
		return payload.ID
	default:
		return "evt:" + event.ID
	}
}

func (s *Service) applySubscriptionChanged(event Event) (uint, error) {
	var payload subscriptionPayload
	if err := json.Unmarshal(event.Raw, &payload); err != nil {
		return 0, fmt.Errorf("decoding subscription: %w", err)
	}

	plan, err := s.findPlanForSubscription(payload)
	if err != nil {
		return 0, err
	}
	if plan == nil {
		log.Warnf("billing: no plan row for subscription %s, skipping event %s", payload.ID, event.ID)
		return 0, nil
	}
	if stale(plan, event) {
		log.Infof("billing: dropping stale subscription event %s for user %d", event.ID, plan.UserID)
		return 0, nil
	}

	status := MapSubscriptionStatus(payload.Status)

	plan.Status = status
	plan.IsSubscription = true
	plan.LastUpdatedDate = event.Created
	plan.StripeSubscriptionID = payload.ID
	if payload.Customer != "" {
		plan.StripeCustomerID = payload.Customer
	}
	if len(payload.Items.Data) > 0 {
		if tier, ok := s.prices.TierFor(payload.Items.Data[0].Price.ID); ok {
			plan.PlanName = string(tier)
			plan.PlanID = payload.Items.Data[0].Price.ID
		}
	}
	if status == models.PlanStatusExpired {
		plan.EndDate = subscriptionEnd(payload)
	} else {
		plan.EndDate = nil
	}

	if err := s.repo.UpsertPlan(plan); err != nil {
		return 0, err
	}
	return plan.UserID, nil
}

func (s *Service) applySubscriptionDeleted(event Event) (uint, error) {
	var payload subscriptionPayload
	if err := json.Unmarshal(event.Raw, &payload); err != nil {
		return 0, fmt.Errorf("decoding subscription: %w", err)
	}

	// Deletions resolve strictly by provider references. The account id in
	// the metadata is not trusted here: a deleted subscription that no row
	// points at anymore must not expire whatever plan the user holds now.
	plan, err := s.repo.FindPlanByProviderIDs(payload.ID, payload.Customer)
	if err != nil {
		return 0, err
	}
	if plan == nil {
		log.Warnf("billing: no plan row for deleted subscription %s, skipping event %s", payload.ID, event.ID)
		return 0, nil
	}
	if stale(plan, event) {
		log.Infof("billing: dropping stale subscription event %s for user %d", event.ID, plan.UserID)
		return 0, nil
	}

	plan.Status = models.PlanStatusExpired
	plan.LastUpdatedDate = event.Created
	plan.EndDate = subscriptionEnd(payload)

	if err := s.repo.UpsertPlan(plan); err != nil {
		return 0, err
	}
	return plan.UserID, nil
}

// findPlanForSubscription resolves the plan row for a created/updated
// subscription event. The account id stamped into the subscription metadata
// at checkout time wins over provider references: a fresh subscription may
// carry ids the row has not learned yet.
func (s *Service) findPlanForSubscription(payload subscriptionPayload) (*models.PurchasePlan, error) {
	if payload.Metadata.AccountID != "" {
		userID, err := strconv.ParseUint(payload.Metadata.AccountID, 10, 64)
		if err == nil {
			plan, err := s.repo.FindPlanByUser(uint(userID))
			if err != nil || plan != nil {
				return plan, err
			}
		}
	}
	return s.repo.FindPlanByProviderIDs(payload.ID, payload.Customer)
}

// subscriptionEnd resolves when a subscription stops granting access:
// ended_at when the provider reports one, else the current period end, else
// unknown.
func subscriptionEnd(payload subscriptionPayload) *time.Time {
	var end time.Time
	switch {
	case payload.EndedAt > 0:
		end = time.Unix(payload.EndedAt, 0).UTC()
	case payload.CurrentPeriodEnd > 0:
		end = time.Unix(payload.CurrentPeriodEnd, 0).UTC()
	default:
		return nil
	}
	return &end
}

func (s *Service) applyInvoicePaid(event Event) (uint, error) {
	var payload invoicePayload
	if err := json.Unmarshal(event.Raw, &payload); err != nil {
		return 0, fmt.Errorf("decoding invoice: %w", err)
	}

	plan, err := s.repo.FindPlanByProviderIDs(payload.Subscription, payload.Customer)
	if err != nil {
		return 0, err
	}
	if plan == nil {
		log.Warnf("billing: no plan row for paid invoice %s, skipping event %s", payload.ID, event.ID)
		return 0, nil
	}
	if stale(plan, event) {
		log.Infof("billing: dropping stale invoice event %s for user %d", event.ID, plan.UserID)
		return 0, nil
	}

	plan.Status = models.PlanStatusActive
	plan.LastUpdatedDate = event.Created
	plan.EndDate = nil
	plan.StripeInvoiceID = invoiceID(payload, event)

	if err := s.repo.UpsertPlan(plan); err != nil {
		return 0, err
	}
	return plan.UserID, nil
}

// invoiceID never returns an empty reference; an invoice event without its
// own id falls back to a token derived from the event id.
func invoiceID(payload invoicePayload, event Event) string {
	if payload.ID != "" {
		return payload.ID
	}
	return "evt:" + event.ID
}

func (s *Service) applyInvoiceFailed(event Event) (uint, error) {
	var payload invoicePayload
	if err := json.Unmarshal(event.Raw, &payload); err != nil {
		return 0, fmt.Errorf("decoding invoice: %w", err)
	}

	plan, err := s.repo.FindPlanByProviderIDs(payload.Subscription, payload.Customer)
	if err != nil {
		return 0, err
	}
	if plan == nil {
		log.Warnf("billing: no plan row for failed invoice %s, skipping event %s", payload.ID, event.ID)
		return 0, nil
	}
	if stale(plan, event) {
		log.Infof("billing: dropping stale invoice event %s for user %d", event.ID, plan.UserID)
		return 0, nil
	}

	// A failed renewal keeps the entitlement usable while Stripe retries.
	plan.Status = models.PlanStatusRenewing
	plan.LastUpdatedDate = event.Created
	plan.StripeInvoiceID = invoiceID(payload, event)

	if err := s.repo.UpsertPlan(plan); err != nil {
		return 0, err
	}
	return plan.UserID, nil
}
