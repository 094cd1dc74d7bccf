package billing

import (
	"fmt"

	"github.com/cubbyhq/cubby/app/models"
)

// StartCheckout validates the purchase, opens a Stripe-hosted checkout page
// and records a provisional plan row so the completion webhook has something
// to reconcile against.
//
// Purchase rules: subscription rows are managed through the billing portal,
// never re-bought here; an active one-time plan may not be re-bought but may
// be upgraded to a subscription tier, staying usable until the upgrade
// confirms.
func (s *Service) StartCheckout(userID uint, tierName string) (*CheckoutSession, error) {
	tier, ok := ParseTier(tierName)
	if !ok {
		return nil, ErrUnknownTier
	}

	user, err := s.repo.FindUserByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	plan, err := s.repo.FindPlanByUser(userID)
	if err != nil {
		return nil, err
	}

	upgrading := false
	if plan != nil {
		if plan.IsSubscription {
			// Subscription rows are managed through the billing portal; a
			// fresh checkout is only allowed for a one-time tier once the
			// subscription no longer grants anything.
			if tier.IsSubscription() || plan.IsUsable() {
				return nil, ErrActiveSubscriptionExists
			}
		} else if plan.Status == models.PlanStatusActive {
			if !tier.IsSubscription() {
				return nil, ErrActivePlanExists
			}
			upgrading = true
		}
	}

	priceID, ok := s.prices.PriceFor(tier)
	if !ok {
		return nil, fmt.Errorf("no price configured for tier %s", tier)
	}

	customerID := ""
	if plan != nil {
		customerID = plan.StripeCustomerID
	}

	session, err := s.api.NewCheckoutSession(CheckoutParams{
		UserID:     userID,
		Email:      user.Email,
		Tier:       tier,
		PriceID:    priceID,
		CustomerID: customerID,
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	if upgrading {
		// Keep the paid one-time entitlement usable until the webhook
		// confirms the subscription took over.
		plan.Status = models.PlanStatusUpgrading
		plan.LastUpdatedDate = now
	} else {
		plan = &models.PurchasePlan{
			UserID:          userID,
			Status:          models.PlanStatusPendingCheckout,
			PlanName:        string(tier),
			PlanID:          priceID,
			IsSubscription:  tier.IsSubscription(),
			StartDate:       now,
			LastUpdatedDate: now,
		}
		if customerID != "" {
			plan.StripeCustomerID = customerID
		}
	}
	if err := s.repo.UpsertPlan(plan); err != nil {
		return nil, err
	}
	s.cache.Invalidate(userID)

	return session, nil
}
