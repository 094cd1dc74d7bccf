package billing

import (
	"strings"

	"github.com/cubbyhq/cubby/app/models"
	"github.com/cubbyhq/cubby/internal/pkg/env"
)

// Tier is a commercial plan name. Each tier maps to exactly one Stripe price
// id; the mapping is loaded from the environment at startup.
type Tier string

const (
	TierPersonal           Tier = "personal"
	TierProfessional       Tier = "professional"
	TierProfessionalAnnual Tier = "professional_annual"
)

// IsSubscription reports whether the tier is a recurring subscription.
// The personal tier is a one-time perpetual purchase.
func (t Tier) IsSubscription() bool {
	switch t {
	case TierProfessional, TierProfessionalAnnual:
		return true
	default:
		return false
	}
}

// ParseTier validates a client-supplied tier name.
func ParseTier(s string) (Tier, bool) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierPersonal:
		return TierPersonal, true
	case TierProfessional:
		return TierProfessional, true
	case TierProfessionalAnnual:
		return TierProfessionalAnnual, true
	default:
		return "", false
	}
}

// PriceTable maps tiers to the Stripe price ids configured for this
// deployment, and back.
type PriceTable struct {
	Personal           string
	Professional       string
	ProfessionalAnnual string
}

// LoadPriceTable reads the three price ids from the environment.
func LoadPriceTable() PriceTable {
	return PriceTable{
		Personal:           env.GetEnv("STRIPE_PRICE_PERSONAL", ""),
		Professional:       env.GetEnv("STRIPE_PRICE_PROFESSIONAL", ""),
		ProfessionalAnnual: env.GetEnv("STRIPE_PRICE_PROFESSIONAL_ANNUAL", ""),
	}
}

// PriceFor resolves a tier to its price id.
func (p PriceTable) PriceFor(tier Tier) (string, bool) {
	switch tier {
	case TierPersonal:
		return p.Personal, p.Personal != ""
	case TierProfessional:
		return p.Professional, p.Professional != ""
	case TierProfessionalAnnual:
		return p.ProfessionalAnnual, p.ProfessionalAnnual != ""
	default:
		return "", false
	}
}

// TierFor reverse-resolves a price id to its tier. Used by the reconciler to
// refresh the plan name when a subscription event carries a price id.
func (p PriceTable) TierFor(priceID string) (Tier, bool) {
	if priceID == "" {
		return "", false
	}
	switch priceID {
	case p.Personal:
		return TierPersonal, true
	case p.Professional:
		return TierProfessional, true
	case p.ProfessionalAnnual:
		return TierProfessionalAnnual, true
	default:
		return "", false
	}
}

// MapSubscriptionStatus folds a Stripe subscription status string into the
// local plan status. Unknown provider statuses fall back to renewing, which
// keeps the entitlement usable without claiming a healthy subscription.
func MapSubscriptionStatus(s string) models.PlanStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active", "trialing":
		return models.PlanStatusActive
	case "past_due", "unpaid", "incomplete", "paused":
		return models.PlanStatusRenewing
	case "canceled":
		return models.PlanStatusCancelled
	case "incomplete_expired":
		return models.PlanStatusExpired
	default:
		return models.PlanStatusRenewing
	}
}
