package billing

import (
	"time"

	"gorm.io/gorm"

	"github.com/cubbyhq/cubby/app/models"
	"github.com/cubbyhq/cubby/internal/pkg/env"
)

// Config carries the redirect targets handed to Stripe-hosted pages.
type Config struct {
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string
}

// LoadConfig reads the checkout redirect configuration from the environment.
func LoadConfig() Config {
	base := env.GetEnv("PUBLIC_URL", "http://localhost:8080")
	return Config{
		SuccessURL:      env.GetEnv("STRIPE_SUCCESS_URL", base+"/billing/success"),
		CancelURL:       env.GetEnv("STRIPE_CANCEL_URL", base+"/billing/cancel"),
		PortalReturnURL: env.GetEnv("STRIPE_PORTAL_RETURN_URL", base),
	}
}

// Service owns the billing entitlement state machine: it starts checkouts,
// reconciles provider webhooks into the plan table and answers entitlement
// queries.
type Service struct {
	repo   Repository
	api    ProviderAPI
	cache  EntitlementCache
	prices PriceTable
	cfg    Config

	// now is swapped out in tests.
	now func() time.Time
}

// NewService creates a billing service from injected collaborators.
func NewService(repo Repository, api ProviderAPI, cache EntitlementCache, prices PriceTable, cfg Config) *Service {
	return &Service{
		repo:   repo,
		api:    api,
		cache:  cache,
		prices: prices,
		cfg:    cfg,
		now:    time.Now,
	}
}

// NewServiceFromDB creates a billing service from a GORM DB handle with
// prices and redirect URLs loaded from the environment.
func NewServiceFromDB(db *gorm.DB, api ProviderAPI, cache EntitlementCache) *Service {
	return NewService(NewRepository(db), api, cache, LoadPriceTable(), LoadConfig())
}

// Entitlement answers "what may this user do right now". Lookups are served
// from the cache when possible; a plan whose end date has passed is lazily
// flipped to expired on read so a missed webhook cannot leave a stale grant.
func (s *Service) Entitlement(userID uint) (Entitlement, error) {
	if ent, ok := s.cache.Get(userID); ok {
		return *ent, nil
	}

	plan, err := s.repo.FindPlanByUser(userID)
	if err != nil {
		return Entitlement{}, err
	}

	if plan != nil && plan.IsUsable() && plan.EndDate != nil && s.now().After(*plan.EndDate) {
		plan.Status = models.PlanStatusExpired
		plan.LastUpdatedDate = s.now()
		if err := s.repo.UpsertPlan(plan); err != nil {
			return Entitlement{}, err
		}
	}

	ent := EntitlementFromPlan(plan)
	s.cache.Set(userID, ent)
	return ent, nil
}

// PortalURL creates a Stripe billing portal session for the user.
func (s *Service) PortalURL(userID uint) (string, error) {
	plan, err := s.repo.FindPlanByUser(userID)
	if err != nil {
		return "", err
	}
	if plan == nil || plan.StripeCustomerID == "" {
		return "", ErrNoBillingAccount
	}
	return s.api.NewBillingPortalSession(plan.StripeCustomerID, s.cfg.PortalReturnURL)
}
