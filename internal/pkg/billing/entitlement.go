package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/cubbyhq/cubby/app/models"
	"github.com/cubbyhq/cubby/internal/pkg/cache"
)

// entitlementTTL keeps the cached view short-lived so webhook-driven changes
// surface within seconds even if invalidation is missed.
const entitlementTTL = 30 * time.Second

// Entitlement is the client-facing view of a user's plan. It is what the
// desktop app polls to decide which features to unlock.
type Entitlement struct {
	Tier            string            `json:"tier"`
	Status          models.PlanStatus `json:"status"`
	IsSubscription  bool              `json:"is_subscription"`
	Usable          bool              `json:"usable"`
	StartDate       *time.Time        `json:"start_date,omitempty"`
	LastUpdatedDate *time.Time        `json:"last_updated_date,omitempty"`
	EndDate         *time.Time        `json:"end_date,omitempty"`
}

// TierFree is the entitlement tier for users with no usable plan row.
const TierFree = "free"

// EntitlementFromPlan derives the client view from a plan row. A nil row and
// a non-usable row both collapse to the free tier.
func EntitlementFromPlan(plan *models.PurchasePlan) Entitlement {
	if plan == nil {
		return Entitlement{Tier: TierFree}
	}

	e := Entitlement{
		Tier:           plan.PlanName,
		Status:         plan.Status,
		IsSubscription: plan.IsSubscription,
		Usable:         plan.IsUsable(),
	}
	if !plan.StartDate.IsZero() {
		start := plan.StartDate
		e.StartDate = &start
	}
	if !plan.LastUpdatedDate.IsZero() {
		updated := plan.LastUpdatedDate
		e.LastUpdatedDate = &updated
	}
	e.EndDate = plan.EndDate
	if !e.Usable {
		e.Tier = TierFree
	}
	return e
}

// EntitlementCache is a read-through cache for entitlement lookups.
type EntitlementCache interface {
	Get(userID uint) (*Entitlement, bool)
	Set(userID uint, ent Entitlement)
	Invalidate(userID uint)
}

type redisEntitlementCache struct{}

// NewEntitlementCache returns a cache backed by the shared Redis client.
func NewEntitlementCache() EntitlementCache {
	return &redisEntitlementCache{}
}

func entitlementCacheKey(userID uint) string {
	return fmt.Sprintf("billing:entitlement:%d", userID)
}

func (c *redisEntitlementCache) Get(userID uint) (*Entitlement, bool) {
	raw, err := cache.Get(entitlementCacheKey(userID))
	if err != nil {
		return nil, false
	}
	var ent Entitlement
	if err := json.Unmarshal([]byte(raw), &ent); err != nil {
		return nil, false
	}
	return &ent, true
}

func (c *redisEntitlementCache) Set(userID uint, ent Entitlement) {
	raw, err := json.Marshal(ent)
	if err != nil {
		return
	}
	if err := cache.Set(entitlementCacheKey(userID), string(raw), entitlementTTL); err != nil {
		log.Warnf("entitlement cache set failed for user %d: %v", userID, err)
	}
}

func (c *redisEntitlementCache) Invalidate(userID uint) {
	if err := cache.Delete(entitlementCacheKey(userID)); err != nil {
		log.Warnf("entitlement cache invalidate failed for user %d: %v", userID, err)
	}
}

// noopEntitlementCache is used when no cache backend is configured (tests,
// single-shot CLI runs).
type noopEntitlementCache struct{}

// NewNoopEntitlementCache returns a cache that never hits.
func NewNoopEntitlementCache() EntitlementCache {
	return noopEntitlementCache{}
}

func (noopEntitlementCache) Get(uint) (*Entitlement, bool) { return nil, false }
func (noopEntitlementCache) Set(uint, Entitlement)         {}
func (noopEntitlementCache) Invalidate(uint)               {}
