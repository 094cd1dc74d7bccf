package controllers

import (
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cubbyhq/cubby/internal/pkg/billing"
	"github.com/cubbyhq/cubby/internal/pkg/database"
	"github.com/cubbyhq/cubby/internal/pkg/env"
)

var (
	billingSvc     *billing.Service
	billingSvcOnce sync.Once
)

// billingService returns the shared billing service, constructed lazily so
// controllers pick up the database handle initialized at startup.
func billingService() *billing.Service {
	billingSvcOnce.Do(func() {
		api := billing.NewStripeAPI(env.GetEnv("STRIPE_SECRET_KEY", ""))
		billingSvc = billing.NewServiceFromDB(database.GetDB(), api, billing.NewEntitlementCache())
	})
	return billingSvc
}

// SetBillingService swaps the shared billing service; used by tests.
func SetBillingService(svc *billing.Service) {
	billingSvcOnce.Do(func() {})
	billingSvc = svc
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// GetClientIP determines the actual client IP address considering proxies.
func GetClientIP(c *fiber.Ctx) string {
	if cfIP := strings.TrimSpace(c.Get("CF-Connecting-IP")); cfIP != "" {
		return cfIP
	}
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	return c.IP()
}
