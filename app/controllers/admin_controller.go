package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cubbyhq/cubby/app/models"
	"github.com/cubbyhq/cubby/app/repository"
	"github.com/cubbyhq/cubby/internal/pkg/database"
)

// HandleAdminStats returns operational counters for the admin dashboard.
func HandleAdminStats(c *fiber.Ctx) error {
	userCount, err := repository.GetGlobalFactory().GetUserRepository().Count()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load stats")
	}

	db := database.GetDB()
	var planCount, eventCount int64
	db.Model(&models.PurchasePlan{}).Where("status NOT IN ?", []models.PlanStatus{
		models.PlanStatusPendingCheckout,
		models.PlanStatusCancelled,
		models.PlanStatusExpired,
	}).Count(&planCount)
	db.Model(&models.BillingWebhookEvent{}).Where("processed_at IS NULL").Count(&eventCount)

	return c.JSON(fiber.Map{
		"users":                  userCount,
		"usable_plans":           planCount,
		"unprocessed_web_events": eventCount,
	})
}
