package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/cubbyhq/cubby/app/controllers"
	"github.com/cubbyhq/cubby/internal/pkg/constants"
	"github.com/cubbyhq/cubby/internal/pkg/env"
	"github.com/cubbyhq/cubby/internal/pkg/middleware"
)

type ApiRouter struct {
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	app.Use(middleware.JWTAuthMiddleware())

	api := app.Group(constants.APIPrefix, limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Storage:    newLimiterStorage(),
		// Stripe retries on 429, do not throttle its deliveries.
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == constants.APIPrefix+constants.BillingWebhookRoute
		},
	}))

	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"name":    "cubby-api",
			"version": "v1",
		})
	})
	api.Get("/ping", func(ctx *fiber.Ctx) error {
		return ctx.SendString("pong")
	})

	api.Post(constants.AuthRegisterRoute, controllers.HandleAuthRegister)
	api.Post(constants.AuthLoginRoute, controllers.HandleAuthLogin)
	api.Get(constants.AuthActivateRoute, controllers.HandleAuthActivate)
	api.Post(constants.AuthPasswordResetRoute, controllers.HandlePasswordResetRequest)
	api.Post(constants.AuthPasswordConfirmRoute, controllers.HandlePasswordResetConfirm)
	api.Get(constants.AuthMeRoute, middleware.RequireAuth, controllers.HandleGetMe)

	api.Post(constants.BillingWebhookRoute, controllers.HandleStripeWebhook)
	api.Post(constants.BillingCheckoutRoute, middleware.RequireAuth, controllers.HandleCreateCheckoutSession)
	api.Get(constants.BillingPortalRoute, middleware.RequireAuth, controllers.HandleBillingPortal)
	api.Get(constants.BillingRoute, middleware.RequireAuth, controllers.HandleGetBilling)

	api.Get("/admin/stats", middleware.RequireAdmin, controllers.HandleAdminStats)

	accounts := api.Group(constants.StorageAccountsRoute, middleware.RequireAuth)
	accounts.Get("/", controllers.HandleListStorageAccounts)
	accounts.Post("/", controllers.HandleCreateStorageAccount)
	accounts.Get("/:id", controllers.HandleGetStorageAccount)
	accounts.Put("/:id", controllers.HandleUpdateStorageAccount)
	accounts.Delete("/:id", controllers.HandleDeleteStorageAccount)
	accounts.Post("/:id/verify", controllers.HandleVerifyStorageAccount)
	accounts.Post("/:id/select", controllers.HandleSelectStorageAccount)
}

// newLimiterStorage backs the rate limiter with Redis so counters survive
// restarts and are shared between instances.
func newLimiterStorage() fiber.Storage {
	port, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	if err != nil {
		port = 6379
	}
	return redis.New(redis.Config{
		Host:     env.GetEnv("CACHE_HOST", "localhost"),
		Port:     port,
		Database: 1,
	})
}
