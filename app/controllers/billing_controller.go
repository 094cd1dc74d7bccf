package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/cubbyhq/cubby/internal/pkg/billing"
	"github.com/cubbyhq/cubby/internal/pkg/env"
	"github.com/cubbyhq/cubby/internal/pkg/usercontext"
)

type checkoutRequest struct {
	Tier string `json:"tier"`
	// AccountID must name the authenticated user's own account; the desktop
	// client sends it so a stale login cannot buy on the wrong account.
	AccountID uint `json:"account_id"`
}

// HandleCreateCheckoutSession opens a Stripe-hosted checkout for the
// authenticated user and returns the redirect URL. Preconditions are checked
// in a fixed order: tier, then account ownership, then conflict rules.
func HandleCreateCheckoutSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if _, ok := billing.ParseTier(req.Tier); !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Unknown plan tier")
	}
	if req.AccountID == 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "account_id is required")
	}
	if req.AccountID != userCtx.UserID {
		return jsonError(c, fiber.StatusForbidden, "forbidden", billing.ErrForbiddenAccount.Error())
	}

	session, err := billingService().StartCheckout(userCtx.UserID, req.Tier)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrUnknownTier):
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "Unknown plan tier")
		case errors.Is(err, billing.ErrUserNotFound):
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		case errors.Is(err, billing.ErrActivePlanExists):
			return jsonError(c, fiber.StatusBadRequest, "conflict", "An active plan already exists")
		case errors.Is(err, billing.ErrActiveSubscriptionExists):
			return jsonError(c, fiber.StatusBadRequest, "conflict", "An active subscription already exists; manage it via the billing portal")
		default:
			log.Errorf("checkout session for user %d failed: %v", userCtx.UserID, err)
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to start checkout")
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session_id":   session.ID,
		"checkout_url": session.URL,
	})
}

// HandleBillingPortal returns a Stripe billing portal URL for subscription
// self-service.
func HandleBillingPortal(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	url, err := billingService().PortalURL(userCtx.UserID)
	if err != nil {
		if errors.Is(err, billing.ErrNoBillingAccount) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "No billing account on record")
		}
		log.Errorf("billing portal for user %d failed: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to open billing portal")
	}

	return c.JSON(fiber.Map{"portal_url": url})
}

// HandleGetBilling returns the authenticated user's entitlement.
func HandleGetBilling(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	ent, err := billingService().Entitlement(userCtx.UserID)
	if err != nil {
		log.Errorf("entitlement lookup for user %d failed: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load billing state")
	}
	if !ent.Usable {
		return c.SendStatus(fiber.StatusNoContent)
	}

	return c.JSON(ent)
}

// HandleStripeWebhook verifies the event signature and hands it to the
// reconciler. Once the signature passes, the delivery is always acknowledged:
// Stripe retries non-2xx responses indefinitely, and a failed reconciliation
// is recorded in the event ledger instead.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	stripeEvent, err := webhook.ConstructEvent(rawBody, signature, secret)
	if err != nil {
		log.Warnf("stripe webhook signature rejected from %s: %v", GetClientIP(c), err)
		return jsonError(c, fiber.StatusBadRequest, "invalid_signature", "Webhook signature verification failed")
	}

	event := billing.Event{
		ID:      stripeEvent.ID,
		Type:    string(stripeEvent.Type),
		Created: time.Unix(stripeEvent.Created, 0).UTC(),
		Raw:     stripeEvent.Data.Raw,
	}

	if err := billingService().ProcessWebhook(event); err != nil {
		log.Errorf("stripe webhook %s failed: %v", event.ID, err)
	}

	return c.JSON(fiber.Map{"received": true})
}
