package controllers

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"

	"github.com/cubbyhq/cubby/app/models"
	"github.com/cubbyhq/cubby/internal/pkg/billing"
	"github.com/cubbyhq/cubby/internal/pkg/usercontext"
)

// billingTestRepo is an in-memory billing.Repository for handler tests.
type billingTestRepo struct {
	plans   map[uint]*models.PurchasePlan
	users   map[uint]*models.User
	events  map[string]*models.BillingWebhookEvent
	upserts int
}

func newBillingTestRepo() *billingTestRepo {
	return &billingTestRepo{
		plans:  make(map[uint]*models.PurchasePlan),
		users:  make(map[uint]*models.User),
		events: make(map[string]*models.BillingWebhookEvent),
	}
}

func (r *billingTestRepo) FindPlanByUser(userID uint) (*models.PurchasePlan, error) {
	plan, ok := r.plans[userID]
	if !ok {
		return nil, nil
	}
	cp := *plan
	return &cp, nil
}

func (r *billingTestRepo) FindPlanByProviderIDs(subscriptionID, customerID string) (*models.PurchasePlan, error) {
	for _, plan := range r.plans {
		if subscriptionID != "" && plan.StripeSubscriptionID == subscriptionID {
			cp := *plan
			return &cp, nil
		}
	}
	for _, plan := range r.plans {
		if customerID != "" && plan.StripeCustomerID == customerID {
			cp := *plan
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *billingTestRepo) UpsertPlan(plan *models.PurchasePlan) error {
	r.upserts++
	cp := *plan
	r.plans[plan.UserID] = &cp
	return nil
}

func (r *billingTestRepo) FindUserByID(userID uint) (*models.User, error) {
	user, ok := r.users[userID]
	if !ok {
		return nil, nil
	}
	return user, nil
}

func (r *billingTestRepo) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	key := event.Provider + "|" + event.ProviderEventID
	if stored, ok := r.events[key]; ok {
		cp := *stored
		return false, &cp, nil
	}
	event.ID = uint(len(r.events) + 1)
	cp := *event
	r.events[key] = &cp
	out := *event
	return true, &out, nil
}

func (r *billingTestRepo) MarkWebhookProcessed(id uint, processingError string) error {
	for _, stored := range r.events {
		if stored.ID == id {
			now := time.Now()
			stored.ProcessedAt = &now
			stored.ProcessingError = processingError
			return nil
		}
	}
	return fmt.Errorf("webhook event %d not found", id)
}

type billingTestAPI struct {
	checkouts int
}

func (a *billingTestAPI) NewCheckoutSession(params billing.CheckoutParams) (*billing.CheckoutSession, error) {
	a.checkouts++
	return &billing.CheckoutSession{ID: "cs_test", URL: "https://checkout.stripe.test/cs_test"}, nil
}

func (a *billingTestAPI) NewBillingPortalSession(customerID, returnURL string) (string, error) {
	return "https://portal.stripe.test/" + customerID, nil
}

func setupBillingTestApp(repo *billingTestRepo, api *billingTestAPI, user usercontext.UserContext) *fiber.App {
	SetBillingService(billing.NewService(repo, api, billing.NewNoopEntitlementCache(),
		billing.PriceTable{
			Personal:           "price_personal",
			Professional:       "price_pro",
			ProfessionalAnnual: "price_pro_year",
		},
		billing.Config{
			SuccessURL:      "https://cubby.test/billing/success",
			CancelURL:       "https://cubby.test/billing/cancel",
			PortalReturnURL: "https://cubby.test",
		}))

	app := fiber.New()
	app.Post("/billing/checkout/sessions", func(c *fiber.Ctx) error {
		c.Locals(usercontext.KeyUserContext, user)
		return HandleCreateCheckoutSession(c)
	})
	app.Post("/billing/webhooks", HandleStripeWebhook)
	return app
}

func TestCreateCheckoutSessionRejectsForeignAccount(t *testing.T) {
	repo := newBillingTestRepo()
	repo.users[1] = &models.User{ID: 1, Email: "owner@example.com", Status: models.STATUS_ACTIVE}
	app := setupBillingTestApp(repo, &billingTestAPI{}, usercontext.UserContext{UserID: 1, IsLoggedIn: true})

	req := httptest.NewRequest("POST", "/billing/checkout/sessions",
		strings.NewReader(`{"tier":"professional","account_id":2}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Zero(t, repo.upserts, "a rejected checkout must not write a plan row")
	assert.Empty(t, repo.plans)
}

func TestCreateCheckoutSessionRequiresAccountID(t *testing.T) {
	repo := newBillingTestRepo()
	repo.users[1] = &models.User{ID: 1, Email: "owner@example.com", Status: models.STATUS_ACTIVE}
	app := setupBillingTestApp(repo, &billingTestAPI{}, usercontext.UserContext{UserID: 1, IsLoggedIn: true})

	req := httptest.NewRequest("POST", "/billing/checkout/sessions",
		strings.NewReader(`{"tier":"professional"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, repo.upserts)
}

func TestCreateCheckoutSessionChecksTierBeforeAccount(t *testing.T) {
	repo := newBillingTestRepo()
	repo.users[1] = &models.User{ID: 1, Email: "owner@example.com", Status: models.STATUS_ACTIVE}
	app := setupBillingTestApp(repo, &billingTestAPI{}, usercontext.UserContext{UserID: 1, IsLoggedIn: true})

	// Bad tier and foreign account together: the tier error wins.
	req := httptest.NewRequest("POST", "/billing/checkout/sessions",
		strings.NewReader(`{"tier":"platinum","account_id":2}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCreateCheckoutSessionOwnAccountSucceeds(t *testing.T) {
	repo := newBillingTestRepo()
	repo.users[1] = &models.User{ID: 1, Email: "owner@example.com", Status: models.STATUS_ACTIVE}
	api := &billingTestAPI{}
	app := setupBillingTestApp(repo, api, usercontext.UserContext{UserID: 1, IsLoggedIn: true})

	req := httptest.NewRequest("POST", "/billing/checkout/sessions",
		strings.NewReader(`{"tier":"professional","account_id":1}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, api.checkouts)
	assert.NotNil(t, repo.plans[1])
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	repo := newBillingTestRepo()
	app := setupBillingTestApp(repo, &billingTestAPI{}, usercontext.UserContext{})

	req := httptest.NewRequest("POST", "/billing/webhooks",
		strings.NewReader(`{"id":"evt_1","type":"checkout.session.completed"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")

	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, repo.events, "unverified deliveries must not reach the ledger")
}
