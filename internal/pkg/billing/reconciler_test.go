package billing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cubbyhq/cubby/app/models"
)

func mkEvent(t *testing.T, id, eventType string, created time.Time, payload interface{}) Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return Event{ID: id, Type: eventType, Created: created, Raw: raw}
}

func checkoutPayload(userID, tier, customer, subscription, invoice string) map[string]interface{} {
	return map[string]interface{}{
		"id":           "cs_test_1",
		"mode":         "subscription",
		"customer":     customer,
		"subscription": subscription,
		"invoice":      invoice,
		"metadata": map[string]string{
			"tier":       tier,
			"account_id": userID,
		},
	}
}

func subPayload(id, status, customer, priceID string, periodEnd, endedAt int64) map[string]interface{} {
	p := map[string]interface{}{
		"id":                 id,
		"status":             status,
		"customer":           customer,
		"current_period_end": periodEnd,
		"ended_at":           endedAt,
	}
	if priceID != "" {
		p["items"] = map[string]interface{}{
			"data": []map[string]interface{}{
				{"price": map[string]string{"id": priceID}},
			},
		}
	}
	return p
}

func TestProcessWebhookCheckoutCompletedActivatesPlan(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAPI{}, nil)

	created := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	event := mkEvent(t, "evt_1", "checkout.session.completed", created,
		checkoutPayload("7", "professional", "cus_1", "sub_1", "in_1"))

	if err := svc.ProcessWebhook(event); err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}

	plan := repo.plans[7]
	if plan == nil {
		t.Fatalf("expected a plan row after checkout completion")
	}
	if plan.Status != models.PlanStatusActive {
		t.Fatalf("expected status active, got %q", plan.Status)
	}
	if plan.PlanName != string(TierProfessional) || !plan.IsSubscription {
		t.Fatalf("unexpected plan row: %+v", plan)
	}
	if plan.StripeCustomerID != "cus_1" || plan.StripeSubscriptionID != "sub_1" || plan.StripeInvoiceID != "in_1" {
		t.Fatalf("provider references not recorded: %+v", plan)
	}
	if !plan.StartDate.Equal(created) || !plan.LastUpdatedDate.Equal(created) {
		t.Fatalf("expected dates from event time, got start=%v updated=%v", plan.StartDate, plan.LastUpdatedDate)
	}
}

func TestProcessWebhookCheckoutCompletedKeepsStartDate(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAPI{}, nil)

	firstPurchase := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	repo.plans[7] = &models.PurchasePlan{
		UserID:           7,
		Status:           models.PlanStatusUpgrading,
		PlanName:         string(TierPersonal),
		StripeCustomerID: "cus_1",
		StartDate:        firstPurchase,
		LastUpdatedDate:  firstPurchase,
	}

	// The upgrade completes a year later; the original purchase date stays.
	upgraded := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	event := mkEvent(t, "evt_upg", "checkout.session.completed", upgraded,
		checkoutPayload("7", "professional", "cus_1", "sub_1", "in_9"))

	if err := svc.ProcessWebhook(event); err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}

	plan := repo.plans[7]
	if plan.Status != models.PlanStatusActive {
		t.Fatalf("expected status active, got %q", plan.Status)
	}
	if !plan.StartDate.Equal(firstPurchase) {
		t.Fatalf("start date must survive the upgrade, got %v", plan.StartDate)
	}
	if !plan.LastUpdatedDate.Equal(upgraded) {
		t.Fatalf("expected last update from event time, got %v", plan.LastUpdatedDate)
	}
}

func TestProcessWebhookDuplicateEventIsNoop(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAPI{}, nil)

	created := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	event := mkEvent(t, "evt_dup", "checkout.session.completed", created,
		checkoutPayload("7", "personal", "cus_1", "", ""))

	if err := svc.ProcessWebhook(event); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	before := *repo.plans[7]
	upserts := repo.upserts

	if err := svc.ProcessWebhook(event); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if repo.upserts != upserts {
		t.Fatalf("duplicate delivery must not touch the plan table")
	}
	after := *repo.plans[7]
	before.LastUpdatedDate = after.LastUpdatedDate
	if before != after {
		t.Fatalf("duplicate delivery changed the row:\nbefore=%+v\nafter=%+v", before, after)
	}
}

func TestProcessWebhookStaleEventDropped(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAPI{}, nil)

	newer := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	repo.plans[7] = &models.PurchasePlan{
		UserID:               7,
		Status:               models.PlanStatusActive,
		PlanName:             string(TierProfessional),
		IsSubscription:       true,
		StripeSubscriptionID: "sub_1",
		LastUpdatedDate:      newer,
	}

	// An hour-old cancellation arriving after a newer change must not win.
	older := newer.Add(-time.Hour)
	event := mkEvent(t, "evt_old", "customer.subscription.deleted", older,
		subPayload("sub_1", "canceled", "cus_1", "", 0, older.Unix()))

	if err := svc.ProcessWebhook(event); err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}
	if repo.plans[7].Status != models.PlanStatusActive {
		t.Fatalf("stale event overwrote newer state: %q", repo.plans[7].Status)
	}
}

func TestProcessWebhookSubscriptionStatusTransitions(t *testing.T) {
	tests := []struct {
		stripeStatus string
		want         models.PlanStatus
	}{
		{stripeStatus: "active", want: models.PlanStatusActive},
		{stripeStatus: "past_due", want: models.PlanStatusRenewing},
		{stripeStatus: "canceled", want: models.PlanStatusCancelled},
		{stripeStatus: "incomplete_expired", want: models.PlanStatusExpired},
	}

	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	for i, tt := range tests {
		repo := newFakeRepo()
		repo.plans[7] = &models.PurchasePlan{
			UserID:               7,
			Status:               models.PlanStatusActive,
			PlanName:             string(TierProfessional),
			IsSubscription:       true,
			StripeSubscriptionID: "sub_1",
			StripeCustomerID:     "cus_1",
			LastUpdatedDate:      base,
		}
		svc := newTestService(repo, &fakeAPI{}, nil)

		event := mkEvent(t, "evt_sub", "customer.subscription.updated", base.Add(time.Hour),
			subPayload("sub_1", tt.stripeStatus, "cus_1", "", base.Add(720*time.Hour).Unix(), 0))
		if err := svc.ProcessWebhook(event); err != nil {
			t.Fatalf("case %d: ProcessWebhook: %v", i, err)
		}
		if got := repo.plans[7].Status; got != tt.want {
			t.Fatalf("stripe status %q mapped to %q, want %q", tt.stripeStatus, got, tt.want)
		}
	}
}

func TestProcessWebhookSubscriptionDeletedSetsEndDate(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAPI{}, nil)

	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	repo.plans[7] = &models.PurchasePlan{
		UserID:               7,
		Status:               models.PlanStatusActive,
		PlanName:             string(TierProfessionalAnnual),
		IsSubscription:       true,
		StripeSubscriptionID: "sub_1",
		LastUpdatedDate:      base,
	}

	endedAt := base.Add(48 * time.Hour)
	event := mkEvent(t, "evt_del", "customer.subscription.deleted", endedAt,
		subPayload("sub_1", "canceled", "cus_1", "", 0, endedAt.Unix()))

	if err := svc.ProcessWebhook(event); err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}

	plan := repo.plans[7]
	if plan.Status != models.PlanStatusExpired {
		t.Fatalf("expected status expired, got %q", plan.Status)
	}
	if plan.EndDate == nil || !plan.EndDate.Equal(endedAt) {
		t.Fatalf("expected end date %v, got %v", endedAt, plan.EndDate)
	}
}

func TestProcessWebhookSubscriptionResolvesMetadataFirst(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAPI{}, nil)

	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	repo.plans[5] = &models.PurchasePlan{
		UserID:           5,
		Status:           models.PlanStatusUpgrading,
		PlanName:         string(TierPersonal),
		StripeCustomerID: "cus_5",
		LastUpdatedDate:  base,
	}
	repo.plans[6] = &models.PurchasePlan{
		UserID:               6,
		Status:               models.PlanStatusActive,
		PlanName:             string(TierProfessional),
		IsSubscription:       true,
		StripeSubscriptionID: "sub_x",
		LastUpdatedDate:      base,
	}

	// sub_x collides with user 6's row, but the metadata names user 5.
	payload := subPayload("sub_x", "active", "cus_new", testPrices.Professional, base.Add(720*time.Hour).Unix(), 0)
	payload["metadata"] = map[string]string{"account_id": "5"}
	event := mkEvent(t, "evt_meta", "customer.subscription.created", base.Add(time.Minute), payload)

	if err := svc.ProcessWebhook(event); err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}

	if repo.plans[5].StripeSubscriptionID != "sub_x" || repo.plans[5].Status != models.PlanStatusActive {
		t.Fatalf("metadata account must win the lookup, got %+v", repo.plans[5])
	}
	if !repo.plans[6].LastUpdatedDate.Equal(base) {
		t.Fatalf("provider-id match must not be touched when metadata resolves: %+v", repo.plans[6])
	}
}

func TestProcessWebhookSubscriptionDeletedIgnoresMetadata(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAPI{}, nil)

	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	repo.plans[9] = &models.PurchasePlan{
		UserID:               9,
		Status:               models.PlanStatusActive,
		PlanName:             string(TierProfessional),
		IsSubscription:       true,
		StripeSubscriptionID: "sub_current",
		StripeCustomerID:     "cus_9",
		LastUpdatedDate:      base,
	}

	// A leftover deletion for a subscription the row no longer references
	// must not expire the user's current plan, metadata or not.
	payload := subPayload("sub_old", "canceled", "cus_gone", "", 0, base.Add(time.Hour).Unix())
	payload["metadata"] = map[string]string{"account_id": "9"}
	event := mkEvent(t, "evt_del_old", "customer.subscription.deleted", base.Add(time.Hour), payload)

	if err := svc.ProcessWebhook(event); err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}

	if repo.plans[9].Status != models.PlanStatusActive {
		t.Fatalf("unrelated deletion expired the plan: %q", repo.plans[9].Status)
	}
}

func TestProcessWebhookUpgradeRefreshesTierFromPrice(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAPI{}, nil)

	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	repo.plans[7] = &models.PurchasePlan{
		UserID:               7,
		Status:               models.PlanStatusUpgrading,
		PlanName:             string(TierPersonal),
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: "",
		LastUpdatedDate:      base,
	}

	event := mkEvent(t, "evt_up", "customer.subscription.created", base.Add(time.Minute),
		subPayload("sub_new", "active", "cus_1", testPrices.ProfessionalAnnual, base.Add(8760*time.Hour).Unix(), 0))

	if err := svc.ProcessWebhook(event); err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}

	plan := repo.plans[7]
	if plan.Status != models.PlanStatusActive {
		t.Fatalf("expected status active after upgrade, got %q", plan.Status)
	}
	if plan.PlanName != string(TierProfessionalAnnual) || !plan.IsSubscription {
		t.Fatalf("expected tier refresh from price id, got %+v", plan)
	}
	if plan.StripeSubscriptionID != "sub_new" {
		t.Fatalf("expected subscription id recorded, got %q", plan.StripeSubscriptionID)
	}
}

func TestProcessWebhookInvoicePaidRenewsPlan(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAPI{}, nil)

	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	repo.plans[7] = &models.PurchasePlan{
		UserID:               7,
		Status:               models.PlanStatusRenewing,
		PlanName:             string(TierProfessional),
		IsSubscription:       true,
		StripeSubscriptionID: "sub_1",
		StripeCustomerID:     "cus_1",
		StripeInvoiceID:      "in_old",
		LastUpdatedDate:      base,
	}

	event := mkEvent(t, "evt_inv", "invoice.paid", base.Add(time.Hour), map[string]string{
		"id":           "in_new",
		"customer":     "cus_1",
		"subscription": "sub_1",
	})

	if err := svc.ProcessWebhook(event); err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}

	plan := repo.plans[7]
	if plan.Status != models.PlanStatusActive {
		t.Fatalf("expected status active after paid invoice, got %q", plan.Status)
	}
	if plan.StripeInvoiceID != "in_new" {
		t.Fatalf("expected invoice reference updated, got %q", plan.StripeInvoiceID)
	}
}

func TestProcessWebhookInvoiceFailedKeepsEntitlement(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAPI{}, nil)

	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	repo.plans[7] = &models.PurchasePlan{
		UserID:               7,
		Status:               models.PlanStatusActive,
		PlanName:             string(TierProfessional),
		IsSubscription:       true,
		StripeSubscriptionID: "sub_1",
		LastUpdatedDate:      base,
	}

	event := mkEvent(t, "evt_fail", "invoice.payment_failed", base.Add(time.Hour), map[string]string{
		"id":           "in_fail",
		"subscription": "sub_1",
	})

	if err := svc.ProcessWebhook(event); err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}

	plan := repo.plans[7]
	if plan.Status != models.PlanStatusRenewing {
		t.Fatalf("expected status renewing, got %q", plan.Status)
	}
	if !plan.IsUsable() {
		t.Fatalf("a renewing plan must stay usable while the provider retries")
	}
}

func TestProcessWebhookOneTimeInvoiceFallback(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAPI{}, nil)

	created := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	payload := map[string]interface{}{
		"id":             "cs_one_time",
		"mode":           "payment",
		"customer":       "cus_2",
		"payment_intent": "pi_9",
		"metadata": map[string]string{
			"tier":       "personal",
			"account_id": "3",
		},
	}
	event := mkEvent(t, "evt_pay", "checkout.session.completed", created, payload)

	if err := svc.ProcessWebhook(event); err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}

	plan := repo.plans[3]
	if plan == nil {
		t.Fatalf("expected a plan row")
	}
	if plan.StripeInvoiceID != "pi_9" {
		t.Fatalf("expected payment intent fallback as reference, got %q", plan.StripeInvoiceID)
	}
	if plan.IsSubscription {
		t.Fatalf("one-time purchase must not be marked as subscription")
	}
	if plan.EndDate != nil {
		t.Fatalf("perpetual one-time plan must carry no end date")
	}
}

func TestProcessWebhookForeignCheckoutIgnored(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAPI{}, nil)

	payload := map[string]interface{}{
		"id":       "cs_foreign",
		"customer": "cus_x",
		"metadata": map[string]string{},
	}
	event := mkEvent(t, "evt_foreign", "checkout.session.completed", time.Now(), payload)

	if err := svc.ProcessWebhook(event); err != nil {
		t.Fatalf("foreign checkout must be acknowledged, got %v", err)
	}
	if len(repo.plans) != 0 {
		t.Fatalf("foreign checkout must not create plan rows")
	}
}

func TestProcessWebhookUnknownEventTypeIgnored(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAPI{}, nil)

	event := mkEvent(t, "evt_x", "customer.created", time.Now(), map[string]string{"id": "cus_1"})
	if err := svc.ProcessWebhook(event); err != nil {
		t.Fatalf("unknown event types must be acknowledged, got %v", err)
	}

	stored := repo.events[models.BillingProviderStripe+"|evt_x"]
	if stored == nil || stored.ProcessedAt == nil {
		t.Fatalf("event must still be recorded in the ledger and marked processed")
	}
}
