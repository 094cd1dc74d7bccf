package billing

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cubbyhq/cubby/app/models"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	FindPlanByUser(userID uint) (*models.PurchasePlan, error)
	FindPlanByProviderIDs(subscriptionID, customerID string) (*models.PurchasePlan, error)
	UpsertPlan(plan *models.PurchasePlan) error
	FindUserByID(userID uint) (*models.User, error)
	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// FindPlanByUser returns the user's plan row, or (nil, nil) when the user has
// never started a checkout.
func (r *gormRepository) FindPlanByUser(userID uint) (*models.PurchasePlan, error) {
	var plan models.PurchasePlan
	err := r.db.Where("user_id = ?", userID).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// FindPlanByProviderIDs resolves a plan row from provider references, trying
// the subscription id first and falling back to the customer id. Returns
// (nil, nil) when neither matches.
func (r *gormRepository) FindPlanByProviderIDs(subscriptionID, customerID string) (*models.PurchasePlan, error) {
	var plan models.PurchasePlan
	if subscriptionID != "" {
		err := r.db.Where("stripe_subscription_id = ?", subscriptionID).First(&plan).Error
		if err == nil {
			return &plan, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if customerID != "" {
		err := r.db.Where("stripe_customer_id = ?", customerID).First(&plan).Error
		if err == nil {
			return &plan, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// UpsertPlan creates or replaces the single plan row for plan.UserID.
// start_date is deliberately absent from the update column list: it is set
// once on first creation and an existing row keeps it forever.
func (r *gormRepository) UpsertPlan(plan *models.PurchasePlan) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"plan_name",
			"plan_id",
			"is_subscription",
			"last_updated_date",
			"end_date",
			"stripe_customer_id",
			"stripe_subscription_id",
			"stripe_invoice_id",
			"updated_at",
		}),
	}).Create(plan).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("user_id = ?", plan.UserID).First(plan).Error
}

func (r *gormRepository) FindUserByID(userID uint) (*models.User, error) {
	var user models.User
	err := r.db.Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
