package models

import "time"

// PlanStatus is the closed set of lifecycle states a purchase plan can be in.
// It is a named string type so handlers and services cannot pass arbitrary
// strings where a status is expected.
type PlanStatus string

const (
	PlanStatusPendingCheckout PlanStatus = "pending_checkout"
	PlanStatusActive          PlanStatus = "active"
	PlanStatusRenewing        PlanStatus = "renewing"
	PlanStatusUpgrading       PlanStatus = "upgrading"
	PlanStatusExpired         PlanStatus = "expired"
	PlanStatusCancelled       PlanStatus = "cancelled"
)

// PurchasePlan is the canonical billing record, exactly one row per user.
// Rows are upserted and never hard-deleted; terminal states (expired,
// cancelled) are kept for audit and history.
type PurchasePlan struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	UserID               uint       `gorm:"not null;uniqueIndex" json:"user_id"`
	Status               PlanStatus `gorm:"type:varchar(32);not null;default:'pending_checkout';index" json:"status"`
	PlanName             string     `gorm:"type:varchar(50);not null;default:''" json:"plan_name"`
	PlanID               string     `gorm:"type:varchar(191);not null;default:''" json:"plan_id"`
	IsSubscription       bool       `gorm:"default:false" json:"is_subscription"`
	StartDate            time.Time  `gorm:"type:timestamp;not null" json:"start_date"`
	LastUpdatedDate      time.Time  `gorm:"type:timestamp;not null" json:"last_updated_date"`
	EndDate              *time.Time `gorm:"type:timestamp;default:null" json:"end_date,omitempty"`
	StripeCustomerID     string     `gorm:"type:varchar(191);not null;default:'';index" json:"stripe_customer_id"`
	StripeSubscriptionID string     `gorm:"type:varchar(191);not null;default:'';index" json:"stripe_subscription_id"`
	StripeInvoiceID      string     `gorm:"type:varchar(191);not null;default:''" json:"stripe_invoice_id"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsUsable reports whether the row grants a usable entitlement. A row that
// never left checkout, was cancelled or ran out does not; renewing and
// upgrading keep the grant alive while payment state settles.
func (p *PurchasePlan) IsUsable() bool {
	if p == nil {
		return false
	}
	switch p.Status {
	case PlanStatusPendingCheckout, PlanStatusCancelled, PlanStatusExpired:
		return false
	default:
		return true
	}
}
