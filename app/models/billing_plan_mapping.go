package models

import "time"

// BillingPlanMapping maps an external price id to an internal plan used by
// entitlements. Maintained by admins, read during plan reconciliation.
type BillingPlanMapping struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	PriceID      string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_billing_plan_mappings_price" json:"price_id"`
	InternalPlan string    `gorm:"type:varchar(50);not null;default:'free'" json:"internal_plan"`
	IsActive     bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
