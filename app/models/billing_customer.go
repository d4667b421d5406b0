package models

import "time"

// BillingCustomer links one local user to one external billing-customer
// identity. Created on first successful checkout and never deleted; the
// user_id is immutable after creation, only the external id may be rewritten.
type BillingCustomer struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	UserID             uint      `gorm:"not null;uniqueIndex:ux_billing_customers_user" json:"user_id"`
	OrganizationID     *uint     `gorm:"index" json:"organization_id,omitempty"`
	ExternalCustomerID string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_billing_customers_external" json:"external_customer_id"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
