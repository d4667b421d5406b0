package models

import "time"

const (
	ReferralStatusLead      = "lead"
	ReferralStatusConverted = "converted"
	ReferralStatusPaid      = "paid"
	ReferralStatusCanceled  = "canceled"
)

// AffiliateReferral mirrors a referral/commission record from the affiliate
// provider, keyed by the provider's referral id.
type AffiliateReferral struct {
	ID                 string    `gorm:"primaryKey;type:varchar(191)" json:"id"`
	AffiliateID        string    `gorm:"type:varchar(191);not null;index" json:"affiliate_id"`
	UserID             *uint     `gorm:"index" json:"user_id,omitempty"`
	Status             string    `gorm:"type:varchar(32);not null;default:'lead'" json:"status"`
	CommissionAmount   *int64    `json:"commission_amount,omitempty"`
	CommissionCurrency *string   `gorm:"type:varchar(8);default:null" json:"commission_currency,omitempty"`
	ConvertedAt        *time.Time `gorm:"type:timestamp;default:null" json:"converted_at,omitempty"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
