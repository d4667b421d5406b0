package models

import "time"

const (
	SubStatusIncomplete        = "incomplete"
	SubStatusIncompleteExpired = "incomplete_expired"
	SubStatusTrialing          = "trialing"
	SubStatusActive            = "active"
	SubStatusPastDue           = "past_due"
	SubStatusUnpaid            = "unpaid"
	SubStatusCanceled          = "canceled"
	SubStatusPaused            = "paused"
)

// BillingSubscription is the locally cached mirror of one external
// subscription object. The primary key is the provider's subscription id,
// which doubles as the idempotency key: every provider event for the same id
// performs a full-record overwrite. Rows are never deleted; terminated
// subscriptions keep status=canceled plus ended_at.
type BillingSubscription struct {
	ID                   string     `gorm:"primaryKey;type:varchar(191)" json:"id"`
	UserID               uint       `gorm:"not null;index" json:"user_id"`
	OrganizationID       *uint      `gorm:"index" json:"organization_id,omitempty"`
	ExternalCustomerID   string     `gorm:"type:varchar(191);not null;index" json:"external_customer_id"`
	PriceID              string     `gorm:"type:varchar(191);not null" json:"price_id"`
	Status               string     `gorm:"type:varchar(32);not null;default:'incomplete';index" json:"status"`
	CurrentPeriodStart   *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool       `gorm:"default:false" json:"cancel_at_period_end"`
	TrialStartAt         *time.Time `gorm:"type:timestamp;default:null" json:"trial_start_at,omitempty"`
	TrialEndAt           *time.Time `gorm:"type:timestamp;default:null" json:"trial_end_at,omitempty"`
	CanceledAt           *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	EndedAt              *time.Time `gorm:"type:timestamp;default:null" json:"ended_at,omitempty"`
	CancelAt             *time.Time `gorm:"type:timestamp;default:null" json:"cancel_at,omitempty"`
	CancellationReason   *string    `gorm:"type:varchar(191);default:null" json:"cancellation_reason,omitempty"`
	CancellationComment  *string    `gorm:"type:text;default:null" json:"cancellation_comment,omitempty"`
	CancellationFeedback *string    `gorm:"type:varchar(191);default:null" json:"cancellation_feedback,omitempty"`
	Metadata             JSONMap    `gorm:"type:longtext" json:"metadata"`
	AttributionData      JSONMap    `gorm:"type:longtext" json:"attribution_data"`
	PriceAmount          *int64     `json:"price_amount,omitempty"`
	PriceCurrency        *string    `gorm:"type:varchar(8);default:null" json:"price_currency,omitempty"`
	ProviderEventAt      *time.Time `gorm:"type:timestamp;default:null" json:"provider_event_at,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsEnded reports whether the subscription reached a terminal state.
func (s *BillingSubscription) IsEnded() bool {
	switch s.Status {
	case SubStatusCanceled, SubStatusIncompleteExpired, SubStatusUnpaid:
		return true
	default:
		return false
	}
}
