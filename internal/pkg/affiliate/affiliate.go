package affiliate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/courselyhq/coursely/app/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Supported affiliate provider event types.
const (
	EventReferralCreated   = "referral.created"
	EventReferralConverted = "referral.converted"
	EventCommissionPaid    = "commission.paid"
	EventReferralCanceled  = "referral.canceled"
)

// WebhookEvent is the affiliate provider's event envelope.
type WebhookEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt int64           `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

// ReferralPayload is the payload shared by all referral events.
type ReferralPayload struct {
	ID                 string `json:"id"`
	AffiliateID        string `json:"affiliate_id"`
	CustomerRef        string `json:"customer_ref"`
	Status             string `json:"status"`
	CommissionAmount   *int64 `json:"commission_amount"`
	CommissionCurrency string `json:"commission_currency"`
	ConvertedAt        int64  `json:"converted_at"`
}

// Service ingests referral/commission events from the affiliate provider.
// This is a non-critical side channel: the controller always answers 200 and
// internal errors are only logged.
type Service struct {
	db *gorm.DB
}

// NewService creates an affiliate service over a GORM handle.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// HandleEvent routes an affiliate event to its upsert. Unknown types are
// logged and ignored.
func (s *Service) HandleEvent(ctx context.Context, raw []byte) error {
	_ = ctx
	var event WebhookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return fmt.Errorf("decode affiliate envelope: %w", err)
	}

	switch event.Type {
	case EventReferralCreated, EventReferralConverted, EventCommissionPaid, EventReferralCanceled:
		var p ReferralPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return fmt.Errorf("decode referral payload: %w", err)
		}
		return s.upsertReferral(&p, event.Type)
	default:
		log.Printf("affiliate: ignoring webhook event %s of unhandled type %q", event.ID, event.Type)
		return nil
	}
}

// upsertReferral mirrors the referral record keyed by the provider's referral
// id. A missing id gets a local surrogate so the row is still recorded.
func (s *Service) upsertReferral(p *ReferralPayload, eventType string) error {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		id = "local:" + uuid.NewString()
	}
	if strings.TrimSpace(p.AffiliateID) == "" {
		return errors.New("referral payload missing affiliate id")
	}

	referral := &models.AffiliateReferral{
		ID:          id,
		AffiliateID: strings.TrimSpace(p.AffiliateID),
		UserID:      parseCustomerRef(p.CustomerRef),
		Status:      statusForEvent(eventType, p.Status),
	}
	if p.CommissionAmount != nil {
		amount := *p.CommissionAmount
		currency := strings.ToLower(strings.TrimSpace(p.CommissionCurrency))
		if currency == "" {
			currency = "usd"
		}
		referral.CommissionAmount = &amount
		referral.CommissionCurrency = &currency
	}
	if p.ConvertedAt > 0 {
		t := time.Unix(p.ConvertedAt, 0).UTC()
		referral.ConvertedAt = &t
	}

	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"affiliate_id",
			"user_id",
			"status",
			"commission_amount",
			"commission_currency",
			"converted_at",
			"updated_at",
		}),
	}).Create(referral).Error
}

func statusForEvent(eventType, payloadStatus string) string {
	switch eventType {
	case EventReferralConverted:
		return models.ReferralStatusConverted
	case EventCommissionPaid:
		return models.ReferralStatusPaid
	case EventReferralCanceled:
		return models.ReferralStatusCanceled
	}
	switch strings.ToLower(strings.TrimSpace(payloadStatus)) {
	case models.ReferralStatusConverted:
		return models.ReferralStatusConverted
	case models.ReferralStatusPaid:
		return models.ReferralStatusPaid
	case models.ReferralStatusCanceled:
		return models.ReferralStatusCanceled
	default:
		return models.ReferralStatusLead
	}
}

func parseCustomerRef(ref string) *uint {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return nil
	}
	id, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil || id == 0 {
		return nil
	}
	out := uint(id)
	return &out
}
