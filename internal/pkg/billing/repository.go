package billing

import (
	"github.com/courselyhq/coursely/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	UpsertCustomer(customer *models.BillingCustomer) error
	GetCustomerByExternalID(externalCustomerID string) (*models.BillingCustomer, error)
	GetCustomerByUserID(userID uint) (*models.BillingCustomer, error)
	GetSubscription(id string) (*models.BillingSubscription, error)
	UpsertSubscription(sub *models.BillingSubscription) error
	UpdateSubscriptionStatus(id, status string) error
	ListSubscriptionsByUser(userID uint) ([]models.BillingSubscription, error)
	FindActivePlanMapping(priceID string) (*models.BillingPlanMapping, error)
	GetOrCreateUserSettings(userID uint) (*models.UserSettings, error)
	SaveUserSettings(us *models.UserSettings) error
	GetUserEmail(userID uint) (string, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// UpsertCustomer inserts or updates the billing identity for a user. The
// conflict target is user_id: a user keeps exactly one customer row and only
// the external id may be rewritten.
func (r *gormRepository) UpsertCustomer(customer *models.BillingCustomer) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"external_customer_id",
			"organization_id",
			"updated_at",
		}),
	}).Create(customer).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("user_id = ?", customer.UserID).First(customer).Error
}

func (r *gormRepository) GetCustomerByExternalID(externalCustomerID string) (*models.BillingCustomer, error) {
	var c models.BillingCustomer
	err := r.db.Where("external_customer_id = ?", externalCustomerID).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) GetCustomerByUserID(userID uint) (*models.BillingCustomer, error) {
	var c models.BillingCustomer
	err := r.db.Where("user_id = ?", userID).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) GetSubscription(id string) (*models.BillingSubscription, error) {
	var s models.BillingSubscription
	err := r.db.Where("id = ?", id).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertSubscription performs a full-record replace keyed by the external
// subscription id. Every column is overwritten; the external object is
// authoritative at the moment the event is processed.
func (r *gormRepository) UpsertSubscription(sub *models.BillingSubscription) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"organization_id",
			"external_customer_id",
			"price_id",
			"status",
			"current_period_start",
			"current_period_end",
			"cancel_at_period_end",
			"trial_start_at",
			"trial_end_at",
			"canceled_at",
			"ended_at",
			"cancel_at",
			"cancellation_reason",
			"cancellation_comment",
			"cancellation_feedback",
			"metadata",
			"attribution_data",
			"price_amount",
			"price_currency",
			"provider_event_at",
			"updated_at",
		}),
	}).Create(sub).Error
}

// UpdateSubscriptionStatus is the status-only fast path. It touches a single
// column and is a no-op when the row does not exist.
func (r *gormRepository) UpdateSubscriptionStatus(id, status string) error {
	return r.db.Model(&models.BillingSubscription{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *gormRepository) ListSubscriptionsByUser(userID uint) ([]models.BillingSubscription, error) {
	var subs []models.BillingSubscription
	err := r.db.Where("user_id = ?", userID).Find(&subs).Error
	return subs, err
}

func (r *gormRepository) FindActivePlanMapping(priceID string) (*models.BillingPlanMapping, error) {
	var m models.BillingPlanMapping
	err := r.db.
		Where("price_id = ? AND is_active = ?", priceID, true).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) GetOrCreateUserSettings(userID uint) (*models.UserSettings, error) {
	return models.GetOrCreateUserSettings(r.db, userID)
}

func (r *gormRepository) SaveUserSettings(us *models.UserSettings) error {
	return r.db.Save(us).Error
}

func (r *gormRepository) GetUserEmail(userID uint) (string, error) {
	var u models.User
	err := r.db.Select("email").Where("id = ?", userID).First(&u).Error
	if err != nil {
		return "", err
	}
	return u.Email, nil
}
