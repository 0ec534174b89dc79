// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/peymanslh/wanotifier/models"
)

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
}

// MerchantRepository defines operations for merchants (tenants)
type MerchantRepository interface {
	Repository[models.Merchant, models.MerchantFilter]
	ByShop(ctx context.Context, shop string) (*models.Merchant, error)
	FirstOrCreateByShop(ctx context.Context, shop string) (*models.Merchant, error)
	Update(ctx context.Context, merchant *models.Merchant) error
	UpdateFields(ctx context.Context, merchantID uint, fields map[string]any) error
	IncrementUsage(ctx context.Context, merchantID uint, trial bool) error
	Deactivate(ctx context.Context, merchantID uint) error
}

// AutomationRuleRepository defines operations for automation rules
type AutomationRuleRepository interface {
	Repository[models.AutomationRule, models.AutomationRuleFilter]
	ByMerchantAndType(ctx context.Context, merchantID uint, t models.AutomationType) (*models.AutomationRule, error)
	Upsert(ctx context.Context, rule *models.AutomationRule) error
}

// MessageTemplateRepository defines operations for message templates
type MessageTemplateRepository interface {
	Repository[models.MessageTemplate, models.MessageTemplateFilter]
	ByMerchantAndType(ctx context.Context, merchantID uint, t models.AutomationType) (*models.MessageTemplate, error)
}

// DeliveryRecordRepository defines operations for delivery records.
// Claim is the idempotency primitive: a single conditional insert scoped by
// the recency-window epoch bucket.
type DeliveryRecordRepository interface {
	Repository[models.DeliveryRecord, models.DeliveryRecordFilter]
	HasOpenRecord(ctx context.Context, merchantID uint, eventID string, since time.Time) (bool, error)
	Claim(ctx context.Context, record *models.DeliveryRecord) (bool, error)
	Finalize(ctx context.Context, recordID uint, status models.DeliveryStatus, errText *string) error
	SetDispatched(ctx context.Context, recordID uint, recipient, message string, status models.DeliveryStatus) error
	LatestByEvent(ctx context.Context, merchantID uint, eventID string, since time.Time) (*models.DeliveryRecord, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AutomationStatRepository defines additive counter operations
type AutomationStatRepository interface {
	Repository[models.AutomationStat, models.AutomationStatFilter]
	IncrementSent(ctx context.Context, merchantID uint, t models.AutomationType) error
	IncrementRecovered(ctx context.Context, merchantID uint, t models.AutomationType, revenue float64) error
	ByMerchantAndType(ctx context.Context, merchantID uint, t models.AutomationType) (*models.AutomationStat, error)
}

// ConnectionSessionRepository defines operations for channel sessions
type ConnectionSessionRepository interface {
	ByMerchant(ctx context.Context, merchantID uint) (*models.ConnectionSession, error)
	All(ctx context.Context) ([]*models.ConnectionSession, error)
	Upsert(ctx context.Context, session *models.ConnectionSession) error
	UpdateFields(ctx context.Context, merchantID uint, fields map[string]any) error
}

// CampaignRepository defines operations for bulk campaigns
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Campaign, error)
	ByMerchantID(ctx context.Context, merchantID uint, limit, offset int) ([]*models.Campaign, error)
	ListByStatus(ctx context.Context, status models.CampaignStatus, limit int) ([]*models.Campaign, error)
	Update(ctx context.Context, campaign *models.Campaign) error
	UpdateStatus(ctx context.Context, id uint, status models.CampaignStatus) error
}
