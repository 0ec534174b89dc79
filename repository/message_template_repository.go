package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/peymanslh/wanotifier/models"
	"gorm.io/gorm"
)

// MessageTemplateRepositoryImpl implements the MessageTemplateRepository interface
type MessageTemplateRepositoryImpl struct {
	*BaseRepository[models.MessageTemplate, models.MessageTemplateFilter]
}

// NewMessageTemplateRepository creates a new message template repository
func NewMessageTemplateRepository(db *gorm.DB) MessageTemplateRepository {
	return &MessageTemplateRepositoryImpl{
		BaseRepository: NewBaseRepository[models.MessageTemplate, models.MessageTemplateFilter](db),
	}
}

// ByMerchantAndType retrieves the template for a (merchant, type) pair.
// Returns nil when the merchant has not authored one; callers fall back to
// the default body for the type.
func (r *MessageTemplateRepositoryImpl) ByMerchantAndType(ctx context.Context, merchantID uint, t models.AutomationType) (*models.MessageTemplate, error) {
	db := r.getDB(ctx)

	var tpl models.MessageTemplate
	err := db.Where("merchant_id = ? AND type = ?", merchantID, t).Last(&tpl).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find message template for merchant %d type %s: %w", merchantID, t, err)
	}

	return &tpl, nil
}

// ByFilter retrieves message templates based on filter criteria
func (r *MessageTemplateRepositoryImpl) ByFilter(ctx context.Context, filter models.MessageTemplateFilter, orderBy string, limit, offset int) ([]*models.MessageTemplate, error) {
	db := r.getDB(ctx)

	var templates []*models.MessageTemplate
	query := db
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.MerchantID != nil {
		query = query.Where("merchant_id = ?", *filter.MerchantID)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.Enabled != nil {
		query = query.Where("enabled = ?", *filter.Enabled)
	}

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&templates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find message templates by filter: %w", err)
	}

	return templates, nil
}
