package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/peymanslh/wanotifier/models"
	"github.com/peymanslh/wanotifier/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AutomationRuleRepositoryImpl implements the AutomationRuleRepository interface
type AutomationRuleRepositoryImpl struct {
	*BaseRepository[models.AutomationRule, models.AutomationRuleFilter]
}

// NewAutomationRuleRepository creates a new automation rule repository
func NewAutomationRuleRepository(db *gorm.DB) AutomationRuleRepository {
	return &AutomationRuleRepositoryImpl{
		BaseRepository: NewBaseRepository[models.AutomationRule, models.AutomationRuleFilter](db),
	}
}

// ByMerchantAndType retrieves the single rule for a (merchant, type) pair
func (r *AutomationRuleRepositoryImpl) ByMerchantAndType(ctx context.Context, merchantID uint, t models.AutomationType) (*models.AutomationRule, error) {
	db := r.getDB(ctx)

	var rule models.AutomationRule
	err := db.Where("merchant_id = ? AND type = ?", merchantID, t).Last(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find automation rule for merchant %d type %s: %w", merchantID, t, err)
	}

	return &rule, nil
}

// Upsert creates or updates the rule for a (merchant, type) pair, relying on
// the uniqueness invariant of the pair.
func (r *AutomationRuleRepositoryImpl) Upsert(ctx context.Context, rule *models.AutomationRule) error {
	db := r.getDB(ctx)

	rule.UpdatedAt = utils.UTCNow()
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "merchant_id"}, {Name: "type"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_at"}),
	}).Create(rule).Error
}

// ByFilter retrieves automation rules based on filter criteria
func (r *AutomationRuleRepositoryImpl) ByFilter(ctx context.Context, filter models.AutomationRuleFilter, orderBy string, limit, offset int) ([]*models.AutomationRule, error) {
	db := r.getDB(ctx)

	var rules []*models.AutomationRule
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

	err := query.Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find automation rules by filter: %w", err)
	}

	return rules, nil
}
