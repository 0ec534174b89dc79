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

// AutomationStatRepositoryImpl implements the AutomationStatRepository interface
type AutomationStatRepositoryImpl struct {
	*BaseRepository[models.AutomationStat, models.AutomationStatFilter]
}

// NewAutomationStatRepository creates a new automation stat repository
func NewAutomationStatRepository(db *gorm.DB) AutomationStatRepository {
	return &AutomationStatRepositoryImpl{
		BaseRepository: NewBaseRepository[models.AutomationStat, models.AutomationStatFilter](db),
	}
}

// IncrementSent bumps the sent counter for (merchant, type), creating the row
// on first use. The upsert keeps concurrent increments additive.
func (r *AutomationStatRepositoryImpl) IncrementSent(ctx context.Context, merchantID uint, t models.AutomationType) error {
	db := r.getDB(ctx)

	now := utils.UTCNow()
	stat := models.AutomationStat{
		MerchantID: merchantID,
		Type:       t,
		Sent:       1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "merchant_id"}, {Name: "type"}},
		DoUpdates: clause.Assignments(map[string]any{
			"sent":       gorm.Expr("automation_stats.sent + 1"),
			"updated_at": now,
		}),
	}).Create(&stat).Error
}

// IncrementRecovered bumps the recovered counter and adds the recovered
// order's value to revenue for (merchant, type).
func (r *AutomationStatRepositoryImpl) IncrementRecovered(ctx context.Context, merchantID uint, t models.AutomationType, revenue float64) error {
	db := r.getDB(ctx)

	now := utils.UTCNow()
	stat := models.AutomationStat{
		MerchantID: merchantID,
		Type:       t,
		Recovered:  1,
		Revenue:    revenue,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "merchant_id"}, {Name: "type"}},
		DoUpdates: clause.Assignments(map[string]any{
			"recovered":  gorm.Expr("automation_stats.recovered + 1"),
			"revenue":    gorm.Expr("automation_stats.revenue + ?", revenue),
			"updated_at": now,
		}),
	}).Create(&stat).Error
}

// ByMerchantAndType retrieves the stat row for a (merchant, type) pair
func (r *AutomationStatRepositoryImpl) ByMerchantAndType(ctx context.Context, merchantID uint, t models.AutomationType) (*models.AutomationStat, error) {
	db := r.getDB(ctx)

	var stat models.AutomationStat
	err := db.Where("merchant_id = ? AND type = ?", merchantID, t).Last(&stat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find automation stat for merchant %d type %s: %w", merchantID, t, err)
	}

	return &stat, nil
}

// ByFilter retrieves automation stats based on filter criteria
func (r *AutomationStatRepositoryImpl) ByFilter(ctx context.Context, filter models.AutomationStatFilter, orderBy string, limit, offset int) ([]*models.AutomationStat, error) {
	db := r.getDB(ctx)

	var stats []*models.AutomationStat
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

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find automation stats by filter: %w", err)
	}

	return stats, nil
}
