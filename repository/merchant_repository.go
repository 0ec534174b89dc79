package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/peymanslh/wanotifier/models"
	"github.com/peymanslh/wanotifier/utils"
	"gorm.io/gorm"
)

// MerchantRepositoryImpl implements the MerchantRepository interface
type MerchantRepositoryImpl struct {
	*BaseRepository[models.Merchant, models.MerchantFilter]
}

// NewMerchantRepository creates a new merchant repository
func NewMerchantRepository(db *gorm.DB) MerchantRepository {
	return &MerchantRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Merchant, models.MerchantFilter](db),
	}
}

// ByShop retrieves a merchant by its shop domain
func (r *MerchantRepositoryImpl) ByShop(ctx context.Context, shop string) (*models.Merchant, error) {
	db := r.getDB(ctx)

	var merchant models.Merchant
	err := db.Where("shop = ?", shop).Last(&merchant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find merchant by shop %s: %w", shop, err)
	}

	return &merchant, nil
}

// FirstOrCreateByShop returns the merchant for a shop, creating it with
// defaults when the shop is unknown (first OAuth callback or first inbound
// event referencing a new tenant).
func (r *MerchantRepositoryImpl) FirstOrCreateByShop(ctx context.Context, shop string) (*models.Merchant, error) {
	db := r.getDB(ctx)

	merchant := models.Merchant{
		UUID:       uuid.New(),
		Shop:       shop,
		TrialLimit: utils.DefaultTrialLimit,
	}
	err := db.Where(models.Merchant{Shop: shop}).
		Attrs(merchant).
		FirstOrCreate(&merchant).Error
	if err != nil {
		return nil, fmt.Errorf("failed to first-or-create merchant for shop %s: %w", shop, err)
	}

	return &merchant, nil
}

// Update persists merchant field changes
func (r *MerchantRepositoryImpl) Update(ctx context.Context, merchant *models.Merchant) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	merchant.UpdatedAt = utils.UTCNow()
	err = db.Save(merchant).Error
	if err != nil {
		return fmt.Errorf("failed to update merchant: %w", err)
	}

	return nil
}

// UpdateFields patches a subset of merchant columns
func (r *MerchantRepositoryImpl) UpdateFields(ctx context.Context, merchantID uint, fields map[string]any) error {
	db := r.getDB(ctx)

	fields["updated_at"] = utils.UTCNow()
	err := db.Model(&models.Merchant{}).
		Where("id = ?", merchantID).
		Updates(fields).Error
	if err != nil {
		return fmt.Errorf("failed to update merchant fields: %w", err)
	}
	return nil
}

// IncrementUsage atomically bumps the usage counter (trial or plan) by one.
// Called only after a confirmed successful send.
func (r *MerchantRepositoryImpl) IncrementUsage(ctx context.Context, merchantID uint, trial bool) error {
	db := r.getDB(ctx)

	column := "usage"
	if trial {
		column = "trial_usage"
	}
	return db.Model(&models.Merchant{}).
		Where("id = ?", merchantID).
		Updates(map[string]any{
			column:       gorm.Expr(column + " + 1"),
			"updated_at": utils.UTCNow(),
		}).Error
}

// Deactivate soft-deletes a merchant on uninstall
func (r *MerchantRepositoryImpl) Deactivate(ctx context.Context, merchantID uint) error {
	db := r.getDB(ctx)

	now := utils.UTCNow()
	return db.Model(&models.Merchant{}).
		Where("id = ?", merchantID).
		Updates(map[string]any{
			"is_active":  false,
			"deleted_at": now,
			"updated_at": now,
		}).Error
}

// ByFilter retrieves merchants based on filter criteria
func (r *MerchantRepositoryImpl) ByFilter(ctx context.Context, filter models.MerchantFilter, orderBy string, limit, offset int) ([]*models.Merchant, error) {
	db := r.getDB(ctx)

	var merchants []*models.Merchant
	query := r.applyFilter(db, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&merchants).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find merchants by filter: %w", err)
	}

	return merchants, nil
}

func (r *MerchantRepositoryImpl) applyFilter(db *gorm.DB, filter models.MerchantFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.Shop != nil {
		db = db.Where("shop = ?", *filter.Shop)
	}
	if filter.Plan != nil {
		db = db.Where("plan = ?", *filter.Plan)
	}
	if filter.IsActive != nil {
		db = db.Where("is_active = ?", *filter.IsActive)
	}
	if filter.NeedsReauth != nil {
		db = db.Where("needs_reauth = ?", *filter.NeedsReauth)
	}
	return db
}
