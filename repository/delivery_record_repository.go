package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/peymanslh/wanotifier/models"
	"github.com/peymanslh/wanotifier/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeliveryRecordRepositoryImpl implements the DeliveryRecordRepository interface
type DeliveryRecordRepositoryImpl struct {
	*BaseRepository[models.DeliveryRecord, models.DeliveryRecordFilter]
}

// NewDeliveryRecordRepository creates a new delivery record repository
func NewDeliveryRecordRepository(db *gorm.DB) DeliveryRecordRepository {
	return &DeliveryRecordRepositoryImpl{
		BaseRepository: NewBaseRepository[models.DeliveryRecord, models.DeliveryRecordFilter](db),
	}
}

// HasOpenRecord reports whether an open record (pending/confirmed/recovered)
// already exists for (merchant, event) created at or after since.
func (r *DeliveryRecordRepositoryImpl) HasOpenRecord(ctx context.Context, merchantID uint, eventID string, since time.Time) (bool, error) {
	db := r.getDB(ctx)

	var count int64
	err := db.Model(&models.DeliveryRecord{}).
		Where("merchant_id = ? AND event_id = ? AND status IN ? AND created_at >= ?",
			merchantID, eventID, models.OpenDeliveryStatuses, since).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check open delivery record: %w", err)
	}

	return count > 0, nil
}

// Claim attempts to insert the record as the idempotency lock for its
// (merchant, event, epoch bucket) key. The insert is a single conditional
// statement: ON CONFLICT DO NOTHING on the unique claim index. It returns
// false when another concurrent delivery of the same event already holds the
// claim. Never split this into a find-then-insert.
func (r *DeliveryRecordRepositoryImpl) Claim(ctx context.Context, record *models.DeliveryRecord) (bool, error) {
	db := r.getDB(ctx)

	if record.CreatedAt.IsZero() {
		record.CreatedAt = utils.UTCNow()
	}
	if record.EpochBucket == 0 {
		record.EpochBucket = utils.EpochBucket(record.CreatedAt, utils.ClaimBucketSeconds)
	}
	if record.Status == "" {
		record.Status = models.DeliveryStatusPending
	}

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "merchant_id"}, {Name: "event_id"}, {Name: "epoch_bucket"}},
		DoNothing: true,
	}).Create(record)
	if res.Error != nil {
		return false, fmt.Errorf("failed to claim delivery record: %w", res.Error)
	}

	return res.RowsAffected > 0, nil
}

// Finalize sets the terminal (or resting) status of a record, with an
// optional human-readable error reason.
func (r *DeliveryRecordRepositoryImpl) Finalize(ctx context.Context, recordID uint, status models.DeliveryStatus, errText *string) error {
	db := r.getDB(ctx)

	return db.Model(&models.DeliveryRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]any{
			"status":     status,
			"error":      errText,
			"updated_at": utils.UTCNow(),
		}).Error
}

// SetDispatched stores the resolved destination and composed message
// alongside the post-dispatch status.
func (r *DeliveryRecordRepositoryImpl) SetDispatched(ctx context.Context, recordID uint, recipient, message string, status models.DeliveryStatus) error {
	db := r.getDB(ctx)

	return db.Model(&models.DeliveryRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]any{
			"recipient":  recipient,
			"message":    message,
			"status":     status,
			"updated_at": utils.UTCNow(),
		}).Error
}

// LatestByEvent returns the most recent record for (merchant, event) created
// at or after since, regardless of status.
func (r *DeliveryRecordRepositoryImpl) LatestByEvent(ctx context.Context, merchantID uint, eventID string, since time.Time) (*models.DeliveryRecord, error) {
	db := r.getDB(ctx)

	var record models.DeliveryRecord
	err := db.Where("merchant_id = ? AND event_id = ? AND created_at >= ?", merchantID, eventID, since).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find delivery record for event %s: %w", eventID, err)
	}

	return &record, nil
}

// PruneOlderThan deletes records created before the cutoff. Records outside
// the claim window are not needed for correctness.
func (r *DeliveryRecordRepositoryImpl) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	db := r.getDB(ctx)

	res := db.Where("created_at < ?", cutoff).Delete(&models.DeliveryRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune delivery records: %w", res.Error)
	}

	return res.RowsAffected, nil
}

// ByFilter retrieves delivery records based on filter criteria
func (r *DeliveryRecordRepositoryImpl) ByFilter(ctx context.Context, filter models.DeliveryRecordFilter, orderBy string, limit, offset int) ([]*models.DeliveryRecord, error) {
	db := r.getDB(ctx)

	var records []*models.DeliveryRecord
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

	err := query.Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find delivery records by filter: %w", err)
	}

	return records, nil
}

func (r *DeliveryRecordRepositoryImpl) applyFilter(db *gorm.DB, filter models.DeliveryRecordFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.MerchantID != nil {
		db = db.Where("merchant_id = ?", *filter.MerchantID)
	}
	if filter.EventID != nil {
		db = db.Where("event_id = ?", *filter.EventID)
	}
	if filter.Type != nil {
		db = db.Where("type = ?", *filter.Type)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return db
}
