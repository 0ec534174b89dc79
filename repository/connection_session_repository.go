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

// ConnectionSessionRepositoryImpl implements the ConnectionSessionRepository interface
type ConnectionSessionRepositoryImpl struct {
	db *gorm.DB
}

// NewConnectionSessionRepository creates a new connection session repository
func NewConnectionSessionRepository(db *gorm.DB) ConnectionSessionRepository {
	return &ConnectionSessionRepositoryImpl{db: db}
}

func (r *ConnectionSessionRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}

// ByMerchant retrieves the session row for a merchant (at most one exists)
func (r *ConnectionSessionRepositoryImpl) ByMerchant(ctx context.Context, merchantID uint) (*models.ConnectionSession, error) {
	db := r.getDB(ctx)

	var session models.ConnectionSession
	err := db.Where("merchant_id = ?", merchantID).Last(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find connection session for merchant %d: %w", merchantID, err)
	}

	return &session, nil
}

// Upsert creates or replaces the session row for its merchant. Sessions are
// reset in place, never deleted.
// All returns every persisted session, used for startup reconciliation
func (r *ConnectionSessionRepositoryImpl) All(ctx context.Context) ([]*models.ConnectionSession, error) {
	db := r.getDB(ctx)

	var sessions []*models.ConnectionSession
	if err := db.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to list connection sessions: %w", err)
	}
	return sessions, nil
}

func (r *ConnectionSessionRepositoryImpl) Upsert(ctx context.Context, session *models.ConnectionSession) error {
	db := r.getDB(ctx)

	session.UpdatedAt = utils.UTCNow()
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "merchant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "phone_number", "device_id", "qr_code", "pairing_code",
			"last_connected_at", "last_error", "updated_at",
		}),
	}).Create(session).Error
}

// UpdateFields patches individual session columns for a merchant
func (r *ConnectionSessionRepositoryImpl) UpdateFields(ctx context.Context, merchantID uint, fields map[string]any) error {
	db := r.getDB(ctx)

	fields["updated_at"] = utils.UTCNow()
	return db.Model(&models.ConnectionSession{}).
		Where("merchant_id = ?", merchantID).
		Updates(fields).Error
}
