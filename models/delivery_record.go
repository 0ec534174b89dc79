package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// DeliveryStatus represents the status of a delivery record
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusConfirmed DeliveryStatus = "confirmed"
	DeliveryStatusCancelled DeliveryStatus = "cancelled"
	DeliveryStatusRecovered DeliveryStatus = "recovered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// String returns the string representation of the status
func (s DeliveryStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusConfirmed, DeliveryStatusCancelled,
		DeliveryStatusRecovered, DeliveryStatusFailed:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for DeliveryStatus
func (s *DeliveryStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = DeliveryStatus(v)
	case []byte:
		*s = DeliveryStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into DeliveryStatus", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for DeliveryStatus
func (s DeliveryStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid DeliveryStatus: %s", s)
	}
	return string(s), nil
}

// OpenDeliveryStatuses is the "already being handled or handled" set used for
// duplicate suppression: a record in any of these states within the recency
// window means the event is claimed.
var OpenDeliveryStatuses = []DeliveryStatus{
	DeliveryStatusPending,
	DeliveryStatusConfirmed,
	DeliveryStatusRecovered,
}

// DeliveryRecord is one processing attempt for one external event. It doubles
// as the idempotency lock: the unique (merchant_id, event_id, epoch_bucket)
// key makes the insert an atomic claim, so concurrent duplicate deliveries of
// the same event race on a single conditional insert instead of a
// read-then-write.
type DeliveryRecord struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	MerchantID uint   `gorm:"not null;uniqueIndex:uk_delivery_records_claim;index:idx_delivery_records_merchant_id" json:"merchant_id"`
	EventID    string `gorm:"size:64;not null;uniqueIndex:uk_delivery_records_claim" json:"event_id"`

	// EpochBucket is created_at bucketed by the claim window; it scopes the
	// unique claim key in time so stale records do not block fresh attempts.
	EpochBucket int64 `gorm:"not null;uniqueIndex:uk_delivery_records_claim" json:"epoch_bucket"`

	Type      AutomationType `gorm:"type:varchar(50);not null" json:"type"`
	Status    DeliveryStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_delivery_records_status" json:"status"`
	Recipient string         `gorm:"size:20" json:"recipient"`
	Message   string         `gorm:"type:text" json:"message"`
	Error     *string        `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_delivery_records_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	// Relations
	Merchant *Merchant `gorm:"foreignKey:MerchantID;references:ID" json:"merchant,omitempty"`
}

func (DeliveryRecord) TableName() string {
	return "delivery_records"
}

// DeliveryRecordFilter represents filter criteria for delivery record queries
type DeliveryRecordFilter struct {
	ID            *uint
	MerchantID    *uint
	EventID       *string
	Type          *AutomationType
	Status        *DeliveryStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
