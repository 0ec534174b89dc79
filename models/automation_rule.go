package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// AutomationType identifies the kind of automated message an event produces
type AutomationType string

const (
	AutomationTypeOrderConfirmation AutomationType = "order-confirmation"
	AutomationTypeAdminOrderAlert   AutomationType = "admin-order-alert"
	AutomationTypeOrderCancellation AutomationType = "order-cancellation"
	AutomationTypeOrderFulfillment  AutomationType = "order-fulfillment"
	AutomationTypeAbandonedCart     AutomationType = "abandoned-cart"
)

// String returns the string representation of the automation type
func (t AutomationType) String() string {
	return string(t)
}

// Valid checks if the automation type is valid
func (t AutomationType) Valid() bool {
	switch t {
	case AutomationTypeOrderConfirmation, AutomationTypeAdminOrderAlert,
		AutomationTypeOrderCancellation, AutomationTypeOrderFulfillment,
		AutomationTypeAbandonedCart:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for AutomationType
func (t *AutomationType) Scan(value any) error {
	if value == nil {
		*t = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*t = AutomationType(v)
	case []byte:
		*t = AutomationType(string(v))
	default:
		return fmt.Errorf("cannot scan %T into AutomationType", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for AutomationType
func (t AutomationType) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid AutomationType: %s", t)
	}
	return string(t), nil
}

// AutomationRule toggles whether an event type produces an outbound message
// for one merchant. Exactly one rule exists per (merchant, type) pair.
type AutomationRule struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	MerchantID uint           `gorm:"not null;uniqueIndex:uk_automation_rules_merchant_type" json:"merchant_id"`
	Type       AutomationType `gorm:"type:varchar(50);not null;uniqueIndex:uk_automation_rules_merchant_type" json:"type"`
	Enabled    *bool          `gorm:"default:true" json:"enabled"`
	CreatedAt  time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	// Relations
	Merchant *Merchant `gorm:"foreignKey:MerchantID;references:ID" json:"merchant,omitempty"`
}

func (AutomationRule) TableName() string {
	return "automation_rules"
}

// AutomationRuleFilter represents filter criteria for automation rule queries
type AutomationRuleFilter struct {
	ID         *uint
	MerchantID *uint
	Type       *AutomationType
	Enabled    *bool
}
