package models

import (
	"time"
)

// AutomationStat holds additive per-merchant counters for one automation
// type. Counters are only ever incremented and are never read for
// decision-making in the pipeline.
type AutomationStat struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	MerchantID uint           `gorm:"not null;uniqueIndex:uk_automation_stats_merchant_type" json:"merchant_id"`
	Type       AutomationType `gorm:"type:varchar(50);not null;uniqueIndex:uk_automation_stats_merchant_type" json:"type"`

	Sent      int64   `gorm:"not null;default:0" json:"sent"`
	Recovered int64   `gorm:"not null;default:0" json:"recovered"`
	Revenue   float64 `gorm:"not null;default:0" json:"revenue"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	// Relations
	Merchant *Merchant `gorm:"foreignKey:MerchantID;references:ID" json:"merchant,omitempty"`
}

func (AutomationStat) TableName() string {
	return "automation_stats"
}

// AutomationStatFilter represents filter criteria for stat queries
type AutomationStatFilter struct {
	ID         *uint
	MerchantID *uint
	Type       *AutomationType
}
