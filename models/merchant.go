// Package models contains domain entities and business models for the notification engine
package models

import (
	"time"

	"github.com/google/uuid"
)

// Merchant represents a tenant: one installed shop. All other entities are
// partitioned by merchant ID.
type Merchant struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_merchants_uuid" json:"uuid"`

	// Shop is the unique tenant key (shop domain, e.g. acme.myshopify.com)
	Shop string `gorm:"size:255;not null;uniqueIndex:uk_merchants_shop" json:"shop"`

	// AccessToken authenticates calls back to the commerce platform
	AccessToken string `gorm:"size:255" json:"-"`

	// Provider selects the messaging-channel plugin for this merchant
	Provider string `gorm:"size:50;not null;default:'whatsapp'" json:"provider"`

	// AdminPhone receives admin order alerts when configured
	AdminPhone *string `gorm:"size:20" json:"admin_phone,omitempty"`

	// Plan and usage counters. Trial usage is tracked separately from plan
	// usage so switching plans keeps trial-consumption history.
	Plan       string `gorm:"size:50;not null;default:''" json:"plan"`
	Usage      int    `gorm:"not null;default:0" json:"usage"`
	TrialUsage int    `gorm:"not null;default:0" json:"trial_usage"`
	TrialLimit int    `gorm:"not null;default:50" json:"trial_limit"`

	IsActive    *bool `gorm:"default:true;index:idx_merchants_is_active" json:"is_active"`
	NeedsReauth *bool `gorm:"default:false" json:"needs_reauth"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_merchants_created_at" json:"created_at"`
	UpdatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// Relations
	AutomationRules []AutomationRule   `gorm:"foreignKey:MerchantID" json:"-"`
	Templates       []MessageTemplate  `gorm:"foreignKey:MerchantID" json:"-"`
	DeliveryRecords []DeliveryRecord   `gorm:"foreignKey:MerchantID" json:"-"`
	Stats           []AutomationStat   `gorm:"foreignKey:MerchantID" json:"-"`
	Session         *ConnectionSession `gorm:"foreignKey:MerchantID" json:"session,omitempty"`
	Campaigns       []Campaign         `gorm:"foreignKey:MerchantID" json:"-"`
}

func (Merchant) TableName() string {
	return "merchants"
}

// MerchantFilter represents filter criteria for merchant queries
type MerchantFilter struct {
	ID          *uint
	UUID        *uuid.UUID
	Shop        *string
	Plan        *string
	IsActive    *bool
	NeedsReauth *bool
}
