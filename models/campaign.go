package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CampaignStatus represents the status of a bulk campaign
type CampaignStatus string

const (
	CampaignStatusPending   CampaignStatus = "pending"
	CampaignStatusSending   CampaignStatus = "sending"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusPending, CampaignStatusSending, CampaignStatusCompleted:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// ContactStatus is a per-contact delivery outcome within a campaign
type ContactStatus string

const (
	ContactStatusPending ContactStatus = "pending"
	ContactStatusSent    ContactStatus = "sent"
	ContactStatusFailed  ContactStatus = "failed"
)

// CampaignContact is one recipient embedded in the campaign's contact list
type CampaignContact struct {
	Name   string        `json:"name"`
	Phone  string        `json:"phone"`
	Status ContactStatus `json:"status"`
	Error  string        `json:"error,omitempty"`
}

// CampaignContacts is the JSONB-embedded contact list of a campaign
type CampaignContacts []CampaignContact

// Value implements the driver.Valuer interface for CampaignContacts
func (c CampaignContacts) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements the sql.Scanner interface for CampaignContacts
func (c *CampaignContacts) Scan(value any) error {
	if value == nil {
		*c = CampaignContacts{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into CampaignContacts", value)
	}

	return json.Unmarshal(bytes, c)
}

// Campaign is a merchant-run bulk outbound send. Lifecycle: pending →
// sending → completed (terminal; a re-run starts a new campaign).
type Campaign struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	MerchantID uint      `gorm:"not null;index:idx_campaigns_merchant_id" json:"merchant_id"`

	Name    string `gorm:"size:255;not null" json:"name"`
	Type    string `gorm:"size:50;not null;default:'broadcast'" json:"type"`
	Message string `gorm:"type:text;not null" json:"message"`

	Status   CampaignStatus   `gorm:"type:varchar(20);not null;default:'pending';index:idx_campaigns_status" json:"status"`
	Contacts CampaignContacts `gorm:"type:jsonb;not null" json:"contacts"`

	SentCount   int `gorm:"not null;default:0" json:"sent_count"`
	FailedCount int `gorm:"not null;default:0" json:"failed_count"`
	TotalCount  int `gorm:"not null;default:0" json:"total_count"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_campaigns_created_at" json:"created_at"`
	UpdatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	// Relations
	Merchant *Merchant `gorm:"foreignKey:MerchantID;references:ID" json:"merchant,omitempty"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate is called before creating a new record
func (c *Campaign) BeforeCreate() error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	return nil
}

// CampaignFilter represents filter criteria for campaign queries
type CampaignFilter struct {
	ID         *uint
	UUID       *uuid.UUID
	MerchantID *uint
	Status     *CampaignStatus
}
