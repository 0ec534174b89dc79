package models

import (
	"time"

	"github.com/lib/pq"
)

// MessageTemplate is a merchant-authored message body for one automation
// type, with embedded placeholder tokens. When no template row exists for a
// (merchant, type) pair the hardcoded default body for that type is used.
type MessageTemplate struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	MerchantID uint           `gorm:"not null;uniqueIndex:uk_message_templates_merchant_type" json:"merchant_id"`
	Type       AutomationType `gorm:"type:varchar(50);not null;uniqueIndex:uk_message_templates_merchant_type" json:"type"`
	Body       string         `gorm:"type:text;not null" json:"body"`
	Enabled    *bool          `gorm:"default:true" json:"enabled"`

	// PollOptions, when set, turns the message into a provider poll
	PollOptions pq.StringArray `gorm:"type:text[]" json:"poll_options,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	// Relations
	Merchant *Merchant `gorm:"foreignKey:MerchantID;references:ID" json:"merchant,omitempty"`
}

func (MessageTemplate) TableName() string {
	return "message_templates"
}

// IsEnabled reports whether the template should be used for composing.
// A nil flag counts as enabled, matching the column default.
func (t *MessageTemplate) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// MessageTemplateFilter represents filter criteria for template queries
type MessageTemplateFilter struct {
	ID         *uint
	MerchantID *uint
	Type       *AutomationType
	Enabled    *bool
}

// DefaultTemplateBodies holds the fallback body per automation type, used
// when the merchant has not authored a template.
var DefaultTemplateBodies = map[AutomationType]string{
	AutomationTypeOrderConfirmation: "Hi {{customer_name}}! Your order {{order_number}} from {{store_name}} has been confirmed. Total: {{total_price}}. We will deliver to {{address}}, {{city}}.",
	AutomationTypeAdminOrderAlert:   "New order {{order_number}} on {{store_name}}: {{items}} for {{total_price}}. Customer: {{customer_name}} ({{phone}}).",
	AutomationTypeOrderCancellation: "Hi {{customer_name}}, your order {{order_number}} from {{store_name}} has been cancelled. Reply here if this was a mistake.",
	AutomationTypeOrderFulfillment:  "Good news {{customer_name}}! Your order {{order_number}} from {{store_name}} has shipped. Track it here: {{tracking_link}}",
	AutomationTypeAbandonedCart:     "Hi {{customer_name}}, you left {{items}} in your cart at {{store_name}}. Complete your purchase of {{total_price}} before it sells out!",
}

// DefaultBody returns the hardcoded fallback body for an automation type
func DefaultBody(t AutomationType) string {
	return DefaultTemplateBodies[t]
}
