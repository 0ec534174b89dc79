package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// ConnectionStatus represents the persisted state of a merchant's channel session
type ConnectionStatus string

const (
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
	ConnectionStatusConnecting   ConnectionStatus = "connecting"
	ConnectionStatusQRReady      ConnectionStatus = "qr_ready"
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusError        ConnectionStatus = "error"
)

// String returns the string representation of the status
func (s ConnectionStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s ConnectionStatus) Valid() bool {
	switch s {
	case ConnectionStatusDisconnected, ConnectionStatusConnecting,
		ConnectionStatusQRReady, ConnectionStatusConnected, ConnectionStatusError:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for ConnectionStatus
func (s *ConnectionStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = ConnectionStatus(v)
	case []byte:
		*s = ConnectionStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ConnectionStatus", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for ConnectionStatus
func (s ConnectionStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid ConnectionStatus: %s", s)
	}
	return string(s), nil
}

// ConnectionSession is the persisted channel-connection state for one
// merchant. It is the ground truth across process restarts: live in-memory
// handles are a cache that must reconcile against this row on startup, and a
// persisted "connected" with no live handle is stale, not ready-to-send.
// Rows are created on first connect and reset, never deleted.
type ConnectionSession struct {
	ID         uint             `gorm:"primaryKey" json:"id"`
	MerchantID uint             `gorm:"not null;uniqueIndex:uk_connection_sessions_merchant" json:"merchant_id"`
	Status     ConnectionStatus `gorm:"type:varchar(20);not null;default:'disconnected'" json:"status"`

	// Bound device identity once authenticated
	PhoneNumber *string `gorm:"size:20" json:"phone_number,omitempty"`
	DeviceID    *string `gorm:"size:255" json:"device_id,omitempty"`

	// Pairing artifacts, cleared on disconnect
	QRCode      *string `gorm:"type:text" json:"qr_code,omitempty"`
	PairingCode *string `gorm:"size:16" json:"pairing_code,omitempty"`

	LastConnectedAt *time.Time `json:"last_connected_at,omitempty"`
	LastError       *string    `gorm:"type:text" json:"last_error,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	// Relations
	Merchant *Merchant `gorm:"foreignKey:MerchantID;references:ID" json:"merchant,omitempty"`
}

func (ConnectionSession) TableName() string {
	return "connection_sessions"
}

// ConnectionSessionFilter represents filter criteria for session queries
type ConnectionSessionFilter struct {
	ID         *uint
	MerchantID *uint
	Status     *ConnectionStatus
}
