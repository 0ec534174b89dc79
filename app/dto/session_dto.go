package dto

// ConnectSessionResponse is returned by the connect endpoint
type ConnectSessionResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// PairingCodeRequest asks the provider for a short-lived numeric pairing code
type PairingCodeRequest struct {
	Phone string `json:"phone" validate:"required,min=7,max=20"`
}

// PairingCodeResponse carries the provider-issued pairing code
type PairingCodeResponse struct {
	Message     string `json:"message"`
	PairingCode string `json:"pairing_code"`
}

// SessionStatusResponse reports the reconciled connection state: the
// persisted status cross-checked against the live in-process handle.
type SessionStatusResponse struct {
	Status          string  `json:"status"`
	Authenticated   bool    `json:"authenticated"`
	PhoneNumber     *string `json:"phone_number,omitempty"`
	QRCode          *string `json:"qr_code,omitempty"`
	PairingCode     *string `json:"pairing_code,omitempty"`
	LastConnectedAt *string `json:"last_connected_at,omitempty"`
	LastError       *string `json:"last_error,omitempty"`
}

// SessionEvent is one live-feed item published on a merchant's channel
type SessionEvent struct {
	MerchantID  uint   `json:"merchant_id"`
	Kind        string `json:"kind"`
	Status      string `json:"status,omitempty"`
	QRCode      string `json:"qr_code,omitempty"`
	PairingCode string `json:"pairing_code,omitempty"`
	Error       string `json:"error,omitempty"`
	At          string `json:"at"`
}
