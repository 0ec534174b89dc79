package dto

// CampaignContactRequest is one recipient of a broadcast campaign
type CampaignContactRequest struct {
	Name  string `json:"name" validate:"max=100"`
	Phone string `json:"phone" validate:"required,min=7,max=20"`
}

// CreateCampaignRequest creates a broadcast campaign in the pending state.
// The scheduler picks it up and dispatches in rate-limited batches.
type CreateCampaignRequest struct {
	Name     string                   `json:"name" validate:"required,min=1,max=200"`
	Message  string                   `json:"message" validate:"required,min=1,max=4096"`
	Contacts []CampaignContactRequest `json:"contacts" validate:"required,min=1,max=10000,dive"`
}

// CampaignResponse is the API view of a campaign
type CampaignResponse struct {
	UUID        string  `json:"uuid"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Status      string  `json:"status"`
	SentCount   int     `json:"sent_count"`
	FailedCount int     `json:"failed_count"`
	TotalCount  int     `json:"total_count"`
	StartedAt   *string `json:"started_at,omitempty"`
	EndedAt     *string `json:"ended_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// CampaignListResponse wraps a page of campaigns
type CampaignListResponse struct {
	Campaigns []CampaignResponse `json:"campaigns"`
	Total     int                `json:"total"`
}
