// Package businessflow contains the core business logic for event-driven
// message automation and broadcast campaign dispatch.
package businessflow

import (
	"errors"

	"github.com/peymanslh/wanotifier/app/services"
)

// Business flow error constants
var (
	// Merchant-related errors
	ErrMerchantNotFound = errors.New("merchant not found")
	ErrMerchantInactive = errors.New("merchant is inactive")

	// Event processing errors
	ErrAutomationDisabled   = errors.New("automation is disabled")
	ErrMissingDestination   = errors.New("no destination phone number found")
	ErrNotReachable         = errors.New("recipient is not reachable on the messaging channel")
	ErrUpstreamFetchFailure = errors.New("failed to fetch order from upstream")

	// Quota errors
	ErrQuotaExceeded = errors.New("message quota exceeded")

	// Channel session errors
	ErrNotConnected        = services.ErrNotConnected
	ErrProviderSendFailure = errors.New("provider failed to send message")

	// Campaign errors
	ErrCampaignNotFound        = errors.New("campaign not found")
	ErrCampaignAccessDenied    = errors.New("campaign access denied")
	ErrCampaignNotPending      = errors.New("campaign is not in pending state")
	ErrCampaignContactsMissing = errors.New("campaign has no contacts")
)

func IsAutomationDisabled(err error) bool {
	return errors.Is(err, ErrAutomationDisabled)
}

func IsMissingDestination(err error) bool {
	return errors.Is(err, ErrMissingDestination)
}

func IsNotReachable(err error) bool {
	return errors.Is(err, ErrNotReachable)
}

func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}

func IsProviderSendFailure(err error) bool {
	return errors.Is(err, ErrProviderSendFailure)
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsCampaignAccessDenied(err error) bool {
	return errors.Is(err, ErrCampaignAccessDenied)
}
