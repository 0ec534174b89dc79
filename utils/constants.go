package utils

import (
	"time"
)

// Idempotency constants
const (
	// ClaimWindow is the recency window used both for duplicate suppression
	// and for bucketing the idempotency claim key (15 minutes)
	ClaimWindow = 15 * time.Minute

	// ClaimBucketSeconds is the epoch-bucket size for the delivery record
	// unique key, equal to ClaimWindow in seconds
	ClaimBucketSeconds = int64(ClaimWindow / time.Second)
)

// Campaign dispatch constants
const (
	// CampaignBatchSize is the number of contacts sent concurrently per batch
	CampaignBatchSize = 5

	// CampaignBatchDelay is the pause between batches to respect provider rate limits
	CampaignBatchDelay = 2 * time.Second
)

// Provider constants
const (
	// ReachabilityTimeout bounds the advisory reachability check; on timeout
	// the pipeline proceeds optimistically
	ReachabilityTimeout = 5 * time.Second
)

// Quota constants
const (
	// DefaultTrialLimit is the message allowance for merchants without a paid plan
	DefaultTrialLimit = 50
)

// PlanMessageLimits maps plan identifiers to their monthly message allowance.
// Plans not listed here (or the empty/trial/free/none pseudo-plans) fall back
// to the merchant's trial limit.
var PlanMessageLimits = map[string]int{
	"basic":     1000,
	"growth":    5000,
	"pro":       20000,
	"unlimited": 1000000,
}

// IsTrialPlan reports whether the plan identifier denotes an unpaid merchant
func IsTrialPlan(plan string) bool {
	switch plan {
	case "", "trial", "free", "none":
		return true
	default:
		return false
	}
}

// Retention constants
const (
	// DeliveryRecordRetention is how long delivery records are kept before pruning
	DeliveryRecordRetention = 90 * 24 * time.Hour
)

// ContextKey is the type used for context values set by middleware
type ContextKey string

// MerchantIDKey carries the authenticated merchant ID through the request context
const MerchantIDKey ContextKey = "merchant_id"
