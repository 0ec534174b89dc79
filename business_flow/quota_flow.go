package businessflow

import (
	"context"

	"github.com/peymanslh/wanotifier/models"
	"github.com/peymanslh/wanotifier/repository"
	"github.com/peymanslh/wanotifier/utils"
)

// QuotaDecision is the outcome of a quota check
type QuotaDecision struct {
	Allowed bool
	Limit   int
	Used    int
}

// QuotaFlow enforces per-merchant message limits. Usage only moves forward;
// resets are an administrative operation outside this flow.
type QuotaFlow interface {
	CheckAndReserve(ctx context.Context, merchant *models.Merchant) (*QuotaDecision, error)
	Commit(ctx context.Context, merchant *models.Merchant) error
}

// QuotaFlowImpl implements QuotaFlow
type QuotaFlowImpl struct {
	merchantRepo repository.MerchantRepository
}

func NewQuotaFlow(merchantRepo repository.MerchantRepository) QuotaFlow {
	return &QuotaFlowImpl{merchantRepo: merchantRepo}
}

// CheckAndReserve rejects a send that would reach the limit. Trial merchants
// are checked against the trial counter, paid plans against plan usage.
func (f *QuotaFlowImpl) CheckAndReserve(ctx context.Context, merchant *models.Merchant) (*QuotaDecision, error) {
	if merchant == nil {
		return nil, ErrMerchantNotFound
	}

	limit, used := f.limitAndUsage(merchant)
	decision := &QuotaDecision{
		Allowed: used < limit,
		Limit:   limit,
		Used:    used,
	}
	return decision, nil
}

// Commit consumes one unit of quota after a confirmed successful send
func (f *QuotaFlowImpl) Commit(ctx context.Context, merchant *models.Merchant) error {
	if merchant == nil {
		return ErrMerchantNotFound
	}
	return f.merchantRepo.IncrementUsage(ctx, merchant.ID, utils.IsTrialPlan(merchant.Plan))
}

func (f *QuotaFlowImpl) limitAndUsage(merchant *models.Merchant) (int, int) {
	if utils.IsTrialPlan(merchant.Plan) {
		limit := merchant.TrialLimit
		if limit <= 0 {
			limit = utils.DefaultTrialLimit
		}
		return limit, merchant.TrialUsage
	}
	limit, ok := utils.PlanMessageLimits[merchant.Plan]
	if !ok {
		// Unknown paid plans fall back to the trial allowance rather than
		// sending unmetered.
		limit = utils.DefaultTrialLimit
	}
	return limit, merchant.Usage
}
