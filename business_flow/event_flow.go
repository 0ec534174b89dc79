package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/peymanslh/wanotifier/app/dto"
	"github.com/peymanslh/wanotifier/app/services"
	"github.com/peymanslh/wanotifier/models"
	"github.com/peymanslh/wanotifier/repository"
	"github.com/peymanslh/wanotifier/utils"
)

// Order tags mirrored back to the source platform
const (
	TagNotified     = "wa-notified"
	TagUnreachable  = "wa-unreachable"
	TagLimitReached = "wa-limit-reached"
)

var mirroredTags = []string{TagNotified, TagUnreachable, TagLimitReached}

// EventFlow is the idempotent processor for inbound commerce events. Each
// handler runs dedupe and the atomic claim synchronously so the webhook can
// be acknowledged fast, then continues delivery in the background.
type EventFlow interface {
	HandleOrderCreated(ctx context.Context, shop string, event *dto.OrderEvent) error
	HandleOrderCancelled(ctx context.Context, shop string, event *dto.OrderEvent) error
	HandleOrderFulfilled(ctx context.Context, shop string, event *dto.OrderEvent) error
	HandleAbandonedCart(ctx context.Context, shop string, event *dto.OrderEvent) error
	HandleOrderPaid(ctx context.Context, shop string, event *dto.OrderEvent) error
}

// EventFlowImpl implements EventFlow
type EventFlowImpl struct {
	merchantRepo repository.MerchantRepository
	ruleRepo     repository.AutomationRuleRepository
	templateRepo repository.MessageTemplateRepository
	deliveryRepo repository.DeliveryRecordRepository
	statRepo     repository.AutomationStatRepository
	sessions     services.SessionManager
	shopify      services.ShopifyClient
	quota        QuotaFlow
	logger       *log.Logger

	// spawn runs the post-acknowledgment continuation; tests replace it to
	// run inline.
	spawn func(fn func())
}

func NewEventFlow(
	merchantRepo repository.MerchantRepository,
	ruleRepo repository.AutomationRuleRepository,
	templateRepo repository.MessageTemplateRepository,
	deliveryRepo repository.DeliveryRecordRepository,
	statRepo repository.AutomationStatRepository,
	sessions services.SessionManager,
	shopify services.ShopifyClient,
	quota QuotaFlow,
	logger *log.Logger,
) *EventFlowImpl {
	if logger == nil {
		logger = log.Default()
	}
	return &EventFlowImpl{
		merchantRepo: merchantRepo,
		ruleRepo:     ruleRepo,
		templateRepo: templateRepo,
		deliveryRepo: deliveryRepo,
		statRepo:     statRepo,
		sessions:     sessions,
		shopify:      shopify,
		quota:        quota,
		logger:       logger,
		spawn:        func(fn func()) { go fn() },
	}
}

// HandleOrderCreated fires the customer order confirmation and, when
// enabled, a separate admin alert for the same order.
func (f *EventFlowImpl) HandleOrderCreated(ctx context.Context, shop string, event *dto.OrderEvent) error {
	merchant, err := f.activeMerchant(ctx, shop)
	if err != nil {
		return err
	}
	if err := f.process(ctx, merchant, event, models.AutomationTypeOrderConfirmation); err != nil {
		return err
	}
	return f.process(ctx, merchant, event, models.AutomationTypeAdminOrderAlert)
}

func (f *EventFlowImpl) HandleOrderCancelled(ctx context.Context, shop string, event *dto.OrderEvent) error {
	merchant, err := f.activeMerchant(ctx, shop)
	if err != nil {
		return err
	}
	return f.process(ctx, merchant, event, models.AutomationTypeOrderCancellation)
}

func (f *EventFlowImpl) HandleOrderFulfilled(ctx context.Context, shop string, event *dto.OrderEvent) error {
	merchant, err := f.activeMerchant(ctx, shop)
	if err != nil {
		return err
	}
	return f.process(ctx, merchant, event, models.AutomationTypeOrderFulfillment)
}

func (f *EventFlowImpl) HandleAbandonedCart(ctx context.Context, shop string, event *dto.OrderEvent) error {
	merchant, err := f.activeMerchant(ctx, shop)
	if err != nil {
		return err
	}
	return f.process(ctx, merchant, event, models.AutomationTypeAbandonedCart)
}

// HandleOrderPaid closes the loop on abandoned-cart recoveries: when a paid
// order references an earlier abandoned checkout, the open delivery record
// flips to recovered and the stat counters absorb the revenue. No new
// delivery record is created.
func (f *EventFlowImpl) HandleOrderPaid(ctx context.Context, shop string, event *dto.OrderEvent) error {
	merchant, err := f.activeMerchant(ctx, shop)
	if err != nil {
		return err
	}
	if event == nil || event.CartToken == "" {
		return nil
	}

	since := utils.UTCNow().Add(-utils.DeliveryRecordRetention)
	record, err := f.deliveryRepo.LatestByEvent(ctx, merchant.ID, event.CartToken, since)
	if err != nil {
		return err
	}
	if record == nil || record.Type != models.AutomationTypeAbandonedCart {
		return nil
	}
	if record.Status != models.DeliveryStatusPending {
		return nil
	}

	if err := f.deliveryRepo.Finalize(ctx, record.ID, models.DeliveryStatusRecovered, nil); err != nil {
		return err
	}
	if err := f.statRepo.IncrementRecovered(ctx, merchant.ID, models.AutomationTypeAbandonedCart, event.RevenueAmount()); err != nil {
		f.logger.Printf("failed to record recovery stats for merchant %d: %v", merchant.ID, err)
	}
	recordEventOutcome(models.AutomationTypeAbandonedCart, "recovered")
	return nil
}

func (f *EventFlowImpl) activeMerchant(ctx context.Context, shop string) (*models.Merchant, error) {
	merchant, err := f.merchantRepo.ByShop(ctx, shop)
	if err != nil {
		return nil, err
	}
	if merchant == nil {
		return nil, ErrMerchantNotFound
	}
	if !utils.IsTrue(merchant.IsActive) {
		return nil, ErrMerchantInactive
	}
	return merchant, nil
}

// claimEventID namespaces the admin alert so it never collides with the
// customer confirmation claim for the same order.
func claimEventID(eventID string, automationType models.AutomationType) string {
	if automationType == models.AutomationTypeAdminOrderAlert {
		return "admin:" + eventID
	}
	return eventID
}

// process runs dedupe and the atomic claim, then hands the rest of the
// pipeline to a background continuation. A nil return means the source can
// be acknowledged; duplicates are absorbed silently.
func (f *EventFlowImpl) process(ctx context.Context, merchant *models.Merchant, event *dto.OrderEvent, automationType models.AutomationType) error {
	if event == nil {
		return nil
	}
	eventID := event.EventID()
	if automationType == models.AutomationTypeAbandonedCart {
		// Claim under the cart token so the later paid order, which carries
		// the same cart_token, can find and recover this record.
		eventID = event.CartKey()
	}
	if eventID == "" {
		return nil
	}
	eventID = claimEventID(eventID, automationType)

	now := utils.UTCNow()
	since := now.Add(-utils.ClaimWindow)

	open, err := f.deliveryRepo.HasOpenRecord(ctx, merchant.ID, eventID, since)
	if err != nil {
		return err
	}
	if open {
		recordEventOutcome(automationType, "duplicate")
		return nil
	}

	record := &models.DeliveryRecord{
		MerchantID: merchant.ID,
		EventID:    eventID,
		Type:       automationType,
		Status:     models.DeliveryStatusPending,
	}
	claimed, err := f.deliveryRepo.Claim(ctx, record)
	if err != nil {
		return err
	}
	if !claimed {
		// A concurrent delivery of the same event won the race.
		recordEventOutcome(automationType, "duplicate")
		return nil
	}

	f.spawn(func() {
		f.continueDelivery(record, merchant, event, automationType)
	})
	return nil
}

// continueDelivery runs steps that may touch the network, after the webhook
// has been acknowledged. Any panic is converted into a failed record so the
// claim is never left dangling.
func (f *EventFlowImpl) continueDelivery(record *models.DeliveryRecord, merchant *models.Merchant, event *dto.OrderEvent, automationType models.AutomationType) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("unexpected failure: %v", r)
			f.logger.Printf("delivery %d panicked: %s", record.ID, msg)
			_ = f.deliveryRepo.Finalize(ctx, record.ID, models.DeliveryStatusFailed, &msg)
			recordEventOutcome(automationType, "failed")
		}
	}()

	if err := f.deliver(ctx, record, merchant, event, automationType); err != nil {
		f.finalizeOutcome(ctx, record, automationType, err)
	}
}

// deliver walks the post-claim pipeline and classifies every stop with a
// sentinel so callers can branch on errors.Is. A nil return means the
// message was dispatched and the bookkeeping is done.
func (f *EventFlowImpl) deliver(ctx context.Context, record *models.DeliveryRecord, merchant *models.Merchant, event *dto.OrderEvent, automationType models.AutomationType) error {
	rule, err := f.ruleRepo.ByMerchantAndType(ctx, merchant.ID, automationType)
	if err != nil {
		return fmt.Errorf("failed to load automation rule: %v", err)
	}
	if rule == nil || !utils.IsTrue(rule.Enabled) {
		return ErrAutomationDisabled
	}

	phone, event, err := f.resolveDestination(ctx, merchant, event, automationType)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamFetchFailure, err)
	}
	if phone == "" {
		return ErrMissingDestination
	}

	if !f.checkReachability(ctx, merchant, phone) {
		f.tagOrder(ctx, merchant, event, TagUnreachable)
		return ErrNotReachable
	}

	decision, err := f.quota.CheckAndReserve(ctx, merchant)
	if err != nil {
		return fmt.Errorf("quota check failed: %v", err)
	}
	if !decision.Allowed {
		f.tagOrder(ctx, merchant, event, TagLimitReached)
		return fmt.Errorf("%w: Limit Reached (%d/%d)", ErrQuotaExceeded, decision.Used, decision.Limit)
	}

	message, pollOptions := f.compose(ctx, merchant, event, automationType)

	if len(pollOptions) > 0 {
		err = f.sessions.SendPoll(ctx, merchant.ID, phone, message, pollOptions)
	} else {
		err = f.sessions.Send(ctx, merchant.ID, phone, message)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderSendFailure, err)
	}

	// Leave the record pending: it stays open until a customer response or
	// a recovery event resolves it.
	if err := f.deliveryRepo.SetDispatched(ctx, record.ID, phone, message, models.DeliveryStatusPending); err != nil {
		f.logger.Printf("failed to mark delivery %d dispatched: %v", record.ID, err)
	}
	if err := f.quota.Commit(ctx, merchant); err != nil {
		f.logger.Printf("failed to commit quota for merchant %d: %v", merchant.ID, err)
	}
	if err := f.statRepo.IncrementSent(ctx, merchant.ID, automationType); err != nil {
		f.logger.Printf("failed to record sent stats for merchant %d: %v", merchant.ID, err)
	}
	f.tagOrder(ctx, merchant, event, TagNotified)
	recordEventOutcome(automationType, "sent")
	return nil
}

// finalizeOutcome maps a classified delivery error onto the claimed record.
// A disabled automation resolves the claim as confirmed so duplicates stay
// suppressed; everything else fails the record with the reason.
func (f *EventFlowImpl) finalizeOutcome(ctx context.Context, record *models.DeliveryRecord, automationType models.AutomationType, err error) {
	status := models.DeliveryStatusFailed
	outcome := "failed"
	if errors.Is(err, ErrAutomationDisabled) {
		status = models.DeliveryStatusConfirmed
		outcome = "disabled"
	}
	reason := err.Error()
	if ferr := f.deliveryRepo.Finalize(ctx, record.ID, status, &reason); ferr != nil {
		f.logger.Printf("failed to finalize delivery %d: %v", record.ID, ferr)
	}
	recordEventOutcome(automationType, outcome)
}

// resolveDestination extracts the recipient's phone, refetching the order
// from the source platform once if the webhook payload had no usable number.
// Admin alerts always go to the merchant's configured admin phone.
func (f *EventFlowImpl) resolveDestination(ctx context.Context, merchant *models.Merchant, event *dto.OrderEvent, automationType models.AutomationType) (string, *dto.OrderEvent, error) {
	if automationType == models.AutomationTypeAdminOrderAlert {
		return utils.NormalizePhone(utils.Deref(merchant.AdminPhone), event.CountryHints()), event, nil
	}

	hints := event.CountryHints()
	for _, candidate := range event.PhoneCandidates() {
		if phone := utils.NormalizePhone(candidate, hints); phone != "" {
			return phone, event, nil
		}
	}

	if event.ID == 0 {
		return "", event, nil
	}
	fetched, err := f.shopify.FetchOrder(ctx, merchant.Shop, merchant.AccessToken, event.ID)
	if err != nil {
		f.logger.Printf("order refetch failed for merchant %d order %d: %v", merchant.ID, event.ID, err)
		return "", event, err
	}
	hints = fetched.CountryHints()
	for _, candidate := range fetched.PhoneCandidates() {
		if phone := utils.NormalizePhone(candidate, hints); phone != "" {
			return phone, fetched, nil
		}
	}
	return "", event, nil
}

// checkReachability asks the provider whether the number exists on the
// network. Ambiguity never blocks delivery: only an affirmative "no" stops
// the pipeline.
func (f *EventFlowImpl) checkReachability(ctx context.Context, merchant *models.Merchant, phone string) bool {
	reachable, err := f.sessions.CheckReachable(ctx, merchant.ID, phone)
	if err != nil {
		return true
	}
	return reachable
}

func (f *EventFlowImpl) compose(ctx context.Context, merchant *models.Merchant, event *dto.OrderEvent, automationType models.AutomationType) (string, []string) {
	body := models.DefaultBody(automationType)
	var pollOptions []string

	template, err := f.templateRepo.ByMerchantAndType(ctx, merchant.ID, automationType)
	if err != nil {
		f.logger.Printf("failed to load template for merchant %d: %v", merchant.ID, err)
	} else if template != nil && template.IsEnabled() {
		if template.Body != "" {
			body = template.Body
		}
		pollOptions = template.PollOptions
	}

	storeName, err := f.shopify.FetchShopName(ctx, merchant.Shop, merchant.AccessToken)
	if err != nil || storeName == "" {
		storeName = merchant.Shop
	}

	return utils.RenderTemplate(body, event.TemplateValues(storeName)), pollOptions
}

// tagOrder mirrors the delivery outcome onto the source platform. Tagging
// failures are logged and never fail the pipeline.
func (f *EventFlowImpl) tagOrder(ctx context.Context, merchant *models.Merchant, event *dto.OrderEvent, tag string) {
	if event == nil || event.ID == 0 {
		return
	}
	removeTags := make([]string, 0, len(mirroredTags)-1)
	for _, t := range mirroredTags {
		if t != tag {
			removeTags = append(removeTags, t)
		}
	}
	if err := f.shopify.TagOrder(ctx, merchant.Shop, merchant.AccessToken, event.ID, tag, removeTags); err != nil {
		f.logger.Printf("failed to tag order %d for merchant %d: %v", event.ID, merchant.ID, err)
	}
}
