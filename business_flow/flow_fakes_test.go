package businessflow

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/peymanslh/wanotifier/models"
	"github.com/peymanslh/wanotifier/utils"
)

// In-memory repository fakes. Claim mirrors the real conditional insert:
// uniqueness on (merchant, event, epoch bucket) under a single lock, so the
// concurrency tests exercise the same race the database resolves.

var errNotImplemented = errors.New("not implemented in fake")

type typeKey struct {
	merchantID uint
	t          models.AutomationType
}

type claimKey struct {
	merchantID uint
	eventID    string
	bucket     int64
}

// fakeMerchantRepo

type fakeMerchantRepo struct {
	mu        sync.Mutex
	merchants map[uint]*models.Merchant
}

func newFakeMerchantRepo(merchants ...*models.Merchant) *fakeMerchantRepo {
	r := &fakeMerchantRepo{merchants: make(map[uint]*models.Merchant)}
	for _, m := range merchants {
		r.merchants[m.ID] = m
	}
	return r
}

func (r *fakeMerchantRepo) ByID(ctx context.Context, id uint) (*models.Merchant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.merchants[id], nil
}

func (r *fakeMerchantRepo) ByFilter(ctx context.Context, filter models.MerchantFilter, orderBy string, limit, offset int) ([]*models.Merchant, error) {
	return nil, errNotImplemented
}

func (r *fakeMerchantRepo) Save(ctx context.Context, merchant *models.Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if merchant.ID == 0 {
		merchant.ID = uint(len(r.merchants) + 1)
	}
	r.merchants[merchant.ID] = merchant
	return nil
}

func (r *fakeMerchantRepo) SaveBatch(ctx context.Context, merchants []*models.Merchant) error {
	for _, m := range merchants {
		if err := r.Save(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeMerchantRepo) ByShop(ctx context.Context, shop string) (*models.Merchant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.merchants {
		if m.Shop == shop {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeMerchantRepo) FirstOrCreateByShop(ctx context.Context, shop string) (*models.Merchant, error) {
	if m, _ := r.ByShop(ctx, shop); m != nil {
		return m, nil
	}
	m := &models.Merchant{Shop: shop, IsActive: utils.ToPtr(true)}
	return m, r.Save(ctx, m)
}

func (r *fakeMerchantRepo) Update(ctx context.Context, merchant *models.Merchant) error {
	return r.Save(ctx, merchant)
}

func (r *fakeMerchantRepo) UpdateFields(ctx context.Context, merchantID uint, fields map[string]any) error {
	return nil
}

func (r *fakeMerchantRepo) IncrementUsage(ctx context.Context, merchantID uint, trial bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.merchants[merchantID]
	if !ok {
		return ErrMerchantNotFound
	}
	if trial {
		m.TrialUsage++
	} else {
		m.Usage++
	}
	return nil
}

func (r *fakeMerchantRepo) Deactivate(ctx context.Context, merchantID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.merchants[merchantID]; ok {
		m.IsActive = utils.ToPtr(false)
	}
	return nil
}

// fakeRuleRepo

type fakeRuleRepo struct {
	mu    sync.Mutex
	rules map[typeKey]*models.AutomationRule
}

func newFakeRuleRepo(rules ...*models.AutomationRule) *fakeRuleRepo {
	r := &fakeRuleRepo{rules: make(map[typeKey]*models.AutomationRule)}
	for _, rule := range rules {
		r.rules[typeKey{rule.MerchantID, rule.Type}] = rule
	}
	return r
}

func (r *fakeRuleRepo) ByID(ctx context.Context, id uint) (*models.AutomationRule, error) {
	return nil, errNotImplemented
}

func (r *fakeRuleRepo) ByFilter(ctx context.Context, filter models.AutomationRuleFilter, orderBy string, limit, offset int) ([]*models.AutomationRule, error) {
	return nil, errNotImplemented
}

func (r *fakeRuleRepo) Save(ctx context.Context, rule *models.AutomationRule) error {
	return r.Upsert(ctx, rule)
}

func (r *fakeRuleRepo) SaveBatch(ctx context.Context, rules []*models.AutomationRule) error {
	for _, rule := range rules {
		if err := r.Upsert(ctx, rule); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeRuleRepo) ByMerchantAndType(ctx context.Context, merchantID uint, t models.AutomationType) (*models.AutomationRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rules[typeKey{merchantID, t}], nil
}

func (r *fakeRuleRepo) Upsert(ctx context.Context, rule *models.AutomationRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[typeKey{rule.MerchantID, rule.Type}] = rule
	return nil
}

// fakeTemplateRepo

type fakeTemplateRepo struct {
	mu        sync.Mutex
	templates map[typeKey]*models.MessageTemplate
}

func newFakeTemplateRepo(templates ...*models.MessageTemplate) *fakeTemplateRepo {
	r := &fakeTemplateRepo{templates: make(map[typeKey]*models.MessageTemplate)}
	for _, tpl := range templates {
		r.templates[typeKey{tpl.MerchantID, tpl.Type}] = tpl
	}
	return r
}

func (r *fakeTemplateRepo) ByID(ctx context.Context, id uint) (*models.MessageTemplate, error) {
	return nil, errNotImplemented
}

func (r *fakeTemplateRepo) ByFilter(ctx context.Context, filter models.MessageTemplateFilter, orderBy string, limit, offset int) ([]*models.MessageTemplate, error) {
	return nil, errNotImplemented
}

func (r *fakeTemplateRepo) Save(ctx context.Context, tpl *models.MessageTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[typeKey{tpl.MerchantID, tpl.Type}] = tpl
	return nil
}

func (r *fakeTemplateRepo) SaveBatch(ctx context.Context, tpls []*models.MessageTemplate) error {
	for _, tpl := range tpls {
		if err := r.Save(ctx, tpl); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeTemplateRepo) ByMerchantAndType(ctx context.Context, merchantID uint, t models.AutomationType) (*models.MessageTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.templates[typeKey{merchantID, t}], nil
}

// fakeDeliveryRepo

type fakeDeliveryRepo struct {
	mu      sync.Mutex
	nextID  uint
	records []*models.DeliveryRecord
	claims  map[claimKey]bool
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{claims: make(map[claimKey]bool)}
}

func (r *fakeDeliveryRepo) ByID(ctx context.Context, id uint) (*models.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, nil
}

func (r *fakeDeliveryRepo) ByFilter(ctx context.Context, filter models.DeliveryRecordFilter, orderBy string, limit, offset int) ([]*models.DeliveryRecord, error) {
	return nil, errNotImplemented
}

func (r *fakeDeliveryRepo) Save(ctx context.Context, record *models.DeliveryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record.ID == 0 {
		r.nextID++
		record.ID = r.nextID
	}
	r.records = append(r.records, record)
	return nil
}

func (r *fakeDeliveryRepo) SaveBatch(ctx context.Context, records []*models.DeliveryRecord) error {
	for _, rec := range records {
		if err := r.Save(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeDeliveryRepo) HasOpenRecord(ctx context.Context, merchantID uint, eventID string, since time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.MerchantID != merchantID || rec.EventID != eventID || rec.CreatedAt.Before(since) {
			continue
		}
		for _, s := range models.OpenDeliveryStatuses {
			if rec.Status == s {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *fakeDeliveryRepo) Claim(ctx context.Context, record *models.DeliveryRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = utils.UTCNow()
	}
	if record.EpochBucket == 0 {
		record.EpochBucket = utils.EpochBucket(record.CreatedAt, utils.ClaimBucketSeconds)
	}
	if record.Status == "" {
		record.Status = models.DeliveryStatusPending
	}

	key := claimKey{record.MerchantID, record.EventID, record.EpochBucket}
	if r.claims[key] {
		return false, nil
	}
	r.claims[key] = true
	r.nextID++
	record.ID = r.nextID
	r.records = append(r.records, record)
	return true, nil
}

func (r *fakeDeliveryRepo) Finalize(ctx context.Context, recordID uint, status models.DeliveryStatus, errText *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ID == recordID {
			rec.Status = status
			rec.Error = errText
			return nil
		}
	}
	return errors.New("delivery record not found")
}

func (r *fakeDeliveryRepo) SetDispatched(ctx context.Context, recordID uint, recipient, message string, status models.DeliveryStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ID == recordID {
			rec.Recipient = recipient
			rec.Message = message
			rec.Status = status
			return nil
		}
	}
	return errors.New("delivery record not found")
}

func (r *fakeDeliveryRepo) LatestByEvent(ctx context.Context, merchantID uint, eventID string, since time.Time) (*models.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matches := make([]*models.DeliveryRecord, 0, 1)
	for _, rec := range r.records {
		if rec.MerchantID == merchantID && rec.EventID == eventID && !rec.CreatedAt.Before(since) {
			matches = append(matches, rec)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return matches[0], nil
}

func (r *fakeDeliveryRepo) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.records[:0]
	var pruned int64
	for _, rec := range r.records {
		if rec.CreatedAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return pruned, nil
}

// all returns a snapshot of the stored records
func (r *fakeDeliveryRepo) all() []*models.DeliveryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.DeliveryRecord, len(r.records))
	copy(out, r.records)
	return out
}

// fakeStatRepo

type fakeStatRepo struct {
	mu    sync.Mutex
	stats map[typeKey]*models.AutomationStat
}

func newFakeStatRepo() *fakeStatRepo {
	return &fakeStatRepo{stats: make(map[typeKey]*models.AutomationStat)}
}

func (r *fakeStatRepo) ByID(ctx context.Context, id uint) (*models.AutomationStat, error) {
	return nil, errNotImplemented
}

func (r *fakeStatRepo) ByFilter(ctx context.Context, filter models.AutomationStatFilter, orderBy string, limit, offset int) ([]*models.AutomationStat, error) {
	return nil, errNotImplemented
}

func (r *fakeStatRepo) Save(ctx context.Context, stat *models.AutomationStat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats[typeKey{stat.MerchantID, stat.Type}] = stat
	return nil
}

func (r *fakeStatRepo) SaveBatch(ctx context.Context, stats []*models.AutomationStat) error {
	for _, s := range stats {
		if err := r.Save(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeStatRepo) get(merchantID uint, t models.AutomationType) *models.AutomationStat {
	key := typeKey{merchantID, t}
	stat, ok := r.stats[key]
	if !ok {
		stat = &models.AutomationStat{MerchantID: merchantID, Type: t}
		r.stats[key] = stat
	}
	return stat
}

func (r *fakeStatRepo) IncrementSent(ctx context.Context, merchantID uint, t models.AutomationType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.get(merchantID, t).Sent++
	return nil
}

func (r *fakeStatRepo) IncrementRecovered(ctx context.Context, merchantID uint, t models.AutomationType, revenue float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stat := r.get(merchantID, t)
	stat.Recovered++
	stat.Revenue += revenue
	return nil
}

func (r *fakeStatRepo) ByMerchantAndType(ctx context.Context, merchantID uint, t models.AutomationType) (*models.AutomationStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats[typeKey{merchantID, t}], nil
}

// fakeCampaignRepo

type fakeCampaignRepo struct {
	mu        sync.Mutex
	nextID    uint
	campaigns map[uint]*models.Campaign
}

func newFakeCampaignRepo(campaigns ...*models.Campaign) *fakeCampaignRepo {
	r := &fakeCampaignRepo{campaigns: make(map[uint]*models.Campaign)}
	for _, c := range campaigns {
		if c.ID == 0 {
			r.nextID++
			c.ID = r.nextID
		}
		if c.UUID == uuid.Nil {
			c.UUID = uuid.New()
		}
		r.campaigns[c.ID] = c
	}
	return r
}

func (r *fakeCampaignRepo) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.campaigns[id], nil
}

func (r *fakeCampaignRepo) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	return nil, errNotImplemented
}

func (r *fakeCampaignRepo) Save(ctx context.Context, campaign *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if campaign.ID == 0 {
		r.nextID++
		campaign.ID = r.nextID
	}
	if campaign.UUID == uuid.Nil {
		campaign.UUID = uuid.New()
	}
	r.campaigns[campaign.ID] = campaign
	return nil
}

func (r *fakeCampaignRepo) SaveBatch(ctx context.Context, campaigns []*models.Campaign) error {
	for _, c := range campaigns {
		if err := r.Save(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeCampaignRepo) ByUUID(ctx context.Context, campaignUUID string) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.campaigns {
		if c.UUID.String() == campaignUUID {
			return c, nil
		}
	}
	return nil, nil
}

func (r *fakeCampaignRepo) ByMerchantID(ctx context.Context, merchantID uint, limit, offset int) ([]*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Campaign
	for _, c := range r.campaigns {
		if c.MerchantID == merchantID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeCampaignRepo) ListByStatus(ctx context.Context, status models.CampaignStatus, limit int) ([]*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Campaign
	for _, c := range r.campaigns {
		if c.Status == status {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeCampaignRepo) Update(ctx context.Context, campaign *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[campaign.ID] = campaign
	return nil
}

func (r *fakeCampaignRepo) UpdateStatus(ctx context.Context, id uint, status models.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.campaigns[id]; ok {
		c.Status = status
	}
	return nil
}

// fakeSessionManager records sends without talking to a provider

type sentMessage struct {
	MerchantID uint
	Phone      string
	Message    string
	Options    []string
}

type fakeSessionManager struct {
	mu           sync.Mutex
	sent         []sentMessage
	polls        []sentMessage
	sendErr      error
	reachable    map[string]bool
	reachableErr error
}

func newFakeSessionManager() *fakeSessionManager {
	return &fakeSessionManager{reachable: make(map[string]bool)}
}

func (m *fakeSessionManager) Connect(ctx context.Context, merchantID uint) error    { return nil }
func (m *fakeSessionManager) Disconnect(ctx context.Context, merchantID uint) error { return nil }

func (m *fakeSessionManager) Status(ctx context.Context, merchantID uint) (*models.ConnectionSession, bool, error) {
	return nil, false, nil
}

func (m *fakeSessionManager) RequestPairingCode(ctx context.Context, merchantID uint, phone string) (string, error) {
	return "", ErrNotConnected
}

func (m *fakeSessionManager) Send(ctx context.Context, merchantID uint, phone, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentMessage{MerchantID: merchantID, Phone: phone, Message: message})
	return nil
}

func (m *fakeSessionManager) SendPoll(ctx context.Context, merchantID uint, phone, question string, options []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.polls = append(m.polls, sentMessage{MerchantID: merchantID, Phone: phone, Message: question, Options: options})
	return nil
}

func (m *fakeSessionManager) CheckReachable(ctx context.Context, merchantID uint, phone string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reachableErr != nil {
		return false, m.reachableErr
	}
	reachable, known := m.reachable[phone]
	if !known {
		return true, nil
	}
	return reachable, nil
}

func (m *fakeSessionManager) ReconcileOnStart(ctx context.Context) error { return nil }
func (m *fakeSessionManager) Shutdown()                                  {}

func (m *fakeSessionManager) sentMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *fakeSessionManager) sentPolls() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentMessage, len(m.polls))
	copy(out, m.polls)
	return out
}
