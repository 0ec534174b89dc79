package businessflow

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/peymanslh/wanotifier/app/dto"
	"github.com/peymanslh/wanotifier/app/services"
	"github.com/peymanslh/wanotifier/models"
	"github.com/peymanslh/wanotifier/repository"
	"github.com/peymanslh/wanotifier/utils"
)

// CampaignFlow manages bulk broadcast campaigns: creation, listing, and the
// batched dispatch loop the scheduler drives.
type CampaignFlow interface {
	Create(ctx context.Context, merchantID uint, req *dto.CreateCampaignRequest) (*models.Campaign, error)
	Get(ctx context.Context, merchantID uint, campaignUUID string) (*models.Campaign, error)
	List(ctx context.Context, merchantID uint, limit, offset int) ([]*models.Campaign, error)
	Run(ctx context.Context, campaignID uint) error
}

// CampaignFlowImpl implements CampaignFlow
type CampaignFlowImpl struct {
	campaignRepo repository.CampaignRepository
	merchantRepo repository.MerchantRepository
	sessions     services.SessionManager
	logger       *log.Logger

	batchSize  int
	batchDelay time.Duration
}

func NewCampaignFlow(
	campaignRepo repository.CampaignRepository,
	merchantRepo repository.MerchantRepository,
	sessions services.SessionManager,
	logger *log.Logger,
) *CampaignFlowImpl {
	if logger == nil {
		logger = log.Default()
	}
	return &CampaignFlowImpl{
		campaignRepo: campaignRepo,
		merchantRepo: merchantRepo,
		sessions:     sessions,
		logger:       logger,
		batchSize:    utils.CampaignBatchSize,
		batchDelay:   utils.CampaignBatchDelay,
	}
}

// Create stores a new pending campaign for the scheduler to pick up
func (f *CampaignFlowImpl) Create(ctx context.Context, merchantID uint, req *dto.CreateCampaignRequest) (*models.Campaign, error) {
	if req == nil || len(req.Contacts) == 0 {
		return nil, ErrCampaignContactsMissing
	}

	contacts := make(models.CampaignContacts, 0, len(req.Contacts))
	for _, c := range req.Contacts {
		contacts = append(contacts, models.CampaignContact{
			Name:   c.Name,
			Phone:  c.Phone,
			Status: models.ContactStatusPending,
		})
	}

	campaign := &models.Campaign{
		MerchantID: merchantID,
		Name:       req.Name,
		Type:       "broadcast",
		Message:    req.Message,
		Status:     models.CampaignStatusPending,
		Contacts:   contacts,
		TotalCount: len(contacts),
	}
	if err := f.campaignRepo.Save(ctx, campaign); err != nil {
		return nil, err
	}
	return campaign, nil
}

// Get returns a campaign scoped to the owning merchant
func (f *CampaignFlowImpl) Get(ctx context.Context, merchantID uint, campaignUUID string) (*models.Campaign, error) {
	campaign, err := f.campaignRepo.ByUUID(ctx, campaignUUID)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, ErrCampaignNotFound
	}
	if campaign.MerchantID != merchantID {
		return nil, ErrCampaignAccessDenied
	}
	return campaign, nil
}

func (f *CampaignFlowImpl) List(ctx context.Context, merchantID uint, limit, offset int) ([]*models.Campaign, error) {
	return f.campaignRepo.ByMerchantID(ctx, merchantID, limit, offset)
}

// Run dispatches a pending campaign in fixed-size batches with a delay
// between batches to respect provider rate limits. Sends within a batch run
// concurrently and each contact's outcome is written independently, so one
// failure never aborts the batch. Completed is terminal: there is no
// resume of a partially-failed campaign.
func (f *CampaignFlowImpl) Run(ctx context.Context, campaignID uint) error {
	campaign, err := f.campaignRepo.ByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign == nil {
		return ErrCampaignNotFound
	}
	if campaign.Status != models.CampaignStatusPending {
		return ErrCampaignNotPending
	}

	now := utils.UTCNow()
	campaign.Status = models.CampaignStatusSending
	campaign.StartedAt = &now
	if err := f.campaignRepo.Update(ctx, campaign); err != nil {
		return err
	}

	contacts := campaign.Contacts
	for start := 0; start < len(contacts); start += f.batchSize {
		end := start + f.batchSize
		if end > len(contacts) {
			end = len(contacts)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(contact *models.CampaignContact) {
				defer wg.Done()
				f.sendToContact(ctx, campaign, contact)
			}(&contacts[i])
		}
		wg.Wait()

		// Persist batch outcomes so progress survives a crash mid-campaign
		f.recount(campaign)
		if err := f.campaignRepo.Update(ctx, campaign); err != nil {
			f.logger.Printf("failed to persist campaign %d progress: %v", campaign.ID, err)
		}

		if end < len(contacts) {
			select {
			case <-time.After(f.batchDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	ended := utils.UTCNow()
	campaign.Status = models.CampaignStatusCompleted
	campaign.EndedAt = &ended
	f.recount(campaign)
	return f.campaignRepo.Update(ctx, campaign)
}

func (f *CampaignFlowImpl) sendToContact(ctx context.Context, campaign *models.Campaign, contact *models.CampaignContact) {
	phone := utils.NormalizePhone(contact.Phone, nil)
	if phone == "" {
		contact.Status = models.ContactStatusFailed
		contact.Error = "invalid phone number"
		recordCampaignMessage("failed")
		return
	}

	message := utils.RenderCampaignMessage(campaign.Message, contact.Name)
	if err := f.sessions.Send(ctx, campaign.MerchantID, phone, message); err != nil {
		contact.Status = models.ContactStatusFailed
		contact.Error = err.Error()
		recordCampaignMessage("failed")
		return
	}
	contact.Status = models.ContactStatusSent
	contact.Error = ""
	recordCampaignMessage("sent")
}

func (f *CampaignFlowImpl) recount(campaign *models.Campaign) {
	sent, failed := 0, 0
	for _, c := range campaign.Contacts {
		switch c.Status {
		case models.ContactStatusSent:
			sent++
		case models.ContactStatusFailed:
			failed++
		}
	}
	campaign.SentCount = sent
	campaign.FailedCount = failed
}
