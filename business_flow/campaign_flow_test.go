package businessflow

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peymanslh/wanotifier/app/dto"
	"github.com/peymanslh/wanotifier/models"
	"github.com/peymanslh/wanotifier/utils"
)

// batchTrackingSession wraps the fake session manager to observe how many
// sends run at once, to verify the batch size bounds concurrency.
type batchTrackingSession struct {
	*fakeSessionManager
	trackMu     sync.Mutex
	inFlight    int
	maxInFlight int
}

func (s *batchTrackingSession) Send(ctx context.Context, merchantID uint, phone, message string) error {
	s.trackMu.Lock()
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	s.trackMu.Unlock()

	time.Sleep(2 * time.Millisecond)
	err := s.fakeSessionManager.Send(ctx, merchantID, phone, message)

	s.trackMu.Lock()
	s.inFlight--
	s.trackMu.Unlock()
	return err
}

func newCampaignFlowFixture() (*CampaignFlowImpl, *fakeCampaignRepo, *fakeSessionManager) {
	merchant := &models.Merchant{ID: 1, Shop: testShop, IsActive: utils.ToPtr(true)}
	campaignRepo := newFakeCampaignRepo()
	sessions := newFakeSessionManager()

	flow := NewCampaignFlow(campaignRepo, newFakeMerchantRepo(merchant), sessions, log.New(io.Discard, "", 0))
	flow.batchDelay = time.Millisecond
	return flow, campaignRepo, sessions
}

func campaignContacts(n int) []dto.CampaignContactRequest {
	contacts := make([]dto.CampaignContactRequest, 0, n)
	for i := 0; i < n; i++ {
		contacts = append(contacts, dto.CampaignContactRequest{
			Name:  fmt.Sprintf("Contact %d", i+1),
			Phone: fmt.Sprintf("+92300123%04d", i+1),
		})
	}
	return contacts
}

func TestCampaignFlowCreate(t *testing.T) {
	flow, repo, _ := newCampaignFlowFixture()

	campaign, err := flow.Create(context.Background(), 1, &dto.CreateCampaignRequest{
		Name:     "Eid Sale",
		Message:  "Hey {{name}}, everything 20% off!",
		Contacts: campaignContacts(3),
	})
	require.NoError(t, err)

	assert.NotZero(t, campaign.ID)
	assert.Equal(t, models.CampaignStatusPending, campaign.Status)
	assert.Equal(t, 3, campaign.TotalCount)
	assert.Len(t, campaign.Contacts, 3)
	assert.Equal(t, models.ContactStatusPending, campaign.Contacts[0].Status)

	stored, err := repo.ByID(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, campaign, stored)
}

func TestCampaignFlowCreateRequiresContacts(t *testing.T) {
	flow, _, _ := newCampaignFlowFixture()

	_, err := flow.Create(context.Background(), 1, &dto.CreateCampaignRequest{
		Name:    "Empty",
		Message: "hello",
	})
	assert.ErrorIs(t, err, ErrCampaignContactsMissing)
}

func TestCampaignFlowGetScopedToMerchant(t *testing.T) {
	flow, _, _ := newCampaignFlowFixture()

	campaign, err := flow.Create(context.Background(), 1, &dto.CreateCampaignRequest{
		Name:     "Scoped",
		Message:  "hi",
		Contacts: campaignContacts(1),
	})
	require.NoError(t, err)

	t.Run("owner can read", func(t *testing.T) {
		got, err := flow.Get(context.Background(), 1, campaign.UUID.String())
		require.NoError(t, err)
		assert.Equal(t, campaign.ID, got.ID)
	})

	t.Run("other merchant is denied", func(t *testing.T) {
		_, err := flow.Get(context.Background(), 2, campaign.UUID.String())
		assert.ErrorIs(t, err, ErrCampaignAccessDenied)
	})

	t.Run("unknown uuid", func(t *testing.T) {
		_, err := flow.Get(context.Background(), 1, "6ba7b810-9dad-11d1-80b4-00c04fd430c8")
		assert.ErrorIs(t, err, ErrCampaignNotFound)
	})
}

func TestCampaignFlowRunDispatchesInBatches(t *testing.T) {
	flow, repo, sessions := newCampaignFlowFixture()
	tracking := &batchTrackingSession{fakeSessionManager: sessions}
	flow.sessions = tracking

	campaign, err := flow.Create(context.Background(), 1, &dto.CreateCampaignRequest{
		Name:     "Batch Test",
		Message:  "Hey {{name}}!",
		Contacts: campaignContacts(12),
	})
	require.NoError(t, err)

	require.NoError(t, flow.Run(context.Background(), campaign.ID))

	stored, err := repo.ByID(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusCompleted, stored.Status)
	assert.Equal(t, 12, stored.SentCount)
	assert.Equal(t, 0, stored.FailedCount)
	assert.NotNil(t, stored.StartedAt)
	assert.NotNil(t, stored.EndedAt)

	assert.Len(t, sessions.sentMessages(), 12)
	assert.LessOrEqual(t, tracking.maxInFlight, utils.CampaignBatchSize)
	assert.Greater(t, tracking.maxInFlight, 1)
}

func TestCampaignFlowRunRendersPerContact(t *testing.T) {
	flow, _, sessions := newCampaignFlowFixture()

	campaign, err := flow.Create(context.Background(), 1, &dto.CreateCampaignRequest{
		Name:    "Render",
		Message: "Hey {{name}}!",
		Contacts: []dto.CampaignContactRequest{
			{Name: "Zara", Phone: "+923001234501"},
			{Name: "", Phone: "+923001234502"},
		},
	})
	require.NoError(t, err)
	require.NoError(t, flow.Run(context.Background(), campaign.ID))

	sent := sessions.sentMessages()
	require.Len(t, sent, 2)

	messages := map[string]string{}
	for _, s := range sent {
		messages[s.Phone] = s.Message
	}
	assert.Equal(t, "Hey Zara!", messages["923001234501"])
	assert.Equal(t, "Hey there!", messages["923001234502"])
}

func TestCampaignFlowRunIsolatesContactFailures(t *testing.T) {
	flow, repo, sessions := newCampaignFlowFixture()

	contacts := campaignContacts(4)
	contacts = append(contacts, dto.CampaignContactRequest{Name: "Bad", Phone: "123"})

	campaign, err := flow.Create(context.Background(), 1, &dto.CreateCampaignRequest{
		Name:     "Mixed",
		Message:  "hello {{name}}",
		Contacts: contacts,
	})
	require.NoError(t, err)
	require.NoError(t, flow.Run(context.Background(), campaign.ID))

	stored, err := repo.ByID(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusCompleted, stored.Status)
	assert.Equal(t, 4, stored.SentCount)
	assert.Equal(t, 1, stored.FailedCount)
	assert.Len(t, sessions.sentMessages(), 4)

	var failed *models.CampaignContact
	for i := range stored.Contacts {
		if stored.Contacts[i].Status == models.ContactStatusFailed {
			failed = &stored.Contacts[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "invalid phone number", failed.Error)
}

func TestCampaignFlowRunStatusGates(t *testing.T) {
	flow, repo, _ := newCampaignFlowFixture()

	t.Run("unknown campaign", func(t *testing.T) {
		assert.ErrorIs(t, flow.Run(context.Background(), 999), ErrCampaignNotFound)
	})

	t.Run("already completed", func(t *testing.T) {
		campaign := &models.Campaign{MerchantID: 1, Status: models.CampaignStatusCompleted}
		require.NoError(t, repo.Save(context.Background(), campaign))
		assert.ErrorIs(t, flow.Run(context.Background(), campaign.ID), ErrCampaignNotPending)
	})

	t.Run("already sending", func(t *testing.T) {
		campaign := &models.Campaign{MerchantID: 1, Status: models.CampaignStatusSending}
		require.NoError(t, repo.Save(context.Background(), campaign))
		assert.ErrorIs(t, flow.Run(context.Background(), campaign.ID), ErrCampaignNotPending)
	})
}
