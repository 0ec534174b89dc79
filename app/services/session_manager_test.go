package services

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peymanslh/wanotifier/models"
)

var errFakeNotImplemented = errors.New("not implemented in fake")

// fakeSessionRepo is an in-memory ConnectionSessionRepository applying the
// same field updates the gorm implementation would.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[uint]*models.ConnectionSession
}

func newFakeSessionRepo(sessions ...*models.ConnectionSession) *fakeSessionRepo {
	r := &fakeSessionRepo{sessions: make(map[uint]*models.ConnectionSession)}
	for _, s := range sessions {
		r.sessions[s.MerchantID] = s
	}
	return r
}

func (r *fakeSessionRepo) ByMerchant(ctx context.Context, merchantID uint) (*models.ConnectionSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[merchantID], nil
}

func (r *fakeSessionRepo) All(ctx context.Context) ([]*models.ConnectionSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.ConnectionSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (r *fakeSessionRepo) Upsert(ctx context.Context, session *models.ConnectionSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.sessions[session.MerchantID]
	if !ok {
		r.sessions[session.MerchantID] = session
		return nil
	}
	existing.Status = session.Status
	existing.LastError = session.LastError
	return nil
}

func (r *fakeSessionRepo) UpdateFields(ctx context.Context, merchantID uint, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[merchantID]
	if !ok {
		session = &models.ConnectionSession{MerchantID: merchantID}
		r.sessions[merchantID] = session
	}
	for k, v := range fields {
		switch k {
		case "status":
			session.Status = models.ConnectionStatus(v.(string))
		case "qr_code":
			session.QRCode = optionalString(v)
		case "pairing_code":
			session.PairingCode = optionalString(v)
		case "phone_number":
			session.PhoneNumber = optionalString(v)
		case "device_id":
			session.DeviceID = optionalString(v)
		case "last_error":
			session.LastError = optionalString(v)
		case "last_connected_at":
			if t, ok := v.(time.Time); ok {
				session.LastConnectedAt = &t
			}
		}
	}
	return nil
}

func optionalString(v any) *string {
	if v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func (r *fakeSessionRepo) status(merchantID uint) models.ConnectionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[merchantID]; ok {
		return s.Status
	}
	return ""
}

// fakeMerchantStore satisfies repository.MerchantRepository; the session
// manager only touches UpdateFields (needs_reauth).
type fakeMerchantStore struct {
	mu          sync.Mutex
	needsReauth map[uint]bool
}

func newFakeMerchantStore() *fakeMerchantStore {
	return &fakeMerchantStore{needsReauth: make(map[uint]bool)}
}

func (r *fakeMerchantStore) ByID(ctx context.Context, id uint) (*models.Merchant, error) {
	return nil, errFakeNotImplemented
}

func (r *fakeMerchantStore) ByFilter(ctx context.Context, filter models.MerchantFilter, orderBy string, limit, offset int) ([]*models.Merchant, error) {
	return nil, errFakeNotImplemented
}

func (r *fakeMerchantStore) Save(ctx context.Context, merchant *models.Merchant) error {
	return errFakeNotImplemented
}

func (r *fakeMerchantStore) SaveBatch(ctx context.Context, merchants []*models.Merchant) error {
	return errFakeNotImplemented
}

func (r *fakeMerchantStore) ByShop(ctx context.Context, shop string) (*models.Merchant, error) {
	return nil, errFakeNotImplemented
}

func (r *fakeMerchantStore) FirstOrCreateByShop(ctx context.Context, shop string) (*models.Merchant, error) {
	return nil, errFakeNotImplemented
}

func (r *fakeMerchantStore) Update(ctx context.Context, merchant *models.Merchant) error {
	return errFakeNotImplemented
}

func (r *fakeMerchantStore) UpdateFields(ctx context.Context, merchantID uint, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := fields["needs_reauth"].(bool); ok {
		r.needsReauth[merchantID] = v
	}
	return nil
}

func (r *fakeMerchantStore) IncrementUsage(ctx context.Context, merchantID uint, trial bool) error {
	return nil
}

func (r *fakeMerchantStore) Deactivate(ctx context.Context, merchantID uint) error {
	return nil
}

type sessionManagerFixture struct {
	manager   SessionManager
	provider  *MockWhatsAppProvider
	sessions  *fakeSessionRepo
	merchants *fakeMerchantStore
	feed      *InMemoryStatusFeed
}

func newSessionManagerFixture(rows ...*models.ConnectionSession) *sessionManagerFixture {
	f := &sessionManagerFixture{
		provider:  NewMockWhatsAppProvider(),
		sessions:  newFakeSessionRepo(rows...),
		merchants: newFakeMerchantStore(),
		feed:      NewInMemoryStatusFeed(),
	}
	f.manager = NewSessionManager(f.provider, f.sessions, f.merchants, f.feed, log.New(io.Discard, "", 0))
	return f
}

func (f *sessionManagerFixture) waitForStatus(t *testing.T, merchantID uint, status models.ConnectionStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.sessions.status(merchantID) == status
	}, 2*time.Second, 5*time.Millisecond)
}

func (f *sessionManagerFixture) feedKinds(merchantID uint) []string {
	var kinds []string
	for _, ev := range f.feed.Events() {
		if ev.MerchantID == merchantID {
			kinds = append(kinds, ev.Kind)
		}
	}
	return kinds
}

func TestSessionManagerConnectLifecycle(t *testing.T) {
	f := newSessionManagerFixture()
	ctx := context.Background()

	require.NoError(t, f.manager.Connect(ctx, 1))
	assert.Equal(t, models.ConnectionStatusConnecting, f.sessions.status(1))

	mock := f.provider.Sessions[1]
	require.NotNil(t, mock)

	mock.Emit(ProviderEvent{Kind: ProviderEventQR, QRCode: "qr-payload"})
	f.waitForStatus(t, 1, models.ConnectionStatusQRReady)

	session, live, err := f.manager.Status(ctx, 1)
	require.NoError(t, err)
	assert.False(t, live)
	require.NotNil(t, session.QRCode)
	assert.Equal(t, "qr-payload", *session.QRCode)

	mock.Emit(ProviderEvent{Kind: ProviderEventReady, PhoneNumber: "923001234567"})
	f.waitForStatus(t, 1, models.ConnectionStatusConnected)

	session, live, err = f.manager.Status(ctx, 1)
	require.NoError(t, err)
	assert.True(t, live)
	require.NotNil(t, session.PhoneNumber)
	assert.Equal(t, "923001234567", *session.PhoneNumber)
	assert.Nil(t, session.QRCode)
	assert.NotNil(t, session.LastConnectedAt)

	require.NoError(t, f.manager.Send(ctx, 1, "14155550123", "hello"))
	assert.Equal(t, 1, mock.SentCount())

	require.Eventually(t, func() bool {
		kinds := f.feedKinds(1)
		return len(kinds) == 2 && kinds[0] == "qr" && kinds[1] == "ready"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSessionManagerSendRequiresReadySession(t *testing.T) {
	f := newSessionManagerFixture()
	ctx := context.Background()

	t.Run("no session at all", func(t *testing.T) {
		err := f.manager.Send(ctx, 1, "14155550123", "hello")
		assert.ErrorIs(t, err, ErrNotConnected)
	})

	t.Run("connected but not ready", func(t *testing.T) {
		require.NoError(t, f.manager.Connect(ctx, 1))
		err := f.manager.Send(ctx, 1, "14155550123", "hello")
		assert.ErrorIs(t, err, ErrNotConnected)
	})
}

func TestSessionManagerConnectIsIdempotent(t *testing.T) {
	f := newSessionManagerFixture()
	ctx := context.Background()

	require.NoError(t, f.manager.Connect(ctx, 1))
	require.NoError(t, f.manager.Connect(ctx, 1))

	assert.Len(t, f.provider.Sessions, 1)
}

func TestSessionManagerDisconnect(t *testing.T) {
	f := newSessionManagerFixture()
	ctx := context.Background()

	require.NoError(t, f.manager.Connect(ctx, 1))
	mock := f.provider.Sessions[1]
	mock.Emit(ProviderEvent{Kind: ProviderEventReady})
	f.waitForStatus(t, 1, models.ConnectionStatusConnected)

	require.NoError(t, f.manager.Disconnect(ctx, 1))
	assert.Equal(t, models.ConnectionStatusDisconnected, f.sessions.status(1))

	err := f.manager.Send(ctx, 1, "14155550123", "hello")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSessionManagerAuthFailure(t *testing.T) {
	f := newSessionManagerFixture()
	ctx := context.Background()

	require.NoError(t, f.manager.Connect(ctx, 1))
	mock := f.provider.Sessions[1]
	mock.Emit(ProviderEvent{Kind: ProviderEventReady})
	f.waitForStatus(t, 1, models.ConnectionStatusConnected)

	mock.Emit(ProviderEvent{Kind: ProviderEventAuthFailure, Error: "logged out from phone"})
	f.waitForStatus(t, 1, models.ConnectionStatusError)

	f.merchants.mu.Lock()
	needsReauth := f.merchants.needsReauth[1]
	f.merchants.mu.Unlock()
	assert.True(t, needsReauth)

	err := f.manager.Send(ctx, 1, "14155550123", "hello")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSessionManagerStreamCloseMarksDisconnected(t *testing.T) {
	f := newSessionManagerFixture()
	ctx := context.Background()

	require.NoError(t, f.manager.Connect(ctx, 1))
	mock := f.provider.Sessions[1]
	mock.Emit(ProviderEvent{Kind: ProviderEventReady})
	f.waitForStatus(t, 1, models.ConnectionStatusConnected)

	// Provider connection dies without a disconnect event
	require.NoError(t, mock.Close())
	f.waitForStatus(t, 1, models.ConnectionStatusDisconnected)

	err := f.manager.Send(ctx, 1, "14155550123", "hello")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSessionManagerRequestPairingCode(t *testing.T) {
	f := newSessionManagerFixture()
	ctx := context.Background()

	t.Run("requires a session", func(t *testing.T) {
		_, err := f.manager.RequestPairingCode(ctx, 1, "923001234567")
		assert.ErrorIs(t, err, ErrNotConnected)
	})

	t.Run("returns provider code before ready", func(t *testing.T) {
		require.NoError(t, f.manager.Connect(ctx, 1))
		code, err := f.manager.RequestPairingCode(ctx, 1, "923001234567")
		require.NoError(t, err)
		assert.Equal(t, "1234-5678", code)
	})

	t.Run("rejected once authenticated", func(t *testing.T) {
		f.provider.Sessions[1].Emit(ProviderEvent{Kind: ProviderEventReady, PhoneNumber: "923001234567"})
		f.waitForStatus(t, 1, models.ConnectionStatusConnected)

		_, err := f.manager.RequestPairingCode(ctx, 1, "923001234567")
		assert.ErrorIs(t, err, ErrAlreadyConnected)
	})
}

func TestSessionManagerCheckReachable(t *testing.T) {
	f := newSessionManagerFixture()
	ctx := context.Background()

	require.NoError(t, f.manager.Connect(ctx, 1))
	mock := f.provider.Sessions[1]
	mock.Emit(ProviderEvent{Kind: ProviderEventReady})
	f.waitForStatus(t, 1, models.ConnectionStatusConnected)

	mock.Reachable["14155550123"] = false

	reachable, err := f.manager.CheckReachable(ctx, 1, "14155550123")
	require.NoError(t, err)
	assert.False(t, reachable)

	reachable, err = f.manager.CheckReachable(ctx, 1, "923001234567")
	require.NoError(t, err)
	assert.True(t, reachable)
}

func TestSessionManagerReconcileOnStart(t *testing.T) {
	f := newSessionManagerFixture(
		&models.ConnectionSession{MerchantID: 1, Status: models.ConnectionStatusConnected},
		&models.ConnectionSession{MerchantID: 2, Status: models.ConnectionStatusConnecting},
		&models.ConnectionSession{MerchantID: 3, Status: models.ConnectionStatusDisconnected},
	)

	require.NoError(t, f.manager.ReconcileOnStart(context.Background()))

	// The connected row got a reconnect attempt
	assert.Contains(t, f.provider.Sessions, uint(1))
	// The mid-handshake row was reset
	assert.Equal(t, models.ConnectionStatusDisconnected, f.sessions.status(2))
	// The disconnected row was left alone
	assert.NotContains(t, f.provider.Sessions, uint(3))
}

func TestSessionManagerShutdownKeepsPersistedState(t *testing.T) {
	f := newSessionManagerFixture()
	ctx := context.Background()

	require.NoError(t, f.manager.Connect(ctx, 1))
	mock := f.provider.Sessions[1]
	mock.Emit(ProviderEvent{Kind: ProviderEventReady})
	f.waitForStatus(t, 1, models.ConnectionStatusConnected)

	f.manager.Shutdown()

	// The row stays connected so the next boot reconnects it
	assert.Equal(t, models.ConnectionStatusConnected, f.sessions.status(1))

	err := f.manager.Send(ctx, 1, "14155550123", "hello")
	assert.ErrorIs(t, err, ErrNotConnected)
}
