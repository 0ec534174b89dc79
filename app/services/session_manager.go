package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/peymanslh/wanotifier/app/dto"
	"github.com/peymanslh/wanotifier/models"
	"github.com/peymanslh/wanotifier/repository"
	"github.com/peymanslh/wanotifier/utils"
)

// ErrNotConnected is returned when a merchant has no ready live session
var ErrNotConnected = errors.New("messaging channel is not connected")

// ErrAlreadyConnected is returned when an operation requires an
// unauthenticated session but the merchant's session is already live
var ErrAlreadyConnected = errors.New("session is already authenticated")

// SessionManager owns the live provider sessions. The persisted
// ConnectionSession row is the ground truth for connection state; the
// in-process handle is a cache on top of it. Each live session has exactly
// one consumer goroutine applying lifecycle events, so state writes for a
// merchant are never concurrent.
type SessionManager interface {
	Connect(ctx context.Context, merchantID uint) error
	Disconnect(ctx context.Context, merchantID uint) error
	Status(ctx context.Context, merchantID uint) (*models.ConnectionSession, bool, error)
	RequestPairingCode(ctx context.Context, merchantID uint, phone string) (string, error)
	Send(ctx context.Context, merchantID uint, phone, message string) error
	SendPoll(ctx context.Context, merchantID uint, phone, question string, options []string) error
	CheckReachable(ctx context.Context, merchantID uint, phone string) (bool, error)
	ReconcileOnStart(ctx context.Context) error
	Shutdown()
}

type sessionHandle struct {
	session ProviderSession
	ready   bool
	mu      sync.Mutex
	done    chan struct{}
}

func (h *sessionHandle) isReady() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready
}

func (h *sessionHandle) setReady(ready bool) {
	h.mu.Lock()
	h.ready = ready
	h.mu.Unlock()
}

// SessionManagerImpl implements SessionManager
type SessionManagerImpl struct {
	mu           sync.Mutex
	handles      map[uint]*sessionHandle
	provider     WhatsAppProvider
	sessionRepo  repository.ConnectionSessionRepository
	merchantRepo repository.MerchantRepository
	feed         StatusFeed
	logger       *log.Logger
}

func NewSessionManager(
	provider WhatsAppProvider,
	sessionRepo repository.ConnectionSessionRepository,
	merchantRepo repository.MerchantRepository,
	feed StatusFeed,
	logger *log.Logger,
) SessionManager {
	if logger == nil {
		logger = log.Default()
	}
	return &SessionManagerImpl{
		handles:      make(map[uint]*sessionHandle),
		provider:     provider,
		sessionRepo:  sessionRepo,
		merchantRepo: merchantRepo,
		feed:         feed,
		logger:       logger,
	}
}

// Connect opens a provider session for the merchant and starts its consumer
// goroutine. If a live handle already exists this is a no-op.
func (m *SessionManagerImpl) Connect(ctx context.Context, merchantID uint) error {
	m.mu.Lock()
	if _, exists := m.handles[merchantID]; exists {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := m.persistStatus(ctx, merchantID, models.ConnectionStatusConnecting, nil); err != nil {
		return err
	}

	session, err := m.provider.Open(ctx, merchantID)
	if err != nil {
		errMsg := err.Error()
		_ = m.persistStatus(ctx, merchantID, models.ConnectionStatusError, &errMsg)
		return fmt.Errorf("failed to open provider session for merchant %d: %w", merchantID, err)
	}

	handle := &sessionHandle{session: session, done: make(chan struct{})}
	m.mu.Lock()
	if _, exists := m.handles[merchantID]; exists {
		m.mu.Unlock()
		_ = session.Close()
		return nil
	}
	m.handles[merchantID] = handle
	m.mu.Unlock()

	go m.consumeEvents(merchantID, handle)
	return nil
}

// consumeEvents is the single consumer for one merchant's session events.
// It persists every state change before publishing it on the feed.
func (m *SessionManagerImpl) consumeEvents(merchantID uint, handle *sessionHandle) {
	defer close(handle.done)
	ctx := context.Background()

	for ev := range handle.session.Events() {
		switch ev.Kind {
		case ProviderEventQR:
			m.applyUpdate(ctx, merchantID, map[string]any{
				"status":  string(models.ConnectionStatusQRReady),
				"qr_code": ev.QRCode,
			})
			m.publish(ctx, merchantID, dto.SessionEvent{Kind: "qr", Status: string(models.ConnectionStatusQRReady), QRCode: ev.QRCode})
		case ProviderEventPairingReady:
			m.applyUpdate(ctx, merchantID, map[string]any{
				"pairing_code": ev.PairingCode,
			})
			m.publish(ctx, merchantID, dto.SessionEvent{Kind: "pairing_ready", PairingCode: ev.PairingCode})
		case ProviderEventAuthenticated:
			m.applyUpdate(ctx, merchantID, map[string]any{
				"status":       string(models.ConnectionStatusConnecting),
				"qr_code":      nil,
				"pairing_code": nil,
			})
			m.publish(ctx, merchantID, dto.SessionEvent{Kind: "authenticated", Status: string(models.ConnectionStatusConnecting)})
		case ProviderEventReady:
			handle.setReady(true)
			now := utils.UTCNow()
			m.applyUpdate(ctx, merchantID, map[string]any{
				"status":            string(models.ConnectionStatusConnected),
				"phone_number":      ev.PhoneNumber,
				"device_id":         ev.DeviceID,
				"qr_code":           nil,
				"pairing_code":      nil,
				"last_error":        nil,
				"last_connected_at": now,
			})
			_ = m.merchantRepo.UpdateFields(ctx, merchantID, map[string]any{"needs_reauth": false})
			m.publish(ctx, merchantID, dto.SessionEvent{Kind: "ready", Status: string(models.ConnectionStatusConnected)})
		case ProviderEventAuthFailure:
			handle.setReady(false)
			m.applyUpdate(ctx, merchantID, map[string]any{
				"status":     string(models.ConnectionStatusError),
				"last_error": ev.Error,
			})
			_ = m.merchantRepo.UpdateFields(ctx, merchantID, map[string]any{"needs_reauth": true})
			m.publish(ctx, merchantID, dto.SessionEvent{Kind: "auth_failure", Status: string(models.ConnectionStatusError), Error: ev.Error})
		case ProviderEventDisconnected:
			handle.setReady(false)
			m.applyUpdate(ctx, merchantID, map[string]any{
				"status":     string(models.ConnectionStatusDisconnected),
				"last_error": ev.Error,
			})
			m.publish(ctx, merchantID, dto.SessionEvent{Kind: "disconnected", Status: string(models.ConnectionStatusDisconnected), Error: ev.Error})
		}
	}

	// Event stream closed. Only persist the teardown when this goroutine
	// still owns the handle: Disconnect persists its own state, and Shutdown
	// deliberately leaves the row connected so the next boot reconnects.
	m.mu.Lock()
	current, ok := m.handles[merchantID]
	owned := ok && current == handle
	if owned {
		delete(m.handles, merchantID)
	}
	m.mu.Unlock()
	if owned {
		m.applyUpdate(ctx, merchantID, map[string]any{
			"status": string(models.ConnectionStatusDisconnected),
		})
	}
}

// Disconnect closes the live session and marks the persisted row disconnected
func (m *SessionManagerImpl) Disconnect(ctx context.Context, merchantID uint) error {
	m.mu.Lock()
	handle, ok := m.handles[merchantID]
	if ok {
		delete(m.handles, merchantID)
	}
	m.mu.Unlock()

	if ok {
		if err := handle.session.Close(); err != nil {
			m.logger.Printf("error closing session for merchant %d: %v", merchantID, err)
		}
		<-handle.done
	}
	return m.persistStatus(ctx, merchantID, models.ConnectionStatusDisconnected, nil)
}

// Status returns the persisted session row and whether a live handle exists
func (m *SessionManagerImpl) Status(ctx context.Context, merchantID uint) (*models.ConnectionSession, bool, error) {
	session, err := m.sessionRepo.ByMerchant(ctx, merchantID)
	if err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	handle, ok := m.handles[merchantID]
	m.mu.Unlock()
	live := ok && handle.isReady()
	return session, live, nil
}

// RequestPairingCode asks the provider for a numeric pairing code. Valid
// only while the handshake is in progress: an authenticated session has no
// use for a code and the request is rejected.
func (m *SessionManagerImpl) RequestPairingCode(ctx context.Context, merchantID uint, phone string) (string, error) {
	handle, err := m.liveHandle(merchantID)
	if err != nil {
		return "", err
	}
	if handle.isReady() {
		return "", ErrAlreadyConnected
	}
	return handle.session.RequestPairingCode(ctx, phone)
}

// Send delivers a text message over the merchant's live session
func (m *SessionManagerImpl) Send(ctx context.Context, merchantID uint, phone, message string) error {
	handle, err := m.readyHandle(merchantID)
	if err != nil {
		return err
	}
	return handle.session.Send(ctx, phone, message)
}

func (m *SessionManagerImpl) SendPoll(ctx context.Context, merchantID uint, phone, question string, options []string) error {
	handle, err := m.readyHandle(merchantID)
	if err != nil {
		return err
	}
	return handle.session.SendPoll(ctx, phone, question, options)
}

// CheckReachable asks the provider whether the number exists on the channel
func (m *SessionManagerImpl) CheckReachable(ctx context.Context, merchantID uint, phone string) (bool, error) {
	handle, err := m.readyHandle(merchantID)
	if err != nil {
		return false, err
	}
	checkCtx, cancel := context.WithTimeout(ctx, utils.ReachabilityTimeout)
	defer cancel()
	return handle.session.CheckReachable(checkCtx, phone)
}

// ReconcileOnStart repairs persisted state after a restart: rows still
// marked connected have no live handle anymore, so they get a reconnect
// attempt; rows stuck mid-handshake are reset to disconnected.
func (m *SessionManagerImpl) ReconcileOnStart(ctx context.Context) error {
	sessions, err := m.sessionRepo.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions for reconciliation: %w", err)
	}
	for _, session := range sessions {
		switch session.Status {
		case models.ConnectionStatusConnected:
			m.logger.Printf("reconnecting merchant %d after restart", session.MerchantID)
			if err := m.Connect(ctx, session.MerchantID); err != nil {
				m.logger.Printf("reconnect failed for merchant %d: %v", session.MerchantID, err)
			}
		case models.ConnectionStatusConnecting, models.ConnectionStatusQRReady:
			_ = m.persistStatus(ctx, session.MerchantID, models.ConnectionStatusDisconnected, nil)
		}
	}
	return nil
}

// Shutdown closes all live sessions without touching persisted state, so
// ReconcileOnStart can resume them on the next boot.
func (m *SessionManagerImpl) Shutdown() {
	m.mu.Lock()
	handles := make([]*sessionHandle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.handles = make(map[uint]*sessionHandle)
	m.mu.Unlock()

	for _, h := range handles {
		_ = h.session.Close()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
		}
	}
}

func (m *SessionManagerImpl) liveHandle(merchantID uint) (*sessionHandle, error) {
	m.mu.Lock()
	handle, ok := m.handles[merchantID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotConnected
	}
	return handle, nil
}

func (m *SessionManagerImpl) readyHandle(merchantID uint) (*sessionHandle, error) {
	handle, err := m.liveHandle(merchantID)
	if err != nil {
		return nil, err
	}
	if !handle.isReady() {
		return nil, ErrNotConnected
	}
	return handle, nil
}

func (m *SessionManagerImpl) persistStatus(ctx context.Context, merchantID uint, status models.ConnectionStatus, lastError *string) error {
	session := &models.ConnectionSession{
		MerchantID: merchantID,
		Status:     status,
		LastError:  lastError,
	}
	if err := m.sessionRepo.Upsert(ctx, session); err != nil {
		return fmt.Errorf("failed to persist session status for merchant %d: %w", merchantID, err)
	}
	return nil
}

func (m *SessionManagerImpl) applyUpdate(ctx context.Context, merchantID uint, fields map[string]any) {
	if err := m.sessionRepo.UpdateFields(ctx, merchantID, fields); err != nil {
		m.logger.Printf("failed to update session state for merchant %d: %v", merchantID, err)
	}
}

func (m *SessionManagerImpl) publish(ctx context.Context, merchantID uint, event dto.SessionEvent) {
	event.MerchantID = merchantID
	event.At = utils.UTCNow().Format(time.RFC3339)
	if err := m.feed.Publish(ctx, event); err != nil {
		m.logger.Printf("failed to publish session event for merchant %d: %v", merchantID, err)
	}
}
