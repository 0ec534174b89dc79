// Package services provides external service integrations: the WhatsApp
// provider, the Shopify admin API client, and the live status feed.
package services

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ProviderEventKind identifies the lifecycle events a provider session emits
type ProviderEventKind string

const (
	ProviderEventQR            ProviderEventKind = "qr"
	ProviderEventPairingReady  ProviderEventKind = "pairing_ready"
	ProviderEventAuthenticated ProviderEventKind = "authenticated"
	ProviderEventReady         ProviderEventKind = "ready"
	ProviderEventDisconnected  ProviderEventKind = "disconnected"
	ProviderEventAuthFailure   ProviderEventKind = "auth_failure"
)

// ProviderEvent is one lifecycle event from a provider session
type ProviderEvent struct {
	Kind        ProviderEventKind
	QRCode      string
	PairingCode string
	PhoneNumber string
	DeviceID    string
	Error       string
	At          time.Time
}

// ProviderSession is a live connection handle to the messaging provider.
// Events() delivers lifecycle events until the session is closed; the
// channel is closed when the underlying connection terminates.
type ProviderSession interface {
	Events() <-chan ProviderEvent
	Send(ctx context.Context, phone, message string) error
	SendPoll(ctx context.Context, phone, question string, options []string) error
	CheckReachable(ctx context.Context, phone string) (bool, error)
	RequestPairingCode(ctx context.Context, phone string) (string, error)
	Close() error
}

// WhatsAppProvider opens provider sessions for merchants
type WhatsAppProvider interface {
	Open(ctx context.Context, merchantID uint) (ProviderSession, error)
}

// MockProviderSession is a scriptable session for tests and local development
type MockProviderSession struct {
	mu           sync.Mutex
	events       chan ProviderEvent
	closed       bool
	SentMessages []MockSentMessage
	SentPolls    []MockSentPoll
	SendErr      error
	Reachable    map[string]bool
	ReachableErr error
	PairingCode  string
}

// MockSentMessage records one Send call
type MockSentMessage struct {
	Phone   string
	Message string
}

// MockSentPoll records one SendPoll call
type MockSentPoll struct {
	Phone    string
	Question string
	Options  []string
}

func NewMockProviderSession() *MockProviderSession {
	return &MockProviderSession{
		events:      make(chan ProviderEvent, 16),
		Reachable:   make(map[string]bool),
		PairingCode: "1234-5678",
	}
}

func (s *MockProviderSession) Events() <-chan ProviderEvent {
	return s.events
}

// Emit pushes an event into the session's event stream
func (s *MockProviderSession) Emit(ev ProviderEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	s.events <- ev
}

func (s *MockProviderSession) Send(ctx context.Context, phone, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	s.SentMessages = append(s.SentMessages, MockSentMessage{Phone: phone, Message: message})
	return nil
}

func (s *MockProviderSession) SendPoll(ctx context.Context, phone, question string, options []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	s.SentPolls = append(s.SentPolls, MockSentPoll{Phone: phone, Question: question, Options: options})
	return nil
}

func (s *MockProviderSession) CheckReachable(ctx context.Context, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReachableErr != nil {
		return false, s.ReachableErr
	}
	reachable, known := s.Reachable[phone]
	if !known {
		return true, nil
	}
	return reachable, nil
}

func (s *MockProviderSession) RequestPairingCode(ctx context.Context, phone string) (string, error) {
	if phone == "" {
		return "", fmt.Errorf("pairing code requires a phone number")
	}
	return s.PairingCode, nil
}

func (s *MockProviderSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}

// SentCount returns how many text messages were sent
func (s *MockProviderSession) SentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SentMessages)
}

// MockWhatsAppProvider hands out pre-built mock sessions
type MockWhatsAppProvider struct {
	mu       sync.Mutex
	Sessions map[uint]*MockProviderSession
	OpenErr  error
}

func NewMockWhatsAppProvider() *MockWhatsAppProvider {
	return &MockWhatsAppProvider{Sessions: make(map[uint]*MockProviderSession)}
}

func (p *MockWhatsAppProvider) Open(ctx context.Context, merchantID uint) (ProviderSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	session, ok := p.Sessions[merchantID]
	if !ok {
		session = NewMockProviderSession()
		p.Sessions[merchantID] = session
	}
	return session, nil
}
