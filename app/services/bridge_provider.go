package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// BridgeProvider implements WhatsAppProvider against an external session
// bridge that owns the wire protocol. The bridge exposes one session per
// merchant and a cursor-based event long-poll.
type BridgeProvider struct {
	client *resty.Client
}

func NewBridgeProvider(baseURL, apiKey string, timeout time.Duration) WhatsAppProvider {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetHeader("Content-Type", "application/json")
	return &BridgeProvider{client: client}
}

type bridgeEvent struct {
	Cursor      int64  `json:"cursor"`
	Kind        string `json:"kind"`
	QRCode      string `json:"qr_code,omitempty"`
	PairingCode string `json:"pairing_code,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	DeviceID    string `json:"device_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

type bridgeSession struct {
	client     *resty.Client
	merchantID uint
	events     chan ProviderEvent
	cancel     context.CancelFunc
}

// Open starts (or resumes) the bridge session and begins streaming its events
func (p *BridgeProvider) Open(ctx context.Context, merchantID uint) (ProviderSession, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		Post(fmt.Sprintf("/sessions/%d/connect", merchantID))
	if err != nil {
		return nil, fmt.Errorf("bridge connect failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("bridge returned %d on connect", resp.StatusCode())
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	session := &bridgeSession{
		client:     p.client,
		merchantID: merchantID,
		events:     make(chan ProviderEvent, 16),
		cancel:     cancel,
	}
	go session.poll(streamCtx)
	return session, nil
}

// poll long-polls the bridge event stream and forwards events until the
// session is closed or the bridge reports a terminal disconnect.
func (s *bridgeSession) poll(ctx context.Context) {
	defer close(s.events)

	var cursor int64
	for {
		if ctx.Err() != nil {
			return
		}

		var batch []bridgeEvent
		resp, err := s.client.R().
			SetContext(ctx).
			SetQueryParam("cursor", fmt.Sprintf("%d", cursor)).
			SetResult(&batch).
			Get(fmt.Sprintf("/sessions/%d/events", s.merchantID))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if resp.IsError() {
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, ev := range batch {
			cursor = ev.Cursor
			out := ProviderEvent{
				Kind:        ProviderEventKind(ev.Kind),
				QRCode:      ev.QRCode,
				PairingCode: ev.PairingCode,
				PhoneNumber: ev.PhoneNumber,
				DeviceID:    ev.DeviceID,
				Error:       ev.Error,
				At:          time.Now().UTC(),
			}
			select {
			case s.events <- out:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *bridgeSession) Events() <-chan ProviderEvent {
	return s.events
}

func (s *bridgeSession) Send(ctx context.Context, phone, message string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"phone": phone, "message": message}).
		Post(fmt.Sprintf("/sessions/%d/messages", s.merchantID))
	if err != nil {
		return fmt.Errorf("bridge send failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("bridge returned %d on send", resp.StatusCode())
	}
	return nil
}

func (s *bridgeSession) SendPoll(ctx context.Context, phone, question string, options []string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"phone": phone, "question": question, "options": options}).
		Post(fmt.Sprintf("/sessions/%d/polls", s.merchantID))
	if err != nil {
		return fmt.Errorf("bridge poll send failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("bridge returned %d on poll send", resp.StatusCode())
	}
	return nil
}

func (s *bridgeSession) CheckReachable(ctx context.Context, phone string) (bool, error) {
	var result struct {
		Exists bool `json:"exists"`
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("phone", phone).
		SetResult(&result).
		Get(fmt.Sprintf("/sessions/%d/reachable", s.merchantID))
	if err != nil {
		return false, fmt.Errorf("bridge reachability check failed: %w", err)
	}
	if resp.IsError() {
		return false, fmt.Errorf("bridge returned %d on reachability check", resp.StatusCode())
	}
	return result.Exists, nil
}

func (s *bridgeSession) RequestPairingCode(ctx context.Context, phone string) (string, error) {
	var result struct {
		PairingCode string `json:"pairing_code"`
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"phone": phone}).
		SetResult(&result).
		Post(fmt.Sprintf("/sessions/%d/pairing-code", s.merchantID))
	if err != nil {
		return "", fmt.Errorf("bridge pairing code request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("bridge returned %d on pairing code request", resp.StatusCode())
	}
	return result.PairingCode, nil
}

func (s *bridgeSession) Close() error {
	s.cancel()
	resp, err := s.client.R().
		Post(fmt.Sprintf("/sessions/%d/disconnect", s.merchantID))
	if err != nil {
		return fmt.Errorf("bridge disconnect failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("bridge returned %d on disconnect", resp.StatusCode())
	}
	return nil
}
