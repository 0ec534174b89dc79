package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/peymanslh/wanotifier/app/dto"
)

const shopifyAPIVersion = "2024-10"

// ShopifyClient talks to the Shopify admin REST API on behalf of a merchant
type ShopifyClient interface {
	FetchOrder(ctx context.Context, shop, accessToken string, orderID int64) (*dto.OrderEvent, error)
	TagOrder(ctx context.Context, shop, accessToken string, orderID int64, addTag string, removeTags []string) error
	FetchShopName(ctx context.Context, shop, accessToken string) (string, error)
}

// ShopifyClientImpl implements ShopifyClient over HTTP
type ShopifyClientImpl struct {
	client *resty.Client
}

func NewShopifyClient(timeout time.Duration) ShopifyClient {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("Content-Type", "application/json")
	return &ShopifyClientImpl{client: client}
}

func adminURL(shop, path string) string {
	return fmt.Sprintf("https://%s/admin/api/%s/%s", shop, shopifyAPIVersion, path)
}

// FetchOrder refetches an order when the webhook payload was missing fields
func (c *ShopifyClientImpl) FetchOrder(ctx context.Context, shop, accessToken string, orderID int64) (*dto.OrderEvent, error) {
	var result struct {
		Order dto.OrderEvent `json:"order"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("X-Shopify-Access-Token", accessToken).
		SetResult(&result).
		Get(adminURL(shop, fmt.Sprintf("orders/%d.json", orderID)))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order %d from %s: %w", orderID, shop, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("shopify returned %d fetching order %d from %s", resp.StatusCode(), orderID, shop)
	}
	return &result.Order, nil
}

// TagOrder adds a status tag to the order, dropping any previously mirrored
// tags listed in removeTags and preserving everything else.
func (c *ShopifyClientImpl) TagOrder(ctx context.Context, shop, accessToken string, orderID int64, addTag string, removeTags []string) error {
	var current struct {
		Order struct {
			Tags string `json:"tags"`
		} `json:"order"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("X-Shopify-Access-Token", accessToken).
		SetResult(&current).
		Get(adminURL(shop, fmt.Sprintf("orders/%d.json", orderID)))
	if err != nil {
		return fmt.Errorf("failed to read tags for order %d: %w", orderID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("shopify returned %d reading order %d", resp.StatusCode(), orderID)
	}

	removed := make(map[string]bool, len(removeTags))
	for _, t := range removeTags {
		removed[t] = true
	}
	kept := make([]string, 0, 8)
	seen := false
	for _, existing := range strings.Split(current.Order.Tags, ",") {
		trimmed := strings.TrimSpace(existing)
		if trimmed == "" || removed[trimmed] {
			continue
		}
		if trimmed == addTag {
			seen = true
		}
		kept = append(kept, trimmed)
	}
	if !seen && addTag != "" {
		kept = append(kept, addTag)
	}
	tags := strings.Join(kept, ", ")

	body := map[string]any{
		"order": map[string]any{
			"id":   orderID,
			"tags": tags,
		},
	}
	resp, err = c.client.R().
		SetContext(ctx).
		SetHeader("X-Shopify-Access-Token", accessToken).
		SetBody(body).
		Put(adminURL(shop, fmt.Sprintf("orders/%d.json", orderID)))
	if err != nil {
		return fmt.Errorf("failed to tag order %d: %w", orderID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("shopify returned %d tagging order %d", resp.StatusCode(), orderID)
	}
	return nil
}

// FetchShopName resolves the store's display name for template rendering
func (c *ShopifyClientImpl) FetchShopName(ctx context.Context, shop, accessToken string) (string, error) {
	var result struct {
		Shop struct {
			Name string `json:"name"`
		} `json:"shop"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("X-Shopify-Access-Token", accessToken).
		SetResult(&result).
		Get(adminURL(shop, "shop.json"))
	if err != nil {
		return "", fmt.Errorf("failed to fetch shop info for %s: %w", shop, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("shopify returned %d fetching shop info for %s", resp.StatusCode(), shop)
	}
	return result.Shop.Name, nil
}

// MockShopifyClient is a canned ShopifyClient for tests
type MockShopifyClient struct {
	mu           sync.Mutex
	Orders       map[int64]*dto.OrderEvent
	FetchErr     error
	TagErr       error
	ShopName     string
	TaggedOrders map[int64][]string
}

func NewMockShopifyClient() *MockShopifyClient {
	return &MockShopifyClient{
		Orders:       make(map[int64]*dto.OrderEvent),
		TaggedOrders: make(map[int64][]string),
		ShopName:     "Test Store",
	}
}

func (m *MockShopifyClient) FetchOrder(ctx context.Context, shop, accessToken string, orderID int64) (*dto.OrderEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	order, ok := m.Orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %d not found", orderID)
	}
	return order, nil
}

func (m *MockShopifyClient) TagOrder(ctx context.Context, shop, accessToken string, orderID int64, addTag string, removeTags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TagErr != nil {
		return m.TagErr
	}
	m.TaggedOrders[orderID] = append(m.TaggedOrders[orderID], addTag)
	return nil
}

func (m *MockShopifyClient) FetchShopName(ctx context.Context, shop, accessToken string) (string, error) {
	return m.ShopName, nil
}
