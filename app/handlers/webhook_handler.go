package handlers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/peymanslh/wanotifier/app/dto"
	businessflow "github.com/peymanslh/wanotifier/business_flow"
)

// WebhookHandlerInterface defines the contract for webhook ingestion
type WebhookHandlerInterface interface {
	HandleShopifyWebhook(c fiber.Ctx) error
}

// WebhookHandler ingests signed commerce events. The HMAC middleware has
// already verified the signature by the time these handlers run.
type WebhookHandler struct {
	eventFlow businessflow.EventFlow
	logger    *log.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(eventFlow businessflow.EventFlow, logger *log.Logger) *WebhookHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &WebhookHandler{
		eventFlow: eventFlow,
		logger:    logger,
	}
}

// HandleShopifyWebhook routes an event by its topic header. The response is
// always a fast 200 once the claim has been attempted: delivery outcomes are
// visible only through delivery records and order tags, never the webhook
// response.
func (h *WebhookHandler) HandleShopifyWebhook(c fiber.Ctx) error {
	topic := c.Get("X-Shopify-Topic")
	shop := c.Get("X-Shopify-Shop-Domain")
	if shop == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
			Success: false,
			Message: "Missing shop domain header",
			Error: dto.ErrorDetail{
				Code: "MISSING_SHOP_DOMAIN",
			},
		})
	}

	var event dto.OrderEvent
	if err := json.Unmarshal(c.Body(), &event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
			Success: false,
			Message: "Invalid webhook payload",
			Error: dto.ErrorDetail{
				Code: "INVALID_PAYLOAD",
			},
		})
	}

	// Only dedupe and the atomic claim run inside this deadline; delivery
	// continues in the background after the response.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch topic {
	case "orders/create":
		err = h.eventFlow.HandleOrderCreated(ctx, shop, &event)
	case "orders/cancelled":
		err = h.eventFlow.HandleOrderCancelled(ctx, shop, &event)
	case "orders/fulfilled":
		err = h.eventFlow.HandleOrderFulfilled(ctx, shop, &event)
	case "orders/paid":
		err = h.eventFlow.HandleOrderPaid(ctx, shop, &event)
	case "checkouts/create", "checkouts/update":
		err = h.eventFlow.HandleAbandonedCart(ctx, shop, &event)
	default:
		// Unknown topics are acknowledged and dropped
	}
	if err != nil {
		// The source still gets its acknowledgment; failures surface through
		// delivery records, not webhook retries.
		h.logger.Printf("webhook %s for %s: %v", topic, shop, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
		Success: true,
		Message: "Webhook received",
	})
}
