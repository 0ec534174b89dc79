package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/peymanslh/wanotifier/app/dto"
	"github.com/peymanslh/wanotifier/app/middleware"
	"github.com/peymanslh/wanotifier/app/services"
	"github.com/peymanslh/wanotifier/models"
)

// SessionHandlerInterface defines the contract for channel session handlers
type SessionHandlerInterface interface {
	Connect(c fiber.Ctx) error
	Disconnect(c fiber.Ctx) error
	Status(c fiber.Ctx) error
	RequestPairingCode(c fiber.Ctx) error
	Events(c fiber.Ctx) error
}

// SessionHandler handles channel session HTTP requests
type SessionHandler struct {
	sessions  services.SessionManager
	feed      services.StatusFeed
	validator *validator.Validate
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions services.SessionManager, feed services.StatusFeed) *SessionHandler {
	return &SessionHandler{
		sessions:  sessions,
		feed:      feed,
		validator: validator.New(),
	}
}

func (h *SessionHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *SessionHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Connect begins the provider handshake for the merchant's channel session
func (h *SessionHandler) Connect(c fiber.Ctx) error {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Merchant not found in context", "UNAUTHORIZED", nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := h.sessions.Connect(ctx, merchantID); err != nil {
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to start connection", "CONNECT_FAILED", err.Error())
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Connection started", dto.ConnectSessionResponse{
		Message: "Connection started",
		Status:  string(models.ConnectionStatusConnecting),
	})
}

// Disconnect tears down the merchant's channel session
func (h *SessionHandler) Disconnect(c fiber.Ctx) error {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Merchant not found in context", "UNAUTHORIZED", nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := h.sessions.Disconnect(ctx, merchantID); err != nil {
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to disconnect", "DISCONNECT_FAILED", err.Error())
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Disconnected", dto.ConnectSessionResponse{
		Message: "Disconnected",
		Status:  string(models.ConnectionStatusDisconnected),
	})
}

// Status reports persisted state reconciled against the live handle. A
// persisted "connected" with no live handle is stale and reported as
// disconnected.
func (h *SessionHandler) Status(c fiber.Ctx) error {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Merchant not found in context", "UNAUTHORIZED", nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	session, live, err := h.sessions.Status(ctx, merchantID)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load session status", "STATUS_FAILED", err.Error())
	}

	resp := dto.SessionStatusResponse{
		Status:        string(models.ConnectionStatusDisconnected),
		Authenticated: false,
	}
	if session != nil {
		status := session.Status
		if status == models.ConnectionStatusConnected && !live {
			status = models.ConnectionStatusDisconnected
		}
		resp.Status = string(status)
		resp.Authenticated = live
		resp.PhoneNumber = session.PhoneNumber
		resp.QRCode = session.QRCode
		resp.PairingCode = session.PairingCode
		resp.LastError = session.LastError
		if session.LastConnectedAt != nil {
			formatted := session.LastConnectedAt.Format(time.RFC3339)
			resp.LastConnectedAt = &formatted
		}
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Session status", resp)
}

// RequestPairingCode asks the provider for a numeric pairing code as an
// alternative to QR scanning. Valid only while unauthenticated.
func (h *SessionHandler) RequestPairingCode(c fiber.Ctx) error {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Merchant not found in context", "UNAUTHORIZED", nil)
	}

	var req dto.PairingCodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationDetails(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	code, err := h.sessions.RequestPairingCode(ctx, merchantID, req.Phone)
	if err != nil {
		if errors.Is(err, services.ErrAlreadyConnected) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Session is already authenticated", "ALREADY_CONNECTED", nil)
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Failed to request pairing code", "PAIRING_CODE_FAILED", err.Error())
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Pairing code issued", dto.PairingCodeResponse{
		Message:     "Pairing code issued",
		PairingCode: code,
	})
}

// Events streams the merchant's session events over SSE. The subscriber
// joins its own tenant channel only; cross-tenant events are never visible.
func (h *SessionHandler) Events(c fiber.Ctx) error {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Merchant not found in context", "UNAUTHORIZED", nil)
	}

	ctx, cancelCtx := context.WithCancel(context.Background())
	events, unsubscribe, err := h.feed.Subscribe(ctx, merchantID)
	if err != nil {
		cancelCtx()
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to subscribe to status feed", "SUBSCRIBE_FAILED", err.Error())
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer cancelCtx()
		defer unsubscribe()

		keepalive := time.NewTicker(30 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case event, open := <-events:
				if !open {
					return
				}
				payload, err := json.Marshal(event)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-keepalive.C:
				if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
}
