package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/peymanslh/wanotifier/app/dto"
	"github.com/peymanslh/wanotifier/app/middleware"
	businessflow "github.com/peymanslh/wanotifier/business_flow"
	"github.com/peymanslh/wanotifier/models"
)

// CampaignHandlerInterface defines the contract for campaign handlers
type CampaignHandlerInterface interface {
	CreateCampaign(c fiber.Ctx) error
	GetCampaign(c fiber.Ctx) error
	ListCampaigns(c fiber.Ctx) error
}

// CampaignHandler handles campaign-related HTTP requests
type CampaignHandler struct {
	campaignFlow businessflow.CampaignFlow
	validator    *validator.Validate
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignFlow businessflow.CampaignFlow) *CampaignHandler {
	return &CampaignHandler{
		campaignFlow: campaignFlow,
		validator:    validator.New(),
	}
}

func (h *CampaignHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *CampaignHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreateCampaign stores a pending campaign; the scheduler dispatches it
func (h *CampaignHandler) CreateCampaign(c fiber.Ctx) error {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Merchant not found in context", "UNAUTHORIZED", nil)
	}

	var req dto.CreateCampaignRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationDetails(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	campaign, err := h.campaignFlow.Create(ctx, merchantID, &req)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create campaign", "CREATE_CAMPAIGN_FAILED", err.Error())
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Campaign created", toCampaignResponse(campaign))
}

// GetCampaign returns one campaign by UUID, scoped to the caller's merchant
func (h *CampaignHandler) GetCampaign(c fiber.Ctx) error {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Merchant not found in context", "UNAUTHORIZED", nil)
	}

	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	campaign, err := h.campaignFlow.Get(ctx, merchantID, campaignUUID)
	if err != nil {
		if businessflow.IsCampaignNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
		}
		if businessflow.IsCampaignAccessDenied(err) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Campaign access denied", "CAMPAIGN_ACCESS_DENIED", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load campaign", "GET_CAMPAIGN_FAILED", err.Error())
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaign", toCampaignResponse(campaign))
}

// ListCampaigns returns the merchant's campaigns, newest first
func (h *CampaignHandler) ListCampaigns(c fiber.Ctx) error {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Merchant not found in context", "UNAUTHORIZED", nil)
	}

	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	campaigns, err := h.campaignFlow.List(ctx, merchantID, limit, offset)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list campaigns", "LIST_CAMPAIGNS_FAILED", err.Error())
	}

	resp := dto.CampaignListResponse{
		Campaigns: make([]dto.CampaignResponse, 0, len(campaigns)),
		Total:     len(campaigns),
	}
	for _, campaign := range campaigns {
		resp.Campaigns = append(resp.Campaigns, toCampaignResponse(campaign))
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaigns", resp)
}

func toCampaignResponse(campaign *models.Campaign) dto.CampaignResponse {
	resp := dto.CampaignResponse{
		UUID:        campaign.UUID.String(),
		Name:        campaign.Name,
		Type:        campaign.Type,
		Status:      string(campaign.Status),
		SentCount:   campaign.SentCount,
		FailedCount: campaign.FailedCount,
		TotalCount:  campaign.TotalCount,
		CreatedAt:   campaign.CreatedAt.Format(time.RFC3339),
	}
	if campaign.StartedAt != nil {
		formatted := campaign.StartedAt.Format(time.RFC3339)
		resp.StartedAt = &formatted
	}
	if campaign.EndedAt != nil {
		formatted := campaign.EndedAt.Format(time.RFC3339)
		resp.EndedAt = &formatted
	}
	return resp
}
