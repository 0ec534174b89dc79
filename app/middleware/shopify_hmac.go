package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"github.com/gofiber/fiber/v3"

	"github.com/peymanslh/wanotifier/app/dto"
)

// ShopifyHMAC verifies the webhook signature before any processing: an HMAC-
// SHA256 over the raw request body, base64-encoded, compared in constant
// time. Requests without a valid signature never reach the event pipeline.
func ShopifyHMAC(secret string) fiber.Handler {
	return func(c fiber.Ctx) error {
		signature := c.Get("X-Shopify-Hmac-Sha256")
		if signature == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Missing webhook signature",
				Error: dto.ErrorDetail{
					Code: "MISSING_WEBHOOK_SIGNATURE",
				},
			})
		}

		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(c.Body())
		expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(expected), []byte(signature)) {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Invalid webhook signature",
				Error: dto.ErrorDetail{
					Code: "INVALID_WEBHOOK_SIGNATURE",
				},
			})
		}

		return c.Next()
	}
}
