package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/peymanslh/wanotifier/app/dto"
)

// HealthHandler reports dependency health for probes
type HealthHandler struct {
	db    *gorm.DB
	cache *redis.Client
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *gorm.DB, cache *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

// Health checks database and cache connectivity
func (h *HealthHandler) Health(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	checks := map[string]string{
		"database": "ok",
		"cache":    "ok",
	}
	healthy := true

	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			checks["database"] = err.Error()
			healthy = false
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx).Err(); err != nil {
			checks["cache"] = err.Error()
			healthy = false
		}
	}

	status := fiber.StatusOK
	message := "healthy"
	if !healthy {
		status = fiber.StatusServiceUnavailable
		message = "degraded"
	}
	return c.Status(status).JSON(dto.APIResponse{
		Success: healthy,
		Message: message,
		Data:    checks,
	})
}
