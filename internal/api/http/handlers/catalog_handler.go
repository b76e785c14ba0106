package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/orderdesk/internal/catalog"
)

// CatalogHandler serves the storefront product snapshot.
type CatalogHandler struct {
	coordinator *catalog.Coordinator
	logger      *zap.Logger
}

// NewCatalogHandler constructs handler.
func NewCatalogHandler(coordinator *catalog.Coordinator, logger *zap.Logger) *CatalogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogHandler{coordinator: coordinator, logger: logger}
}

// Products GET /api/products. The storefront polls this endpoint, so every
// outcome is a 200 with an error flag rather than an error status.
func (h *CatalogHandler) Products(c *fiber.Ctx) error {
	noCache(c)
	result, err := h.coordinator.RequestSnapshot(c.UserContext())
	if result.Document != nil {
		return c.JSON(result.Document)
	}
	if err != nil {
		h.logger.Warn("catalog unavailable", zap.Error(err))
	}
	return c.JSON(fiber.Map{
		"data":    []json.RawMessage{},
		"error":   true,
		"message": result.Message(),
	})
}

func noCache(c *fiber.Ctx) {
	c.Set(fiber.HeaderCacheControl, "no-cache")
}
