package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/orderdesk/internal/service"
)

// SettingsHandler reads and writes the storefront display settings.
type SettingsHandler struct {
	service *service.SettingsService
}

// NewSettingsHandler constructs handler.
func NewSettingsHandler(settingsService *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{service: settingsService}
}

// Get GET /api/settings.
func (h *SettingsHandler) Get(c *fiber.Ctx) error {
	noCache(c)
	return c.JSON(h.service.Get())
}

type saveSettingsRequest struct {
	Settings json.RawMessage `json:"settings"`
}

// Save POST /api/save_settings. Runs behind the admin middleware.
func (h *SettingsHandler) Save(c *fiber.Ctx) error {
	noCache(c)
	var req saveSettingsRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return storefrontError(c, fiber.StatusBadRequest, "Invalid JSON")
	}
	var settings service.Settings
	if len(req.Settings) == 0 || json.Unmarshal(req.Settings, &settings) != nil || settings == nil {
		return storefrontError(c, fiber.StatusBadRequest, "Invalid settings")
	}
	if _, err := h.service.Save(c.UserContext(), settings); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "Settings saved"})
}

// storefrontError renders the flat error body the storefront scripts expect.
func storefrontError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": true, "message": message})
}
