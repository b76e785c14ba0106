package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/orderdesk/internal/imageproxy"
)

const imageCacheControl = "public, max-age=86400"

// ImageHandler proxies storefront images through the local cache.
type ImageHandler struct {
	proxy *imageproxy.Proxy
}

// NewImageHandler constructs handler.
func NewImageHandler(proxy *imageproxy.Proxy) *ImageHandler {
	return &ImageHandler{proxy: proxy}
}

// Image GET /api/img?u=<reference>.
func (h *ImageHandler) Image(c *fiber.Ctx) error {
	img, err := h.proxy.Get(c.UserContext(), c.Query("u"))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, img.ContentType)
	c.Set(fiber.HeaderCacheControl, imageCacheControl)
	c.Set("X-Image-Source", img.Source)
	return c.Send(img.Data)
}

// Favicon answers browser favicon probes with no content.
func Favicon(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}
