package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/orderdesk/internal/api/dto"
	"github.com/spec-kit/orderdesk/internal/service"
)

// TicketsHandler exposes read-only ticket views and manual maintenance to staff tooling.
type TicketsHandler struct {
	service    *service.TicketService
	inactivity *service.InactivityService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, inactivity *service.InactivityService) *TicketsHandler {
	return &TicketsHandler{service: ticketService, inactivity: inactivity}
}

// ListOpen GET /api/admin/tickets.
func (h *TicketsHandler) ListOpen(c *fiber.Ctx) error {
	tickets, err := h.service.ListOpen(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /api/admin/tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	info, err := h.service.TicketInfo(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(info)})
}

// Sweep POST /api/admin/tickets/sweep runs one inactivity pass now.
func (h *TicketsHandler) Sweep(c *fiber.Ctx) error {
	report, err := h.inactivity.Sweep(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}
