package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-relay/internal/api/dto"
	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/service"
	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

// TicketQueries is the read side of the ticket service.
type TicketQueries interface {
	ListOpenTickets(ctx context.Context) ([]domain.Ticket, error)
	GetTicketDetail(ctx context.Context, userID int64) (*service.TicketDetail, error)
}

// TicketsHandler serves the read-only admin ticket endpoints.
type TicketsHandler struct {
	service TicketQueries
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets TicketQueries) *TicketsHandler {
	return &TicketsHandler{service: tickets}
}

// ListTickets GET /admin/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	tickets, err := h.service.ListOpenTickets(c.UserContext())
	if err != nil {
		return err
	}
	status := domain.TicketStatus(c.Query("status"))
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		if status != "" && tickets[i].Status != status {
			continue
		}
		items = append(items, dto.NewTicketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items, "count": len(items)})
}

// GetTicket GET /admin/tickets/:userId.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	userID, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil {
		return apperrors.NewValidationError("userId must be numeric", map[string]any{"user_id": c.Params("userId")})
	}
	detail, err := h.service.GetTicketDetail(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(detail)})
}
