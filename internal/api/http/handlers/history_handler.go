package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-relay/internal/domain"
	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

// HistoryQueries reads the lifecycle audit trail.
type HistoryQueries interface {
	History(ctx context.Context, userID int64, limit int) ([]domain.TicketHistory, error)
}

// HistoryHandler serves GET /admin/users/:userId/history.
type HistoryHandler struct {
	history HistoryQueries
}

// NewHistoryHandler constructs handler.
func NewHistoryHandler(history HistoryQueries) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// ListHistory returns a user's lifecycle events, newest first.
func (h *HistoryHandler) ListHistory(c *fiber.Ctx) error {
	userID, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil {
		return apperrors.NewValidationError("userId must be numeric", map[string]any{"user_id": c.Params("userId")})
	}
	entries, err := h.history.History(c.UserContext(), userID, c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []domain.TicketHistory{}
	}
	return c.JSON(fiber.Map{"data": entries})
}
