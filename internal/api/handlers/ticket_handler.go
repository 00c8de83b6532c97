package handlers

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/api/response"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/repository"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/validator"
)

// TicketHandler handles ticket-related HTTP requests
type TicketHandler struct {
	ticketRepo  repository.TicketRepository
	messageRepo repository.MessageRepository
	deskRepo    repository.DeskRepository
}

// NewTicketHandler creates a new TicketHandler
func NewTicketHandler(
	ticketRepo repository.TicketRepository,
	messageRepo repository.MessageRepository,
	deskRepo repository.DeskRepository,
) *TicketHandler {
	return &TicketHandler{
		ticketRepo:  ticketRepo,
		messageRepo: messageRepo,
		deskRepo:    deskRepo,
	}
}

// UpdateStatusRequest represents the request body for a status change
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// List handles GET /api/desks/:desk_id/tickets
func (h *TicketHandler) List(c echo.Context) error {
	deskID, err := strconv.ParseUint(c.Param("desk_id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid desk ID")
	}

	if _, err := h.deskRepo.GetByID(c.Request().Context(), uint(deskID)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "desk not found")
		}
		return response.InternalError(c, "failed to get desk")
	}

	status := c.QueryParam("status")
	if status != "" && !models.ValidStatus(status) {
		return response.BadRequest(c, "invalid status filter")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	limit, offset = validator.ValidatePagination(limit, offset)

	tickets, total, err := h.ticketRepo.ListByDesk(c.Request().Context(), uint(deskID), status, limit, offset)
	if err != nil {
		return response.InternalError(c, "failed to list tickets")
	}

	return response.Paginated(c, tickets, total, limit, offset)
}

// Get handles GET /api/tickets/:id
func (h *TicketHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid ticket ID")
	}

	ticket, err := h.ticketRepo.GetByID(c.Request().Context(), uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "ticket not found")
		}
		return response.InternalError(c, "failed to get ticket")
	}

	return response.Success(c, ticket)
}

// Messages handles GET /api/tickets/:id/messages
func (h *TicketHandler) Messages(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid ticket ID")
	}

	if _, err := h.ticketRepo.GetByID(c.Request().Context(), uint(id)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "ticket not found")
		}
		return response.InternalError(c, "failed to get ticket")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	limit, offset = validator.ValidatePagination(limit, offset)

	messages, total, err := h.messageRepo.ListByTicket(c.Request().Context(), uint(id), limit, offset)
	if err != nil {
		return response.InternalError(c, "failed to list messages")
	}

	return response.Paginated(c, messages, total, limit, offset)
}

// UpdateStatus handles PATCH /api/tickets/:id/status
func (h *TicketHandler) UpdateStatus(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid ticket ID")
	}

	var req UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	if !models.ValidStatus(req.Status) {
		return response.BadRequest(c, "invalid status")
	}

	if err := h.ticketRepo.UpdateStatus(c.Request().Context(), uint(id), req.Status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "ticket not found")
		}
		return response.InternalError(c, "failed to update status")
	}

	ticket, err := h.ticketRepo.GetByID(c.Request().Context(), uint(id))
	if err != nil {
		return response.InternalError(c, "failed to get ticket")
	}

	return response.Success(c, ticket)
}
