package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/api/response"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/ingestion"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/repository"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/threading"
)

// InboundHandler accepts raw MIME email over HTTP and feeds it to the
// ingestion pipeline. This is the webhook edge for providers that deliver
// mail via HTTP POST instead of SMTP.
type InboundHandler struct {
	deskRepo repository.DeskRepository
	pipeline *ingestion.Pipeline
}

// NewInboundHandler creates a new InboundHandler
func NewInboundHandler(deskRepo repository.DeskRepository, pipeline *ingestion.Pipeline) *InboundHandler {
	return &InboundHandler{
		deskRepo: deskRepo,
		pipeline: pipeline,
	}
}

// IngestResult is the webhook response payload
type IngestResult struct {
	TicketID   uint   `json:"ticket_id"`
	MessageID  uint   `json:"message_id"`
	Created    string `json:"created"`
	Date       string `json:"date"`
	DateSource string `json:"date_source"`
	Confidence string `json:"confidence"`
}

// Ingest handles POST /api/desks/:desk_id/inbound. The request body is the
// raw RFC 5322 message.
func (h *InboundHandler) Ingest(c echo.Context) error {
	deskID, err := strconv.ParseUint(c.Param("desk_id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid desk ID")
	}

	desk, err := h.deskRepo.GetByID(c.Request().Context(), uint(deskID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "desk not found")
		}
		return response.InternalError(c, "failed to get desk")
	}
	if !desk.IsActive {
		return response.BadRequest(c, "desk is not active")
	}

	result, err := h.pipeline.HandleIncoming(c.Request().Context(), c.Request().Body, desk.ID)
	if err != nil {
		var perr *threading.PersistenceError
		if errors.As(err, &perr) {
			return response.InternalError(c, "storage failure, retry later")
		}
		return response.UnprocessableEntity(c, "failed to process email")
	}

	payload := &IngestResult{
		TicketID:   result.TicketID,
		MessageID:  result.MessageID,
		Created:    string(result.Created),
		Date:       result.Date.Date.UTC().Format(time.RFC3339),
		DateSource: string(result.Date.Source),
		Confidence: string(result.Date.Confidence),
	}

	if result.Created == threading.CreatedTicket {
		return response.Created(c, payload)
	}
	return response.Success(c, payload)
}
