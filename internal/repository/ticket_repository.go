package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
	"gorm.io/gorm"
)

// TicketRepository defines the interface for ticket data access
type TicketRepository interface {
	Create(ctx context.Context, ticket *models.Ticket) error
	GetByID(ctx context.Context, id uint) (*models.Ticket, error)
	ListByDesk(ctx context.Context, deskID uint, status string, limit, offset int) ([]models.TicketListItem, int64, error)
	ListRecent(ctx context.Context, limit int, excludeTicketID uint) ([]models.Ticket, error)
	UpdateStatus(ctx context.Context, id uint, status string) error
	TouchOnCustomerReply(ctx context.Context, id uint, at time.Time) error
	Delete(ctx context.Context, id uint) error
}

// ticketRepository implements TicketRepository using GORM
type ticketRepository struct {
	db *gorm.DB
}

// NewTicketRepository creates a new TicketRepository instance
func NewTicketRepository(db *gorm.DB) TicketRepository {
	return &ticketRepository{db: db}
}

// Create creates a new ticket. CreatedAt/UpdatedAt are expected to be
// populated by the caller with the authentic email origination time.
func (r *ticketRepository) Create(ctx context.Context, ticket *models.Ticket) error {
	result := r.db.WithContext(ctx).Create(ticket)
	if result.Error != nil {
		return fmt.Errorf("failed to create ticket: %w", result.Error)
	}
	return nil
}

// GetByID retrieves a ticket by its ID
func (r *ticketRepository) GetByID(ctx context.Context, id uint) (*models.Ticket, error) {
	var ticket models.Ticket
	result := r.db.WithContext(ctx).First(&ticket, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ticket by ID: %w", result.Error)
	}
	return &ticket, nil
}

// ListByDesk retrieves tickets for a desk with pagination, newest activity first
func (r *ticketRepository) ListByDesk(ctx context.Context, deskID uint, status string, limit, offset int) ([]models.TicketListItem, int64, error) {
	var total int64

	countQuery := r.db.WithContext(ctx).Model(&models.Ticket{}).Where("desk_id = ?", deskID)
	if status != "" {
		countQuery = countQuery.Where("status = ?", status)
	}
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count tickets: %w", err)
	}

	var results []models.TicketListItem

	query := `
		SELECT
			t.id,
			t.subject,
			t.status,
			t.customer_email,
			t.customer_name,
			t.desk_id,
			t.created_at,
			t.updated_at,
			COALESCE((SELECT COUNT(*) FROM messages m WHERE m.ticket_id = t.id), 0) as message_count
		FROM tickets t
		WHERE t.desk_id = ?
	`
	args := []interface{}{deskID}
	if status != "" {
		query += " AND t.status = ?"
		args = append(args, status)
	}
	query += " ORDER BY t.updated_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&results).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list tickets: %w", err)
	}

	return results, total, nil
}

// ListRecent retrieves the most recently updated tickets, used by the
// subject+sender matching fallback. excludeTicketID of 0 excludes nothing.
func (r *ticketRepository) ListRecent(ctx context.Context, limit int, excludeTicketID uint) ([]models.Ticket, error) {
	var tickets []models.Ticket
	query := r.db.WithContext(ctx).Order("updated_at DESC").Limit(limit)
	if excludeTicketID != 0 {
		query = query.Where("id <> ?", excludeTicketID)
	}
	if err := query.Find(&tickets).Error; err != nil {
		return nil, fmt.Errorf("failed to list recent tickets: %w", err)
	}
	return tickets, nil
}

// UpdateStatus sets the ticket status
func (r *ticketRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	if !models.ValidStatus(status) {
		return ErrInvalidInput
	}
	result := r.db.WithContext(ctx).Model(&models.Ticket{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return fmt.Errorf("failed to update ticket status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchOnCustomerReply records customer activity on a ticket: updated_at is
// moved to the authentic reply time and a waiting_for_customer ticket is
// reopened.
func (r *ticketRepository) TouchOnCustomerReply(ctx context.Context, id uint, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Ticket{}).Where("id = ?", id).
		Update("updated_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to touch ticket: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	// UpdateColumn skips the automatic updated_at touch, which would
	// overwrite the authentic reply time set above.
	result = r.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ? AND status = ?", id, models.StatusWaitingForCustomer).
		UpdateColumn("status", models.StatusOpen)
	if result.Error != nil {
		return fmt.Errorf("failed to reopen ticket: %w", result.Error)
	}
	return nil
}

// Delete deletes a ticket by its ID (cascade deletes messages)
func (r *ticketRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Ticket{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete ticket: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
