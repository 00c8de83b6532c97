package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
	"gorm.io/gorm"
)

// MessageRepository defines the interface for message data access.
// Message identifiers handed to the Find*/Exists* methods are expected in
// clean form (angle brackets and surrounding whitespace stripped).
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	CreateWithAttachments(ctx context.Context, message *models.Message, attachments []models.Attachment) error
	GetByID(ctx context.Context, id uint) (*models.Message, error)
	ListByTicket(ctx context.Context, ticketID uint, limit, offset int) ([]models.Message, int64, error)
	FindNewestByLookalikeMessageID(ctx context.Context, cleanID string, excludeTicketID uint) (*models.Message, error)
	ListRecentWithMessageID(ctx context.Context, limit int, excludeTicketID uint) ([]models.Message, error)
	ExistsWithMessageID(ctx context.Context, cleanID string) (bool, error)
	Delete(ctx context.Context, id uint) error
}

// messageRepository implements MessageRepository using GORM
type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new MessageRepository instance
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Create creates a new message
func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	result := r.db.WithContext(ctx).Create(message)
	if result.Error != nil {
		return fmt.Errorf("failed to create message: %w", result.Error)
	}
	return nil
}

// CreateWithAttachments creates a message with its attachments in a transaction
func (r *messageRepository) CreateWithAttachments(ctx context.Context, message *models.Message, attachments []models.Attachment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}

		for i := range attachments {
			attachments[i].MessageID = message.ID
			if err := tx.Create(&attachments[i]).Error; err != nil {
				return fmt.Errorf("failed to create attachment: %w", err)
			}
		}

		return nil
	})
}

// GetByID retrieves a message by its ID with preloaded attachments
func (r *messageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	var message models.Message
	result := r.db.WithContext(ctx).Preload("Attachments").First(&message, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message by ID: %w", result.Error)
	}
	return &message, nil
}

// ListByTicket retrieves messages for a ticket ordered by authentic creation
// time ascending (conversation order)
func (r *messageRepository) ListByTicket(ctx context.Context, ticketID uint, limit, offset int) ([]models.Message, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Message{}).Where("ticket_id = ?", ticketID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	var messages []models.Message
	result := r.db.WithContext(ctx).
		Preload("Attachments").
		Where("ticket_id = ?", ticketID).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&messages)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", result.Error)
	}

	return messages, total, nil
}

// FindNewestByLookalikeMessageID finds the most recently created message whose
// stored identifier equals cleanID, equals it wrapped in angle brackets, or
// contains it as a substring. Mail clients truncate and decorate identifiers,
// so all three forms are tried. excludeTicketID of 0 excludes nothing.
func (r *messageRepository) FindNewestByLookalikeMessageID(ctx context.Context, cleanID string, excludeTicketID uint) (*models.Message, error) {
	if cleanID == "" {
		return nil, ErrNotFound
	}

	var message models.Message
	query := r.db.WithContext(ctx).
		Where(
			"email_message_id = ? OR email_message_id = ? OR email_message_id LIKE ?",
			cleanID, "<"+cleanID+">", "%"+cleanID+"%",
		).
		Order("created_at DESC")
	if excludeTicketID != 0 {
		query = query.Where("ticket_id <> ?", excludeTicketID)
	}

	result := query.First(&message)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find message by identifier: %w", result.Error)
	}
	return &message, nil
}

// ListRecentWithMessageID retrieves a bounded recent window of messages that
// carry an identifier, newest first. The bound trades recall for lookup cost;
// it is not a correctness guarantee.
func (r *messageRepository) ListRecentWithMessageID(ctx context.Context, limit int, excludeTicketID uint) ([]models.Message, error) {
	var messages []models.Message
	query := r.db.WithContext(ctx).
		Select("id", "ticket_id", "email_message_id", "created_at").
		Where("email_message_id <> ''").
		Order("created_at DESC").
		Limit(limit)
	if excludeTicketID != 0 {
		query = query.Where("ticket_id <> ?", excludeTicketID)
	}
	if err := query.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	return messages, nil
}

// ExistsWithMessageID reports whether a message with this exact identifier is
// already stored, in clean or angle-bracketed form. Used as the pre-insert
// duplicate-delivery guard.
func (r *messageRepository) ExistsWithMessageID(ctx context.Context, cleanID string) (bool, error) {
	if cleanID == "" {
		return false, nil
	}
	var count int64
	result := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("email_message_id = ? OR email_message_id = ?", cleanID, "<"+cleanID+">").
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("failed to check for duplicate message: %w", result.Error)
	}
	return count > 0, nil
}

// Delete deletes a message by its ID (cascade deletes attachments)
func (r *messageRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Message{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
