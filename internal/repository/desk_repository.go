package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
	"gorm.io/gorm"
)

// DeskRepository defines the interface for desk data access
type DeskRepository interface {
	Create(ctx context.Context, desk *models.Desk) error
	GetByID(ctx context.Context, id uint) (*models.Desk, error)
	GetByInboundAddress(ctx context.Context, address string) (*models.Desk, error)
	ListActive(ctx context.Context) ([]models.Desk, error)
	ListPollable(ctx context.Context) ([]models.Desk, error)
	Update(ctx context.Context, desk *models.Desk) error
}

// deskRepository implements DeskRepository using GORM
type deskRepository struct {
	db *gorm.DB
}

// NewDeskRepository creates a new DeskRepository instance
func NewDeskRepository(db *gorm.DB) DeskRepository {
	return &deskRepository{db: db}
}

// Create creates a new desk
func (r *deskRepository) Create(ctx context.Context, desk *models.Desk) error {
	result := r.db.WithContext(ctx).Create(desk)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create desk: %w", result.Error)
	}
	return nil
}

// GetByID retrieves a desk by its ID
func (r *deskRepository) GetByID(ctx context.Context, id uint) (*models.Desk, error) {
	var desk models.Desk
	result := r.db.WithContext(ctx).First(&desk, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get desk by ID: %w", result.Error)
	}
	return &desk, nil
}

// GetByInboundAddress retrieves a desk by its inbound email address
func (r *deskRepository) GetByInboundAddress(ctx context.Context, address string) (*models.Desk, error) {
	var desk models.Desk
	result := r.db.WithContext(ctx).
		Where("LOWER(inbound_address) = ?", strings.ToLower(strings.TrimSpace(address))).
		First(&desk)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get desk by address: %w", result.Error)
	}
	return &desk, nil
}

// ListActive lists all active desks
func (r *deskRepository) ListActive(ctx context.Context) ([]models.Desk, error) {
	var desks []models.Desk
	result := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id").Find(&desks)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list desks: %w", result.Error)
	}
	return desks, nil
}

// ListPollable lists active desks with a configured remote mailbox
func (r *deskRepository) ListPollable(ctx context.Context) ([]models.Desk, error) {
	var desks []models.Desk
	result := r.db.WithContext(ctx).
		Where("is_active = ? AND host <> ''", true).
		Order("id").
		Find(&desks)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list pollable desks: %w", result.Error)
	}
	return desks, nil
}

// Update persists desk changes
func (r *deskRepository) Update(ctx context.Context, desk *models.Desk) error {
	result := r.db.WithContext(ctx).Save(desk)
	if result.Error != nil {
		return fmt.Errorf("failed to update desk: %w", result.Error)
	}
	return nil
}
