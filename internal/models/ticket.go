package models

import (
	"time"
)

// Ticket statuses. A customer reply moves waiting_for_customer back to open.
const (
	StatusOpen               = "open"
	StatusWaitingForCustomer = "waiting_for_customer"
	StatusResolved           = "resolved"
)

// Ticket represents a persistent customer support conversation.
// CreatedAt carries the authentic origination time of the first email,
// not the wall-clock time the system ingested it.
type Ticket struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Subject       string    `gorm:"not null;size:998" json:"subject"`
	Status        string    `gorm:"not null;size:32;default:open;index" json:"status"`
	CustomerEmail string    `gorm:"not null;size:255;index" json:"customer_email"`
	CustomerName  string    `gorm:"size:255" json:"customer_name,omitempty"`
	DeskID        uint      `gorm:"not null;index" json:"desk_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `gorm:"index" json:"updated_at"`

	// Relationships
	Desk     Desk      `gorm:"foreignKey:DeskID;constraint:OnDelete:CASCADE" json:"-"`
	Messages []Message `gorm:"foreignKey:TicketID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

// TableName returns the table name for Ticket
func (Ticket) TableName() string {
	return "tickets"
}

// ValidStatus reports whether s is a known ticket status.
func ValidStatus(s string) bool {
	switch s {
	case StatusOpen, StatusWaitingForCustomer, StatusResolved:
		return true
	}
	return false
}

// TicketListItem is a lightweight version for list views
type TicketListItem struct {
	ID            uint      `json:"id"`
	Subject       string    `json:"subject"`
	Status        string    `json:"status"`
	CustomerEmail string    `json:"customer_email"`
	CustomerName  string    `json:"customer_name,omitempty"`
	DeskID        uint      `json:"desk_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	MessageCount  int       `json:"message_count"`
}
