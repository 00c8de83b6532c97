package models

import (
	"time"
)

// Message represents one email turn (customer or agent) within a Ticket.
// CreatedAt carries the authentic email origination time, so values may
// arrive out of ingestion order; no monotonicity is assumed. TicketID is
// immutable once set.
type Message struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	TicketID    uint   `gorm:"not null;index" json:"ticket_id"`
	Content     string `json:"content,omitempty"`
	ContentHTML string `json:"content_html,omitempty"`
	Snippet     string `gorm:"size:255" json:"snippet,omitempty"`
	SenderEmail string `gorm:"not null;size:255" json:"sender_email"`
	SenderName  string `gorm:"size:255" json:"sender_name,omitempty"`
	IsAgent     bool   `gorm:"default:false" json:"is_agent"`
	// EmailMessageID is the RFC 5322 Message-Id header, stored clean-formed.
	// Named to stay clear of the Attachments association key below.
	EmailMessageID string    `gorm:"column:email_message_id;size:255;index" json:"message_id,omitempty"`
	InReplyTo      string    `gorm:"size:255" json:"in_reply_to,omitempty"`
	References     string    `json:"references,omitempty"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`

	// Relationships
	Ticket      Ticket       `gorm:"foreignKey:TicketID;constraint:OnDelete:CASCADE" json:"-"`
	Attachments []Attachment `gorm:"foreignKey:MessageID;references:ID;constraint:OnDelete:CASCADE" json:"attachments,omitempty"`
}

// TableName returns the table name for Message
func (Message) TableName() string {
	return "messages"
}
