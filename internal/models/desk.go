package models

import (
	"time"
)

// Mailbox protocols supported by the polling layer
const (
	ProtocolIMAP = "imap"
	ProtocolPOP3 = "pop3"
)

// Desk represents a support desk: one inbound mailbox whose email is
// converted into tickets
type Desk struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"not null;size:255" json:"name"`
	InboundAddress string    `gorm:"uniqueIndex;not null;size:255" json:"inbound_address"`
	Protocol       string    `gorm:"not null;size:16;default:imap" json:"protocol"`
	Host           string    `gorm:"size:255" json:"host,omitempty"`
	Port           int       `json:"port,omitempty"`
	Username       string    `gorm:"size:255" json:"username,omitempty"`
	Password       string    `gorm:"size:255" json:"-"`
	Folder         string    `gorm:"size:255;default:INBOX" json:"folder,omitempty"`
	UseTLS         bool      `gorm:"default:true" json:"use_tls"`
	PollIntervalS  int       `gorm:"default:60" json:"poll_interval_s"`
	IsActive       bool      `gorm:"default:true" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relationships
	Tickets []Ticket `gorm:"foreignKey:DeskID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for Desk
func (Desk) TableName() string {
	return "desks"
}

// PollInterval returns the configured poll cadence, defaulting to one minute.
func (d *Desk) PollInterval() time.Duration {
	if d.PollIntervalS <= 0 {
		return time.Minute
	}
	return time.Duration(d.PollIntervalS) * time.Second
}
