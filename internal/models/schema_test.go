package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openMigratedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	db.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, db.AutoMigrate(&Desk{}, &Ticket{}, &Message{}, &Attachment{}))
	return db
}

// ==================== Schema Tests ====================

// The attachments table must reference messages, not the other way around. A
// mis-resolved association here would invert the constraint and reject every
// message insert under enforced foreign keys.
func TestMigratedSchema_AttachmentReferencesMessage(t *testing.T) {
	db := openMigratedDB(t)

	type fkRow struct {
		Table string
		From  string
		To    string
	}
	var fks []fkRow
	require.NoError(t, db.Raw("PRAGMA foreign_key_list(attachments)").Scan(&fks).Error)

	found := false
	for _, fk := range fks {
		if fk.Table == "messages" && fk.From == "message_id" && fk.To == "id" {
			found = true
		}
	}
	assert.True(t, found, "attachments.message_id must reference messages.id, got %+v", fks)

	var msgFKs []fkRow
	require.NoError(t, db.Raw("PRAGMA foreign_key_list(messages)").Scan(&msgFKs).Error)
	for _, fk := range msgFKs {
		assert.NotEqual(t, "attachments", fk.Table, "messages must not reference attachments")
	}
}

func TestMigratedSchema_EmailMessageIDIsText(t *testing.T) {
	db := openMigratedDB(t)

	type colRow struct {
		Name string
		Type string
	}
	var cols []colRow
	require.NoError(t, db.Raw("PRAGMA table_info(messages)").Scan(&cols).Error)

	var idType string
	for _, col := range cols {
		if col.Name == "email_message_id" {
			idType = col.Type
		}
	}
	require.NotEmpty(t, idType, "messages table is missing email_message_id")
	assert.Contains(t, []string{"text", "TEXT", "varchar(255)"}, idType)
}

func TestMigratedSchema_MessageInsertWithAttachment(t *testing.T) {
	db := openMigratedDB(t)

	desk := Desk{Name: "Support", InboundAddress: "support@example.com", IsActive: true}
	require.NoError(t, db.Create(&desk).Error)

	ticket := Ticket{Subject: "Printer is broken", Status: StatusOpen, CustomerEmail: "alice@example.com", DeskID: desk.ID}
	require.NoError(t, db.Create(&ticket).Error)

	msg := Message{
		TicketID:       ticket.ID,
		SenderEmail:    "alice@example.com",
		EmailMessageID: "first@mail.example.com",
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, db.Create(&msg).Error)

	att := Attachment{MessageID: msg.ID, Filename: "invoice.pdf"}
	require.NoError(t, db.Create(&att).Error)

	var got Message
	require.NoError(t, db.Preload("Attachments").First(&got, msg.ID).Error)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "invoice.pdf", got.Attachments[0].Filename)
}
