//go:build integration

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
)

// PostgresIntegrationTestSuite exercises the repository layer against real
// PostgreSQL; the raw list query and LIKE-based identifier lookup have
// dialect-sensitive corners the sqlite tests cannot cover.
type PostgresIntegrationTestSuite struct {
	suite.Suite
	container   testcontainers.Container
	db          *gorm.DB
	deskRepo    DeskRepository
	ticketRepo  TicketRepository
	messageRepo MessageRepository
}

func (s *PostgresIntegrationTestSuite) SetupSuite() {
	if testing.Short() {
		s.T().Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "helpdesk_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T(), err)
	s.container = container

	host, err := container.Host(ctx)
	require.NoError(s.T(), err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(s.T(), err)

	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=helpdesk_test sslmode=disable",
		host, port.Port())

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err)
	s.db = db

	err = db.AutoMigrate(&models.Desk{}, &models.Ticket{}, &models.Message{}, &models.Attachment{})
	require.NoError(s.T(), err)

	s.deskRepo = NewDeskRepository(db)
	s.ticketRepo = NewTicketRepository(db)
	s.messageRepo = NewMessageRepository(db)
}

func (s *PostgresIntegrationTestSuite) TearDownSuite() {
	if s.container != nil {
		s.container.Terminate(context.Background())
	}
}

func (s *PostgresIntegrationTestSuite) SetupTest() {
	s.db.Exec("TRUNCATE desks, tickets, messages, attachments RESTART IDENTITY CASCADE")
}

func (s *PostgresIntegrationTestSuite) seedConversation() (models.Desk, models.Ticket) {
	ctx := context.Background()

	desk := models.Desk{Name: "Support", InboundAddress: "support@example.com", IsActive: true}
	require.NoError(s.T(), s.deskRepo.Create(ctx, &desk))

	base := time.Now().UTC().Add(-24 * time.Hour).Truncate(time.Second)
	ticket := models.Ticket{
		Subject:       "Printer is broken",
		Status:        models.StatusOpen,
		CustomerEmail: "alice@example.com",
		DeskID:        desk.ID,
		CreatedAt:     base,
		UpdatedAt:     base,
	}
	require.NoError(s.T(), s.ticketRepo.Create(ctx, &ticket))

	for i, id := range []string{"first@mail.example.com", "relay-second123@mx.example.com"} {
		msg := models.Message{
			TicketID:       ticket.ID,
			SenderEmail:    "alice@example.com",
			EmailMessageID: id,
			CreatedAt:      base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(s.T(), s.messageRepo.Create(ctx, &msg))
	}
	return desk, ticket
}

// ==================== Lookalike Lookup Tests ====================

func (s *PostgresIntegrationTestSuite) TestLookalikeLookup() {
	_, ticket := s.seedConversation()
	ctx := context.Background()

	msg, err := s.messageRepo.FindNewestByLookalikeMessageID(ctx, "first@mail.example.com", 0)
	s.Require().NoError(err)
	s.Equal(ticket.ID, msg.TicketID)

	// Substring form via LIKE
	msg, err = s.messageRepo.FindNewestByLookalikeMessageID(ctx, "second123@mx.example.com", 0)
	s.Require().NoError(err)
	s.Equal(ticket.ID, msg.TicketID)

	_, err = s.messageRepo.FindNewestByLookalikeMessageID(ctx, "ghost@nowhere.example.com", 0)
	s.ErrorIs(err, ErrNotFound)
}

// ==================== List Query Tests ====================

func (s *PostgresIntegrationTestSuite) TestListByDeskWithMessageCount() {
	desk, _ := s.seedConversation()

	items, total, err := s.ticketRepo.ListByDesk(context.Background(), desk.ID, "", 10, 0)
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Require().Len(items, 1)
	s.Equal(2, items[0].MessageCount)
}

// ==================== Reply Touch Tests ====================

func (s *PostgresIntegrationTestSuite) TestTouchOnCustomerReply() {
	_, ticket := s.seedConversation()
	ctx := context.Background()

	s.Require().NoError(s.ticketRepo.UpdateStatus(ctx, ticket.ID, models.StatusWaitingForCustomer))

	replyAt := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	s.Require().NoError(s.ticketRepo.TouchOnCustomerReply(ctx, ticket.ID, replyAt))

	got, err := s.ticketRepo.GetByID(ctx, ticket.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusOpen, got.Status)
	s.True(got.UpdatedAt.Equal(replyAt))
}

func TestPostgresIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationTestSuite))
}
