package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
)

// PollingScheduler owns the mapping from desk id to an active poll entry,
// with an explicit start/stop lifecycle. All state is exclusively owned by
// the scheduler; there is no package-level registry.
type PollingScheduler struct {
	cron    *cron.Cron
	imap    *IMAPFetcher
	pop3    *POP3Fetcher
	handler Handler
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[uint]cron.EntryID
	// polling guards against a slow poll overlapping the next tick
	polling map[uint]*sync.Mutex
}

// NewPollingScheduler creates a scheduler that drives the given fetchers.
func NewPollingScheduler(imap *IMAPFetcher, pop3 *POP3Fetcher, handler Handler, logger *slog.Logger) *PollingScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PollingScheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		imap:    imap,
		pop3:    pop3,
		handler: handler,
		logger:  logger,
		entries: make(map[uint]cron.EntryID),
		polling: make(map[uint]*sync.Mutex),
	}
}

// Run starts the scheduler loop. Call Start per desk before or after.
func (s *PollingScheduler) Run() {
	s.cron.Start()
}

// Start schedules polling for one desk at its configured interval. Starting
// an already-scheduled desk replaces its entry (picking up interval changes).
func (s *PollingScheduler) Start(desk models.Desk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[desk.ID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, desk.ID)
	}

	spec := fmt.Sprintf("@every %s", desk.PollInterval())
	deskCopy := desk
	entryID, err := s.cron.AddFunc(spec, func() {
		s.poll(deskCopy)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule desk %d: %w", desk.ID, err)
	}
	s.entries[desk.ID] = entryID
	if _, ok := s.polling[desk.ID]; !ok {
		s.polling[desk.ID] = &sync.Mutex{}
	}

	s.logger.Info("desk polling scheduled",
		slog.Uint64("desk_id", uint64(desk.ID)),
		slog.String("protocol", desk.Protocol),
		slog.String("interval", desk.PollInterval().String()))
	return nil
}

// Stop cancels polling for one desk.
func (s *PollingScheduler) Stop(deskID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[deskID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, deskID)
		s.logger.Info("desk polling stopped", slog.Uint64("desk_id", uint64(deskID)))
	}
}

// StopAll cancels every poll entry and waits for running polls to finish.
func (s *PollingScheduler) StopAll() {
	s.mu.Lock()
	for deskID, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, deskID)
	}
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("polling scheduler stopped")
}

// Scheduled reports whether a desk currently has a poll entry.
func (s *PollingScheduler) Scheduled(deskID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[deskID]
	return ok
}

// poll runs one fetch cycle for a desk.
func (s *PollingScheduler) poll(desk models.Desk) {
	s.mu.Lock()
	lock := s.polling[desk.ID]
	s.mu.Unlock()
	if lock == nil {
		return
	}
	if !lock.TryLock() {
		s.logger.Warn("skipping poll, previous cycle still running",
			slog.Uint64("desk_id", uint64(desk.ID)))
		return
	}
	defer lock.Unlock()

	fetcher := FetcherFor(&desk, s.imap, s.pop3)
	if err := fetcher.Fetch(context.Background(), &desk, s.handler); err != nil {
		s.logger.Error("desk poll failed",
			slog.Uint64("desk_id", uint64(desk.ID)),
			slog.String("fetcher", fetcher.Name()),
			slog.Any("error", err))
	}
}
