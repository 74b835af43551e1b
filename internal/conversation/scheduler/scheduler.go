package scheduler

import (
	"context"
	"log"
	"time"

	convusecase "mailmatch-backend/internal/conversation/usecase"
	"mailmatch-backend/internal/inbox/repository"
)

// WatchRenewer re-registers a provider push watch before it expires
// server-side.
type WatchRenewer interface {
	RenewWatch(ctx context.Context, inboxID string) error
}

// watchRenewInterval is how often each inbox's push watch is re-registered.
// Gmail watches lapse after seven days; daily renewal keeps a wide margin.
const watchRenewInterval = 24 * time.Hour

// Scheduler periodically runs an incremental sync of every connected inbox.
// Push notifications cover most changes; the periodic pass catches inboxes
// whose watch lapsed and providers without notifications at all. It also
// renews push watches so the notification path stays alive.
type Scheduler struct {
	inboxRepo    repository.InboxRepository
	conversation convusecase.ConversationUsecase
	interval     time.Duration
	stopChan     chan struct{}
	doneChan     chan struct{}

	watchRenewer WatchRenewer
	lastRenewed  map[string]time.Time
}

func NewScheduler(inboxRepo repository.InboxRepository, conversation convusecase.ConversationUsecase, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		inboxRepo:    inboxRepo,
		conversation: conversation,
		interval:     interval,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
		lastRenewed:  map[string]time.Time{},
	}
}

// SetWatchRenewer enables periodic push-watch renewal.
func (s *Scheduler) SetWatchRenewer(renewer WatchRenewer) {
	s.watchRenewer = renewer
}

// Start runs the refresh loop in the background.
func (s *Scheduler) Start() {
	go s.run()
	log.Printf("[Scheduler] Started, refreshing every %s", s.interval)
}

// Stop signals the loop to exit and waits for the current pass to finish.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	<-s.doneChan
	log.Println("[Scheduler] Stopped")
}

func (s *Scheduler) run() {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.refreshAll()
		case <-s.stopChan:
			return
		}
	}
}

func (s *Scheduler) refreshAll() {
	inboxes, err := s.inboxRepo.List()
	if err != nil {
		log.Printf("[Scheduler] Failed to list inboxes: %v", err)
		return
	}

	ctx := context.Background()
	for _, inbox := range inboxes {
		s.renewWatch(ctx, inbox.ID)

		result, err := s.conversation.RunIncrementalSync(ctx, inbox.ID)
		if err != nil {
			log.Printf("[Scheduler] Incremental sync for inbox %s failed: %v", inbox.ID, err)
			continue
		}
		if result.Processed > 0 || result.Failed > 0 {
			log.Printf("[Scheduler] Inbox %s refreshed: %d processed, %d failed", inbox.ID, result.Processed, result.Failed)
		}
	}
}

func (s *Scheduler) renewWatch(ctx context.Context, inboxID string) {
	if s.watchRenewer == nil {
		return
	}
	if time.Since(s.lastRenewed[inboxID]) < watchRenewInterval {
		return
	}
	if err := s.watchRenewer.RenewWatch(ctx, inboxID); err != nil {
		log.Printf("[Scheduler] Watch renewal for inbox %s failed: %v", inboxID, err)
		return
	}
	s.lastRenewed[inboxID] = time.Now()
}
