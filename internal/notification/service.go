package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	convusecase "mailmatch-backend/internal/conversation/usecase"
	"mailmatch-backend/internal/inbox/repository"
	"mailmatch-backend/pkg/config"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// clientOptions builds the Pub/Sub client options: an explicit service
// account credentials file when configured, application default credentials
// otherwise.
func clientOptions(cfg *config.Config) []option.ClientOption {
	var opts []option.ClientOption
	if cfg.GoogleCredentials != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GoogleCredentials))
	}
	return opts
}

// MailboxNotification is the payload Gmail publishes on the Pub/Sub topic
// whenever a watched mailbox changes.
type MailboxNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// Service listens on the Pub/Sub subscription and turns push notifications
// into incremental syncs of the matching inbox.
type Service struct {
	client       *pubsub.Client
	subscription *pubsub.Subscription
	inboxRepo    repository.InboxRepository
	conversation convusecase.ConversationUsecase

	// lastSeen deduplicates redelivered notifications per address; Pub/Sub
	// is at-least-once and Gmail re-publishes aggressively.
	lastSeen map[string]uint64
	mu       sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(ctx context.Context, cfg *config.Config, inboxRepo repository.InboxRepository, conversation convusecase.ConversationUsecase) (*Service, error) {
	client, err := pubsub.NewClient(ctx, cfg.GoogleProjectID, clientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	subName := cfg.GooglePubSubTopic + "-sub"
	subscription := client.Subscription(subName)

	return &Service{
		client:       client,
		subscription: subscription,
		inboxRepo:    inboxRepo,
		conversation: conversation,
		lastSeen:     map[string]uint64{},
		done:         make(chan struct{}),
	}, nil
}

// Start begins receiving notifications in the background.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		defer close(s.done)
		log.Printf("[Notification] Listening on subscription %s", s.subscription.ID())
		err := s.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
			s.handle(ctx, msg)
		})
		if err != nil && ctx.Err() == nil {
			log.Printf("[Notification] Receive stopped with error: %v", err)
		}
	}()
}

// Stop cancels the receive loop and waits for it to drain.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	if err := s.client.Close(); err != nil {
		log.Printf("[Notification] Failed to close pubsub client: %v", err)
	}
	log.Println("[Notification] Listener stopped")
}

func (s *Service) handle(ctx context.Context, msg *pubsub.Message) {
	// Always ack: a notification is only a hint, the change cursor is the
	// durable record of what still needs syncing.
	defer msg.Ack()

	var notification MailboxNotification
	if err := json.Unmarshal(msg.Data, &notification); err != nil {
		log.Printf("[Notification] Malformed payload, dropping: %v", err)
		return
	}

	if s.alreadySeen(notification) {
		return
	}

	inbox, err := s.inboxRepo.FindByOwnerAddress(notification.EmailAddress)
	if err != nil {
		log.Printf("[Notification] Lookup failed for %s: %v", notification.EmailAddress, err)
		return
	}
	if inbox == nil {
		log.Printf("[Notification] No inbox connected for %s, ignoring", notification.EmailAddress)
		return
	}

	if _, err := s.conversation.RunIncrementalSync(ctx, inbox.ID); err != nil {
		log.Printf("[Notification] Incremental sync for inbox %s failed: %v", inbox.ID, err)
	}
}

func (s *Service) alreadySeen(n MailboxNotification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastSeen[n.EmailAddress]; ok && n.HistoryID <= last {
		return true
	}
	s.lastSeen[n.EmailAddress] = n.HistoryID
	return false
}
