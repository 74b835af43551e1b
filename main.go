package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	api "mailmatch-backend/cmd/api"
	convdomain "mailmatch-backend/internal/conversation/domain"
	convRepo "mailmatch-backend/internal/conversation/repository"
	"mailmatch-backend/internal/conversation/scheduler"
	convUsecase "mailmatch-backend/internal/conversation/usecase"
	inboxdomain "mailmatch-backend/internal/inbox/domain"
	inboxRepo "mailmatch-backend/internal/inbox/repository"
	inboxUsecase "mailmatch-backend/internal/inbox/usecase"
	"mailmatch-backend/internal/notification"
	"mailmatch-backend/pkg/chroma"
	"mailmatch-backend/pkg/config"
	"mailmatch-backend/pkg/database"
	"mailmatch-backend/pkg/gmail"
	"mailmatch-backend/pkg/imap"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&inboxdomain.Inbox{},
		&convdomain.Topic{},
		&convdomain.Message{},
		&convdomain.Attachment{},
		&convdomain.Template{},
		&convdomain.EmbeddingRecord{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	inboxRepository := inboxRepo.NewInboxRepository(db)
	topicRepository := convRepo.NewTopicRepository(db)
	messageRepository := convRepo.NewMessageRepository(db)
	attachmentRepository := convRepo.NewAttachmentRepository(db)
	templateRepository := convRepo.NewTemplateRepository(db)
	embeddingRepository := convRepo.NewEmbeddingRecordRepository(db)

	// Initialize mail providers
	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret)
	imapService := imap.NewService()
	providers := map[inboxdomain.ProviderKind]convUsecase.MailProvider{
		inboxdomain.ProviderGmail: gmailService,
		inboxdomain.ProviderIMAP:  imapService,
	}

	// Initialize the vector index; template matching degrades to "no match"
	// when Chroma is not configured.
	var vectorIndex convUsecase.VectorIndex
	if cfg.ChromaAPIKey != "" {
		chromaClient, err := chroma.NewClient(cfg)
		if err != nil {
			log.Printf("Warning: Failed to initialize Chroma client: %v. Template matching will not be available.", err)
		} else {
			vectorIndex = chromaClient
			log.Println("Chroma client initialized successfully")
		}
	} else {
		log.Println("Warning: CHROMA_API_KEY not set. Template matching will not be available.")
	}

	// Initialize embed workers for background embedding generation
	embedWorker := convUsecase.NewEmbedWorkerService(embeddingRepository, vectorIndex, cfg.EmbeddingDimension, cfg.EmbeddingTokenLimit, cfg.EmbedWorkerCount)
	embedWorker.Start()

	// Initialize use cases (dependency injection)
	inboxUC := inboxUsecase.NewInboxUsecase(inboxRepository, cfg)
	conversationUC := convUsecase.NewConversationUsecase(
		inboxRepository,
		topicRepository,
		messageRepository,
		attachmentRepository,
		templateRepository,
		providers,
		inboxUC,
		vectorIndex,
		embedWorker,
		cfg,
	)

	// Connect hands off to a background full sync once credentials are
	// stored.
	inboxUC.SetFullSyncCallback(func(ctx context.Context, inboxID string) error {
		_, err := conversationUC.RunFullSync(ctx, inboxID)
		return err
	})

	// Initialize Pub/Sub notification listener and Gmail mailbox watches,
	// only when a project is configured; the periodic scheduler covers
	// inboxes either way.
	if cfg.GoogleProjectID != "" {
		// Extract short topic name from full resource name if necessary
		topicName := cfg.GooglePubSubTopic
		if parts := strings.Split(topicName, "/"); len(parts) > 1 {
			topicName = parts[len(parts)-1]
		}
		// users.watch wants the fully qualified topic resource name.
		inboxUC.SetMailboxWatcher(gmailService, fmt.Sprintf("projects/%s/topics/%s", cfg.GoogleProjectID, topicName))

		notifService, err := notification.NewService(context.Background(), cfg, inboxRepository, conversationUC)
		if err != nil {
			log.Printf("Warning: Failed to initialize notification service: %v", err)
		} else {
			notifService.Start(context.Background())
		}
	} else {
		log.Println("Warning: GOOGLE_PROJECT_ID not configured, notification listener disabled")
	}

	// Periodic refresh of all connected inboxes, renewing push watches as
	// it goes.
	refresher := scheduler.NewScheduler(inboxRepository, conversationUC, cfg.RefreshInterval)
	refresher.SetWatchRenewer(inboxUC)
	refresher.Start()

	// Start server
	handler := api.NewHandler(inboxUC, conversationUC, cfg)
	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
