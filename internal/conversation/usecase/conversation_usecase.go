package usecase

import (
	"fmt"

	convdomain "mailmatch-backend/internal/conversation/domain"
	"mailmatch-backend/internal/conversation/repository"
	inboxdomain "mailmatch-backend/internal/inbox/domain"
	inboxrepo "mailmatch-backend/internal/inbox/repository"
	"mailmatch-backend/pkg/config"
)

// conversationUsecase implements ConversationUsecase
type conversationUsecase struct {
	inboxRepo      inboxrepo.InboxRepository
	topicRepo      repository.TopicRepository
	messageRepo    repository.MessageRepository
	attachmentRepo repository.AttachmentRepository
	templateRepo   repository.TemplateRepository

	// providers is the sealed provider set: one MailProvider per kind,
	// chosen once at the inbox boundary.
	providers    map[inboxdomain.ProviderKind]MailProvider
	credProvider CredentialProvider
	vectorIndex  VectorIndex
	embedWorker  *EmbedWorkerService

	cfg *config.Config
}

// NewConversationUsecase creates the conversation usecase with all its
// collaborators injected.
func NewConversationUsecase(
	inboxRepo inboxrepo.InboxRepository,
	topicRepo repository.TopicRepository,
	messageRepo repository.MessageRepository,
	attachmentRepo repository.AttachmentRepository,
	templateRepo repository.TemplateRepository,
	providers map[inboxdomain.ProviderKind]MailProvider,
	credProvider CredentialProvider,
	vectorIndex VectorIndex,
	embedWorker *EmbedWorkerService,
	cfg *config.Config,
) ConversationUsecase {
	return &conversationUsecase{
		inboxRepo:      inboxRepo,
		topicRepo:      topicRepo,
		messageRepo:    messageRepo,
		attachmentRepo: attachmentRepo,
		templateRepo:   templateRepo,
		providers:      providers,
		credProvider:   credProvider,
		vectorIndex:    vectorIndex,
		embedWorker:    embedWorker,
		cfg:            cfg,
	}
}

func (u *conversationUsecase) providerFor(inbox *inboxdomain.Inbox) (MailProvider, error) {
	provider, ok := u.providers[inbox.Provider]
	if !ok {
		return nil, fmt.Errorf("no provider registered for kind %q", inbox.Provider)
	}
	return provider, nil
}

func (u *conversationUsecase) ListTopics(inboxID string, limit, offset int) ([]*convdomain.Topic, error) {
	if limit <= 0 {
		limit = 20
	}
	return u.topicRepo.ListByInbox(inboxID, limit, offset)
}
