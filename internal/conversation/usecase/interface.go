package usecase

import (
	"context"

	convdomain "mailmatch-backend/internal/conversation/domain"
	inboxdomain "mailmatch-backend/internal/inbox/domain"
)

// MailProvider abstracts one message provider (the change-cursor client).
// One implementation exists per provider kind; the usecase selects it once
// per inbox and never type-switches afterwards.
type MailProvider interface {
	// GetChangeCursor fetches the provider's current high-water mark.
	GetChangeCursor(ctx context.Context, creds *inboxdomain.Credentials, onRefresh inboxdomain.TokenUpdateFunc) (uint64, error)
	// ListRecentThreads lists up to max recent threads, identifiers and
	// preview snippets only.
	ListRecentThreads(ctx context.Context, creds *inboxdomain.Credentials, max int, onRefresh inboxdomain.TokenUpdateFunc) ([]convdomain.ThreadRef, error)
	// FetchThread fetches one complete thread with full message bodies.
	FetchThread(ctx context.Context, creds *inboxdomain.Credentials, threadID string, onRefresh inboxdomain.TokenUpdateFunc) (*convdomain.ThreadBody, error)
	// ListChangesSince lists provider-side changes after the given cursor.
	ListChangesSince(ctx context.Context, creds *inboxdomain.Credentials, cursor uint64, onRefresh inboxdomain.TokenUpdateFunc) (*convdomain.ChangeList, error)
}

// CredentialProvider turns an inbox's opaque credential reference into
// usable credentials and persists refreshed tokens.
type CredentialProvider interface {
	CredentialsFor(inbox *inboxdomain.Inbox) (*inboxdomain.Credentials, error)
	TokenUpdateCallback(inboxID string) inboxdomain.TokenUpdateFunc
}

// TemplateMatch is one nearest-neighbor hit from the vector index.
type TemplateMatch struct {
	TemplateID string
	MessageID  string
	Distance   float64
}

// VectorIndex is the embedding store: it embeds text on write and supports
// scoped nearest-neighbor queries over template examples.
type VectorIndex interface {
	UpsertMessageEmbedding(ctx context.Context, scopeID, messageID, text string) error
	AddTemplateExample(ctx context.Context, scopeID, templateID, messageID, text string) error
	DeleteTemplateExamples(ctx context.Context, templateID string) error
	QueryNearestTemplate(ctx context.Context, scopeID, text string, limit int) ([]TemplateMatch, error)
}

// SyncResult reports how a sync pass went: per-thread failures are counted,
// not fatal.
type SyncResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// ConversationUsecase is the surface the web/job layer calls.
type ConversationUsecase interface {
	RunFullSync(ctx context.Context, inboxID string) (*SyncResult, error)
	RunIncrementalSync(ctx context.Context, inboxID string) (*SyncResult, error)

	FindBestTemplate(ctx context.Context, messageID, scopeID string) (string, error)
	CreateTemplate(scopeID, name, body string) (*convdomain.Template, error)
	RegisterTemplateExample(ctx context.Context, templateID, messageID string) error
	DeleteTemplate(ctx context.Context, templateID string) error

	ListTopics(inboxID string, limit, offset int) ([]*convdomain.Topic, error)
}
