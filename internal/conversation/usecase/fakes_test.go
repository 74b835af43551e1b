package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	convdomain "mailmatch-backend/internal/conversation/domain"
	inboxdomain "mailmatch-backend/internal/inbox/domain"
	"mailmatch-backend/pkg/config"

	"gorm.io/gorm"
)

// In-memory fakes for the repository, provider, and vector-index interfaces.
// They enforce the same natural-key uniqueness the real schema does, so the
// race-handling paths are exercised for real.

type fakeTopicRepo struct {
	mu     sync.Mutex
	seq    int
	topics map[string]*convdomain.Topic // by id
	writes int
}

func newFakeTopicRepo() *fakeTopicRepo {
	return &fakeTopicRepo{topics: map[string]*convdomain.Topic{}}
}

func (r *fakeTopicRepo) FindByNaturalKey(inboxID, providerThreadID string) (*convdomain.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.topics {
		if t.InboxID == inboxID && t.ProviderThreadID == providerThreadID {
			copied := *t
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeTopicRepo) FindByID(id string) (*convdomain.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.topics[id]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeTopicRepo) Create(topic *convdomain.Topic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.topics {
		if t.InboxID == topic.InboxID && t.ProviderThreadID == topic.ProviderThreadID {
			return gorm.ErrDuplicatedKey
		}
	}
	r.seq++
	if topic.ID == "" {
		topic.ID = fmt.Sprintf("topic-%d", r.seq)
	}
	copied := *topic
	r.topics[topic.ID] = &copied
	r.writes++
	return nil
}

func (r *fakeTopicRepo) UpdateFields(id string, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for k, v := range fields {
		switch k {
		case "subject":
			t.Subject = v.(string)
		case "snippet":
			t.Snippet = v.(string)
		case "from_name":
			t.FromName = v.(string)
		case "from_address":
			t.FromAddress = v.(string)
		case "to_name":
			t.ToName = v.(string)
		case "to_address":
			t.ToAddress = v.(string)
		case "last_message_at":
			t.LastMessageAt = v.(time.Time)
		case "last_synced_at":
			t.LastSyncedAt = v.(time.Time)
		case "message_count":
			t.MessageCount = v.(int)
		case "classification":
			t.Classification = v.(convdomain.Classification)
		case "reply_state":
			t.ReplyState = v.(convdomain.ReplyState)
		case "template_id":
			t.TemplateID = v.(string)
		case "reply_draft":
			t.ReplyDraft = v.(string)
		}
	}
	r.writes++
	return nil
}

func (r *fakeTopicRepo) ListByInbox(inboxID string, limit, offset int) ([]*convdomain.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*convdomain.Topic
	for _, t := range r.topics {
		if t.InboxID == inboxID {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeTopicRepo) MarkTemplateRemoved(templateID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.topics {
		if t.TemplateID == templateID && t.ReplyState == convdomain.ReplyStateAwaitingTemplate {
			t.ReplyState = convdomain.ReplyStateTemplateRemoved
		}
	}
	return nil
}

func (r *fakeTopicRepo) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

type fakeMessageRepo struct {
	mu        sync.Mutex
	seq       int
	messages  map[string]*convdomain.Message // by id
	createErr map[string]error               // by provider message id
	writes    int
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: map[string]*convdomain.Message{}}
}

func (r *fakeMessageRepo) FindByNaturalKey(topicID, providerMessageID string) (*convdomain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.TopicID == topicID && m.ProviderMessageID == providerMessageID {
			copied := *m
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeMessageRepo) FindByID(id string) (*convdomain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[id]; ok {
		copied := *m
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeMessageRepo) Create(message *convdomain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.createErr[message.ProviderMessageID]; ok {
		return err
	}
	for _, m := range r.messages {
		if m.TopicID == message.TopicID && m.ProviderMessageID == message.ProviderMessageID {
			return gorm.ErrDuplicatedKey
		}
	}
	r.seq++
	if message.ID == "" {
		message.ID = fmt.Sprintf("message-%d", r.seq)
	}
	copied := *message
	r.messages[message.ID] = &copied
	r.writes++
	return nil
}

func (r *fakeMessageRepo) UpdateFields(id string, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for k, v := range fields {
		switch k {
		case "body_text":
			m.BodyText = v.(string)
		case "body_html":
			m.BodyHTML = v.(string)
		case "snippet":
			m.Snippet = v.(string)
		case "labels":
			m.Labels = v.(convdomain.StringArray)
		}
	}
	r.writes++
	return nil
}

func (r *fakeMessageRepo) ListByTopic(topicID string) ([]*convdomain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*convdomain.Message
	for _, m := range r.messages {
		if m.TopicID == topicID {
			copied := *m
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) CountByTopic(topicID string) (int64, error) {
	msgs, _ := r.ListByTopic(topicID)
	return int64(len(msgs)), nil
}

func (r *fakeMessageRepo) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

type fakeAttachmentRepo struct {
	mu          sync.Mutex
	byMessage   map[string][]*convdomain.Attachment
	replaceCall int
}

func newFakeAttachmentRepo() *fakeAttachmentRepo {
	return &fakeAttachmentRepo{byMessage: map[string][]*convdomain.Attachment{}}
}

func (r *fakeAttachmentRepo) ReplaceForMessage(messageID string, attachments []*convdomain.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaceCall++
	replaced := make([]*convdomain.Attachment, len(attachments))
	for i, a := range attachments {
		copied := *a
		copied.MessageID = messageID
		replaced[i] = &copied
	}
	r.byMessage[messageID] = replaced
	return nil
}

func (r *fakeAttachmentRepo) ListByMessage(messageID string) ([]*convdomain.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byMessage[messageID], nil
}

type fakeTemplateRepo struct {
	mu        sync.Mutex
	seq       int
	templates map[string]*convdomain.Template
}

func newFakeTemplateRepo() *fakeTemplateRepo {
	return &fakeTemplateRepo{templates: map[string]*convdomain.Template{}}
}

func (r *fakeTemplateRepo) Create(template *convdomain.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if template.ID == "" {
		template.ID = fmt.Sprintf("template-%d", r.seq)
	}
	copied := *template
	r.templates[template.ID] = &copied
	return nil
}

func (r *fakeTemplateRepo) FindByID(id string) (*convdomain.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.templates[id]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeTemplateRepo) ListByScope(scopeID string) ([]*convdomain.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*convdomain.Template
	for _, t := range r.templates {
		if t.ScopeID == scopeID {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeTemplateRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.templates, id)
	return nil
}

type fakeEmbeddingRepo struct {
	mu       sync.Mutex
	embedded map[string]bool
}

func newFakeEmbeddingRepo() *fakeEmbeddingRepo {
	return &fakeEmbeddingRepo{embedded: map[string]bool{}}
}

func (r *fakeEmbeddingRepo) EnsureEmbedded(messageID string, dimension int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.embedded[messageID] {
		return true, nil
	}
	r.embedded[messageID] = true
	return false, nil
}

func (r *fakeEmbeddingRepo) Delete(messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.embedded, messageID)
	return nil
}

type fakeInboxRepo struct {
	mu      sync.Mutex
	inboxes map[string]*inboxdomain.Inbox
}

func newFakeInboxRepo(inboxes ...*inboxdomain.Inbox) *fakeInboxRepo {
	r := &fakeInboxRepo{inboxes: map[string]*inboxdomain.Inbox{}}
	for _, in := range inboxes {
		copied := *in
		r.inboxes[in.ID] = &copied
	}
	return r
}

func (r *fakeInboxRepo) Create(inbox *inboxdomain.Inbox) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *inbox
	r.inboxes[inbox.ID] = &copied
	return nil
}

func (r *fakeInboxRepo) FindByID(id string) (*inboxdomain.Inbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if in, ok := r.inboxes[id]; ok {
		copied := *in
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeInboxRepo) FindByOwnerAddress(address string) (*inboxdomain.Inbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, in := range r.inboxes {
		if in.OwnerAddress == address {
			copied := *in
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeInboxRepo) List() ([]*inboxdomain.Inbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*inboxdomain.Inbox
	for _, in := range r.inboxes {
		copied := *in
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeInboxRepo) AdvanceChangeCursor(id string, cursor uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if in, ok := r.inboxes[id]; ok && in.ChangeCursor < cursor {
		in.ChangeCursor = cursor
	}
	return nil
}

func (r *fakeInboxRepo) UpdateCredentialRef(id, credentialRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if in, ok := r.inboxes[id]; ok {
		in.CredentialRef = credentialRef
	}
	return nil
}

func (r *fakeInboxRepo) SetPendingImports(id string, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if in, ok := r.inboxes[id]; ok {
		in.PendingImports = count
	}
	return nil
}

func (r *fakeInboxRepo) DecrementPendingImports(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if in, ok := r.inboxes[id]; ok && in.PendingImports > 0 {
		in.PendingImports--
	}
	return nil
}

func (r *fakeInboxRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inboxes, id)
	return nil
}

func (r *fakeInboxRepo) cursor(id string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inboxes[id].ChangeCursor
}

type fakeProvider struct {
	cursor     uint64
	cursorErr  error
	refs       []convdomain.ThreadRef
	threads    map[string]*convdomain.ThreadBody
	changes    *convdomain.ChangeList
	changesErr error
	fetchErrs  map[string]error
}

func (p *fakeProvider) GetChangeCursor(ctx context.Context, creds *inboxdomain.Credentials, onRefresh inboxdomain.TokenUpdateFunc) (uint64, error) {
	return p.cursor, p.cursorErr
}

func (p *fakeProvider) ListRecentThreads(ctx context.Context, creds *inboxdomain.Credentials, max int, onRefresh inboxdomain.TokenUpdateFunc) ([]convdomain.ThreadRef, error) {
	if len(p.refs) > max {
		return p.refs[:max], nil
	}
	return p.refs, nil
}

func (p *fakeProvider) FetchThread(ctx context.Context, creds *inboxdomain.Credentials, threadID string, onRefresh inboxdomain.TokenUpdateFunc) (*convdomain.ThreadBody, error) {
	if err, ok := p.fetchErrs[threadID]; ok {
		return nil, err
	}
	thread, ok := p.threads[threadID]
	if !ok {
		return nil, convdomain.ErrThreadNotFound
	}
	return thread, nil
}

func (p *fakeProvider) ListChangesSince(ctx context.Context, creds *inboxdomain.Credentials, cursor uint64, onRefresh inboxdomain.TokenUpdateFunc) (*convdomain.ChangeList, error) {
	if p.changesErr != nil {
		return nil, p.changesErr
	}
	return p.changes, nil
}

type fakeCredProvider struct{}

func (fakeCredProvider) CredentialsFor(inbox *inboxdomain.Inbox) (*inboxdomain.Credentials, error) {
	return &inboxdomain.Credentials{}, nil
}

func (fakeCredProvider) TokenUpdateCallback(inboxID string) inboxdomain.TokenUpdateFunc {
	return nil
}

type storedExample struct {
	scopeID    string
	templateID string
	messageID  string
	text       string
}

type fakeVectorIndex struct {
	mu        sync.Mutex
	messages  map[string]string // messageID -> embedded text
	examples  []storedExample
	upsertErr error
}

func newFakeVectorIndex() *fakeVectorIndex {
	return &fakeVectorIndex{messages: map[string]string{}}
}

func (v *fakeVectorIndex) UpsertMessageEmbedding(ctx context.Context, scopeID, messageID, text string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.upsertErr != nil {
		return v.upsertErr
	}
	v.messages[messageID] = text
	return nil
}

func (v *fakeVectorIndex) AddTemplateExample(ctx context.Context, scopeID, templateID, messageID, text string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.examples = append(v.examples, storedExample{scopeID, templateID, messageID, text})
	return nil
}

func (v *fakeVectorIndex) DeleteTemplateExamples(ctx context.Context, templateID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	kept := v.examples[:0]
	for _, ex := range v.examples {
		if ex.templateID != templateID {
			kept = append(kept, ex)
		}
	}
	v.examples = kept
	return nil
}

// QueryNearestTemplate fakes distance with string equality: an identical
// text is distance 0, anything else distance 1, preserving insertion order
// among ties.
func (v *fakeVectorIndex) QueryNearestTemplate(ctx context.Context, scopeID, text string, limit int) ([]TemplateMatch, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var matches []TemplateMatch
	for _, ex := range v.examples {
		if ex.scopeID != scopeID {
			continue
		}
		distance := 1.0
		if ex.text == text {
			distance = 0.0
		}
		matches = append(matches, TemplateMatch{TemplateID: ex.templateID, MessageID: ex.messageID, Distance: distance})
	}
	for i := 0; i < len(matches); i++ {
		for j := i + 1; j < len(matches); j++ {
			if matches[j].Distance < matches[i].Distance {
				matches[i], matches[j] = matches[j], matches[i]
			}
		}
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// fixture bundles a usecase wired entirely to fakes.
type fixture struct {
	usecase     *conversationUsecase
	inboxRepo   *fakeInboxRepo
	topicRepo   *fakeTopicRepo
	messageRepo *fakeMessageRepo
	attachRepo  *fakeAttachmentRepo
	tmplRepo    *fakeTemplateRepo
	vectorIndex *fakeVectorIndex
	provider    *fakeProvider
}

func newFixture(inbox *inboxdomain.Inbox, provider *fakeProvider) *fixture {
	f := &fixture{
		inboxRepo:   newFakeInboxRepo(inbox),
		topicRepo:   newFakeTopicRepo(),
		messageRepo: newFakeMessageRepo(),
		attachRepo:  newFakeAttachmentRepo(),
		tmplRepo:    newFakeTemplateRepo(),
		vectorIndex: newFakeVectorIndex(),
		provider:    provider,
	}
	cfg := &config.Config{
		EmbeddingTokenLimit: 2048,
		FetchConcurrency:    4,
		SyncBatchSize:       50,
	}
	providers := map[inboxdomain.ProviderKind]MailProvider{}
	if provider != nil {
		providers[inboxdomain.ProviderGmail] = provider
	}
	f.usecase = NewConversationUsecase(
		f.inboxRepo, f.topicRepo, f.messageRepo, f.attachRepo, f.tmplRepo,
		providers, fakeCredProvider{}, f.vectorIndex, nil, cfg,
	).(*conversationUsecase)
	return f
}

// textMessage builds a MessageBody whose root is a bare text/plain part.
func textMessage(providerID, from, to, subject, text string, labels ...string) *convdomain.MessageBody {
	return &convdomain.MessageBody{
		ProviderMessageID: providerID,
		Snippet:           text,
		Labels:            labels,
		InternalDate:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Root: &convdomain.BodyPart{
			MimeType: "text/plain",
			Headers: map[string]string{
				"From":    from,
				"To":      to,
				"Subject": subject,
				"Date":    "Sun, 01 Mar 2026 12:00:00 +0000",
			},
			Body: &convdomain.PartBody{Size: int64(len(text)), Data: text},
		},
	}
}
