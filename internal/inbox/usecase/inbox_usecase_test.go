package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	inboxdomain "mailmatch-backend/internal/inbox/domain"
	"mailmatch-backend/pkg/config"

	"golang.org/x/oauth2"
)

type fakeWatcher struct {
	mu       sync.Mutex
	topics   []string
	stopped  int
	watchErr error
}

func (w *fakeWatcher) Watch(ctx context.Context, creds *inboxdomain.Credentials, topicName string, onRefresh inboxdomain.TokenUpdateFunc) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watchErr != nil {
		return 0, w.watchErr
	}
	w.topics = append(w.topics, topicName)
	return 42, nil
}

func (w *fakeWatcher) Stop(ctx context.Context, creds *inboxdomain.Credentials, onRefresh inboxdomain.TokenUpdateFunc) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped++
	return nil
}

func (w *fakeWatcher) watchCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.topics)
}

type memInboxRepo struct {
	mu      sync.Mutex
	inboxes map[string]*inboxdomain.Inbox
}

func newMemInboxRepo() *memInboxRepo {
	return &memInboxRepo{inboxes: map[string]*inboxdomain.Inbox{}}
}

func (r *memInboxRepo) Create(inbox *inboxdomain.Inbox) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *inbox
	r.inboxes[inbox.ID] = &copied
	return nil
}

func (r *memInboxRepo) FindByID(id string) (*inboxdomain.Inbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if in, ok := r.inboxes[id]; ok {
		copied := *in
		return &copied, nil
	}
	return nil, nil
}

func (r *memInboxRepo) FindByOwnerAddress(address string) (*inboxdomain.Inbox, error) {
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

func (r *memInboxRepo) List() ([]*inboxdomain.Inbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*inboxdomain.Inbox
	for _, in := range r.inboxes {
		copied := *in
		out = append(out, &copied)
	}
	return out, nil
}

func (r *memInboxRepo) AdvanceChangeCursor(id string, cursor uint64) error { return nil }

func (r *memInboxRepo) UpdateCredentialRef(id, credentialRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if in, ok := r.inboxes[id]; ok {
		in.CredentialRef = credentialRef
	}
	return nil
}

func (r *memInboxRepo) SetPendingImports(id string, count int) error { return nil }
func (r *memInboxRepo) DecrementPendingImports(id string) error      { return nil }

func (r *memInboxRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inboxes, id)
	return nil
}

func testUsecase() (InboxUsecase, *memInboxRepo) {
	repo := newMemInboxRepo()
	cfg := &config.Config{EncryptionKey: "unit-test-key"}
	return NewInboxUsecase(repo, cfg), repo
}

func TestConnectRoundTripsCredentials(t *testing.T) {
	u, _ := testUsecase()
	ctx := context.Background()

	creds := &inboxdomain.Credentials{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
	}
	inbox, err := u.Connect(ctx, inboxdomain.ProviderGmail, "owner@example.com", creds)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if inbox.CredentialRef == "" {
		t.Fatal("credential ref not stored")
	}
	if inbox.CredentialRef == `{"access_token":"at-1","refresh_token":"rt-1"}` {
		t.Fatal("credentials stored in plaintext")
	}

	got, err := u.CredentialsFor(inbox)
	if err != nil {
		t.Fatalf("CredentialsFor: %v", err)
	}
	if got.AccessToken != "at-1" || got.RefreshToken != "rt-1" {
		t.Errorf("decrypted credentials: %+v", got)
	}
}

func TestConnectExistingAddressIsIdempotent(t *testing.T) {
	u, repo := testUsecase()
	ctx := context.Background()

	first, err := u.Connect(ctx, inboxdomain.ProviderGmail, "owner@example.com", &inboxdomain.Credentials{AccessToken: "at"})
	if err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	second, err := u.Connect(ctx, inboxdomain.ProviderGmail, "owner@example.com", &inboxdomain.Credentials{AccessToken: "other"})
	if err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second Connect created a new inbox: %s vs %s", second.ID, first.ID)
	}
	inboxes, _ := repo.List()
	if len(inboxes) != 1 {
		t.Errorf("inbox count: got %d, want 1", len(inboxes))
	}
}

func TestConnectRejectsUnknownProvider(t *testing.T) {
	u, _ := testUsecase()
	if _, err := u.Connect(context.Background(), "pop3", "owner@example.com", &inboxdomain.Credentials{}); err == nil {
		t.Error("Connect accepted an unknown provider")
	}
}

func TestTokenUpdateCallbackRewritesCredentials(t *testing.T) {
	u, _ := testUsecase()
	ctx := context.Background()

	inbox, err := u.Connect(ctx, inboxdomain.ProviderGmail, "owner@example.com", &inboxdomain.Credentials{
		AccessToken:  "old-at",
		RefreshToken: "rt-1",
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	callback := u.TokenUpdateCallback(inbox.ID)
	if err := callback(&oauth2.Token{AccessToken: "new-at"}); err != nil {
		t.Fatalf("token update callback: %v", err)
	}

	updated, err := u.Get(inbox.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	creds, err := u.CredentialsFor(updated)
	if err != nil {
		t.Fatalf("CredentialsFor: %v", err)
	}
	if creds.AccessToken != "new-at" {
		t.Errorf("access token: got %q, want new-at", creds.AccessToken)
	}
	// A refresh response without a refresh token keeps the old one.
	if creds.RefreshToken != "rt-1" {
		t.Errorf("refresh token: got %q, want rt-1", creds.RefreshToken)
	}
}

func TestDisconnectRemovesInbox(t *testing.T) {
	u, repo := testUsecase()
	ctx := context.Background()

	inbox, err := u.Connect(ctx, inboxdomain.ProviderIMAP, "owner@example.com", &inboxdomain.Credentials{
		Host: "imap.example.com", Port: 993, Username: "owner", Password: "pw",
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := u.Disconnect(ctx, inbox.ID); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if got, _ := repo.FindByID(inbox.ID); got != nil {
		t.Errorf("inbox still present after disconnect: %+v", got)
	}
	if err := u.Disconnect(ctx, inbox.ID); err == nil {
		t.Error("Disconnect of a missing inbox should fail")
	}
}

func TestConnectRegistersGmailWatch(t *testing.T) {
	u, _ := testUsecase()
	watcher := &fakeWatcher{}
	u.SetMailboxWatcher(watcher, "projects/p/topics/mail-updates")
	ctx := context.Background()

	if _, err := u.Connect(ctx, inboxdomain.ProviderGmail, "owner@example.com", &inboxdomain.Credentials{AccessToken: "at"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if watcher.watchCount() != 1 {
		t.Fatalf("watch registrations after gmail connect: got %d, want 1", watcher.watchCount())
	}
	if watcher.topics[0] != "projects/p/topics/mail-updates" {
		t.Errorf("watch topic: got %q", watcher.topics[0])
	}

	// IMAP has no push API; connecting one must not register a watch.
	if _, err := u.Connect(ctx, inboxdomain.ProviderIMAP, "other@example.com", &inboxdomain.Credentials{Host: "imap.example.com", Port: 993}); err != nil {
		t.Fatalf("Connect imap: %v", err)
	}
	if watcher.watchCount() != 1 {
		t.Errorf("watch registrations after imap connect: got %d, want 1", watcher.watchCount())
	}
}

func TestConnectSurvivesWatchFailure(t *testing.T) {
	u, repo := testUsecase()
	watcher := &fakeWatcher{watchErr: errors.New("watch quota exceeded")}
	u.SetMailboxWatcher(watcher, "projects/p/topics/mail-updates")

	inbox, err := u.Connect(context.Background(), inboxdomain.ProviderGmail, "owner@example.com", &inboxdomain.Credentials{AccessToken: "at"})
	if err != nil {
		t.Fatalf("Connect should succeed despite watch failure: %v", err)
	}
	if got, _ := repo.FindByID(inbox.ID); got == nil {
		t.Error("inbox not stored after watch failure")
	}
}

func TestDisconnectStopsWatch(t *testing.T) {
	u, _ := testUsecase()
	watcher := &fakeWatcher{}
	u.SetMailboxWatcher(watcher, "projects/p/topics/mail-updates")
	ctx := context.Background()

	inbox, err := u.Connect(ctx, inboxdomain.ProviderGmail, "owner@example.com", &inboxdomain.Credentials{AccessToken: "at"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := u.Disconnect(ctx, inbox.ID); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if watcher.stopped != 1 {
		t.Errorf("watch stops after disconnect: got %d, want 1", watcher.stopped)
	}
}

func TestRenewWatch(t *testing.T) {
	u, _ := testUsecase()
	watcher := &fakeWatcher{}
	u.SetMailboxWatcher(watcher, "projects/p/topics/mail-updates")
	ctx := context.Background()

	gmailInbox, err := u.Connect(ctx, inboxdomain.ProviderGmail, "owner@example.com", &inboxdomain.Credentials{AccessToken: "at"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	imapInbox, err := u.Connect(ctx, inboxdomain.ProviderIMAP, "other@example.com", &inboxdomain.Credentials{Host: "imap.example.com", Port: 993})
	if err != nil {
		t.Fatalf("Connect imap: %v", err)
	}

	if err := u.RenewWatch(ctx, gmailInbox.ID); err != nil {
		t.Fatalf("RenewWatch gmail: %v", err)
	}
	if watcher.watchCount() != 2 {
		t.Errorf("watch registrations after renewal: got %d, want 2", watcher.watchCount())
	}

	// Renewal is a no-op for providers without a push API.
	if err := u.RenewWatch(ctx, imapInbox.ID); err != nil {
		t.Fatalf("RenewWatch imap: %v", err)
	}
	if watcher.watchCount() != 2 {
		t.Errorf("imap renewal registered a watch: got %d, want 2", watcher.watchCount())
	}

	if err := u.RenewWatch(ctx, "missing"); err == nil {
		t.Error("RenewWatch of a missing inbox should fail")
	}
}

func TestConnectTriggersFullSync(t *testing.T) {
	u, _ := testUsecase()
	synced := make(chan string, 1)
	u.SetFullSyncCallback(func(ctx context.Context, inboxID string) error {
		synced <- inboxID
		return nil
	})
	ctx := context.Background()

	inbox, err := u.Connect(ctx, inboxdomain.ProviderGmail, "owner@example.com", &inboxdomain.Credentials{AccessToken: "at"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case got := <-synced:
		if got != inbox.ID {
			t.Errorf("full sync triggered for %q, want %q", got, inbox.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not trigger the initial full sync")
	}

	// Reconnecting an already connected address must not re-import.
	if _, err := u.Connect(ctx, inboxdomain.ProviderGmail, "owner@example.com", &inboxdomain.Credentials{AccessToken: "at2"}); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	select {
	case <-synced:
		t.Error("reconnect of an existing inbox triggered another full sync")
	case <-time.After(100 * time.Millisecond):
	}
}
