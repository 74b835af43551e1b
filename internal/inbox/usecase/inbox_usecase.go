package usecase

import (
	"context"
	"encoding/json"
	"log"

	inboxdomain "mailmatch-backend/internal/inbox/domain"
	"mailmatch-backend/internal/inbox/repository"
	"mailmatch-backend/pkg/config"
	"mailmatch-backend/pkg/utils/crypto"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// MailboxWatcher registers a mailbox for provider push notifications and
// cancels that registration. Only providers with a push API implement it.
type MailboxWatcher interface {
	Watch(ctx context.Context, creds *inboxdomain.Credentials, topicName string, onRefresh inboxdomain.TokenUpdateFunc) (uint64, error)
	Stop(ctx context.Context, creds *inboxdomain.Credentials, onRefresh inboxdomain.TokenUpdateFunc) error
}

// FullSyncFunc triggers the initial import of a freshly connected inbox.
type FullSyncFunc func(ctx context.Context, inboxID string) error

// InboxUsecase manages the lifecycle of connected mailboxes.
type InboxUsecase interface {
	// Connect registers a mailbox, stores its credentials encrypted,
	// registers the provider push watch, and kicks off the initial full
	// sync in the background. Connecting an address that is already
	// connected returns the existing inbox unchanged.
	Connect(ctx context.Context, provider inboxdomain.ProviderKind, ownerAddress string, creds *inboxdomain.Credentials) (*inboxdomain.Inbox, error)
	// Disconnect stops the push watch and removes the inbox and all cached
	// topics, messages and attachments derived from it.
	Disconnect(ctx context.Context, inboxID string) error
	Get(inboxID string) (*inboxdomain.Inbox, error)
	List() ([]*inboxdomain.Inbox, error)

	// RenewWatch re-registers the provider push watch; watches expire
	// server-side (Gmail's lapse after seven days), so callers renew
	// periodically.
	RenewWatch(ctx context.Context, inboxID string) error

	// SetMailboxWatcher wires the provider push-watch client; without it
	// watches are silently skipped and only periodic refresh applies.
	SetMailboxWatcher(watcher MailboxWatcher, topicName string)
	// SetFullSyncCallback wires the initial-import trigger invoked after a
	// successful Connect.
	SetFullSyncCallback(callback FullSyncFunc)

	// CredentialsFor decrypts an inbox's stored credential reference.
	CredentialsFor(inbox *inboxdomain.Inbox) (*inboxdomain.Credentials, error)
	// TokenUpdateCallback returns a callback that re-encrypts and stores
	// refreshed OAuth tokens for the inbox.
	TokenUpdateCallback(inboxID string) inboxdomain.TokenUpdateFunc
}

type inboxUsecase struct {
	inboxRepo repository.InboxRepository
	cfg       *config.Config

	watcher   MailboxWatcher
	topicName string
	fullSync  FullSyncFunc
}

func NewInboxUsecase(inboxRepo repository.InboxRepository, cfg *config.Config) InboxUsecase {
	return &inboxUsecase{
		inboxRepo: inboxRepo,
		cfg:       cfg,
	}
}

func (u *inboxUsecase) Connect(ctx context.Context, provider inboxdomain.ProviderKind, ownerAddress string, creds *inboxdomain.Credentials) (*inboxdomain.Inbox, error) {
	if ownerAddress == "" {
		return nil, errors.New("owner address is required")
	}
	if provider != inboxdomain.ProviderGmail && provider != inboxdomain.ProviderIMAP {
		return nil, errors.Errorf("unsupported provider %q", provider)
	}

	existing, err := u.inboxRepo.FindByOwnerAddress(ownerAddress)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Printf("[Inbox] %s already connected as inbox %s", ownerAddress, existing.ID)
		return existing, nil
	}

	credentialRef, err := u.encryptCredentials(creds)
	if err != nil {
		return nil, err
	}

	inbox := &inboxdomain.Inbox{
		ID:            uuid.New().String(),
		Provider:      provider,
		OwnerAddress:  ownerAddress,
		CredentialRef: credentialRef,
	}
	if err := u.inboxRepo.Create(inbox); err != nil {
		return nil, errors.Wrap(err, "unable to create inbox")
	}

	u.startWatch(ctx, inbox, creds)

	// The initial import runs in the background; progress is visible via
	// the inbox's pending_imports counter.
	if u.fullSync != nil {
		go func() {
			if err := u.fullSync(context.Background(), inbox.ID); err != nil {
				log.Printf("[Inbox] Initial full sync for inbox %s failed: %v", inbox.ID, err)
			}
		}()
	}

	log.Printf("[Inbox] Connected %s inbox %s for %s", provider, inbox.ID, ownerAddress)
	return inbox, nil
}

func (u *inboxUsecase) SetMailboxWatcher(watcher MailboxWatcher, topicName string) {
	u.watcher = watcher
	u.topicName = topicName
}

func (u *inboxUsecase) SetFullSyncCallback(callback FullSyncFunc) {
	u.fullSync = callback
}

// startWatch registers the push watch for providers that support one. A
// watch failure is logged, not fatal: the periodic refresher still covers
// the inbox.
func (u *inboxUsecase) startWatch(ctx context.Context, inbox *inboxdomain.Inbox, creds *inboxdomain.Credentials) {
	if u.watcher == nil || inbox.Provider != inboxdomain.ProviderGmail {
		return
	}
	if _, err := u.watcher.Watch(ctx, creds, u.topicName, u.TokenUpdateCallback(inbox.ID)); err != nil {
		log.Printf("[Inbox] Failed to register mailbox watch for inbox %s: %v", inbox.ID, err)
		return
	}
	log.Printf("[Inbox] Mailbox watch registered for inbox %s on topic %s", inbox.ID, u.topicName)
}

func (u *inboxUsecase) RenewWatch(ctx context.Context, inboxID string) error {
	inbox, err := u.inboxRepo.FindByID(inboxID)
	if err != nil {
		return err
	}
	if inbox == nil {
		return errors.Errorf("inbox %s not found", inboxID)
	}
	if u.watcher == nil || inbox.Provider != inboxdomain.ProviderGmail {
		return nil
	}

	creds, err := u.CredentialsFor(inbox)
	if err != nil {
		return err
	}
	if _, err := u.watcher.Watch(ctx, creds, u.topicName, u.TokenUpdateCallback(inbox.ID)); err != nil {
		return errors.Wrap(err, "unable to renew mailbox watch")
	}
	return nil
}

func (u *inboxUsecase) Disconnect(ctx context.Context, inboxID string) error {
	inbox, err := u.inboxRepo.FindByID(inboxID)
	if err != nil {
		return err
	}
	if inbox == nil {
		return errors.Errorf("inbox %s not found", inboxID)
	}

	if u.watcher != nil && inbox.Provider == inboxdomain.ProviderGmail {
		if creds, err := u.CredentialsFor(inbox); err == nil {
			if err := u.watcher.Stop(ctx, creds, u.TokenUpdateCallback(inbox.ID)); err != nil {
				log.Printf("[Inbox] Failed to stop mailbox watch for inbox %s: %v", inboxID, err)
			}
		}
	}

	if err := u.inboxRepo.Delete(inboxID); err != nil {
		return errors.Wrap(err, "unable to delete inbox")
	}
	log.Printf("[Inbox] Disconnected inbox %s (%s)", inboxID, inbox.OwnerAddress)
	return nil
}

func (u *inboxUsecase) Get(inboxID string) (*inboxdomain.Inbox, error) {
	return u.inboxRepo.FindByID(inboxID)
}

func (u *inboxUsecase) List() ([]*inboxdomain.Inbox, error) {
	return u.inboxRepo.List()
}

func (u *inboxUsecase) CredentialsFor(inbox *inboxdomain.Inbox) (*inboxdomain.Credentials, error) {
	plaintext, err := crypto.Decrypt(inbox.CredentialRef, u.cfg.EncryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decrypt credentials")
	}
	creds := &inboxdomain.Credentials{}
	if err := json.Unmarshal([]byte(plaintext), creds); err != nil {
		return nil, errors.Wrap(err, "unable to decode credentials")
	}
	return creds, nil
}

// TokenUpdateCallback rewrites the stored credential reference whenever the
// provider hands back a refreshed token, so the next sync does not need to
// refresh again.
func (u *inboxUsecase) TokenUpdateCallback(inboxID string) inboxdomain.TokenUpdateFunc {
	return func(token *oauth2.Token) error {
		inbox, err := u.inboxRepo.FindByID(inboxID)
		if err != nil {
			return err
		}
		if inbox == nil {
			return errors.Errorf("inbox %s not found", inboxID)
		}

		creds, err := u.CredentialsFor(inbox)
		if err != nil {
			return err
		}
		creds.AccessToken = token.AccessToken
		if token.RefreshToken != "" {
			creds.RefreshToken = token.RefreshToken
		}

		credentialRef, err := u.encryptCredentials(creds)
		if err != nil {
			return err
		}
		if err := u.inboxRepo.UpdateCredentialRef(inboxID, credentialRef); err != nil {
			return errors.Wrap(err, "unable to store refreshed token")
		}
		log.Printf("[Inbox] Stored refreshed token for inbox %s", inboxID)
		return nil
	}
}

func (u *inboxUsecase) encryptCredentials(creds *inboxdomain.Credentials) (string, error) {
	raw, err := json.Marshal(creds)
	if err != nil {
		return "", errors.Wrap(err, "unable to encode credentials")
	}
	encrypted, err := crypto.Encrypt(string(raw), u.cfg.EncryptionKey)
	if err != nil {
		return "", errors.Wrap(err, "unable to encrypt credentials")
	}
	return encrypted, nil
}
