package usecase

import (
	"context"
	"log"
	"sync/atomic"

	convdomain "mailmatch-backend/internal/conversation/domain"
	inboxdomain "mailmatch-backend/internal/inbox/domain"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// RunFullSync performs the initial import of an inbox: store the provider's
// current change cursor, list the most recent threads, then fetch and upsert
// each complete thread. Fetches run as a batch and may complete out of
// order; a single thread failure is logged and skipped, never fatal for the
// batch.
func (u *conversationUsecase) RunFullSync(ctx context.Context, inboxID string) (*SyncResult, error) {
	inbox, provider, creds, err := u.syncSetup(inboxID)
	if err != nil {
		return nil, err
	}
	onRefresh := u.credProvider.TokenUpdateCallback(inbox.ID)

	// The cursor is captured before listing so that changes arriving during
	// the import are re-delivered by the first incremental sync.
	cursor, err := provider.GetChangeCursor(ctx, creds, onRefresh)
	if err != nil {
		return nil, errors.Wrap(err, "unable to fetch change cursor")
	}
	if err := u.inboxRepo.AdvanceChangeCursor(inbox.ID, cursor); err != nil {
		return nil, errors.Wrap(err, "unable to store change cursor")
	}

	refs, err := provider.ListRecentThreads(ctx, creds, u.cfg.SyncBatchSize, onRefresh)
	if err != nil {
		return nil, errors.Wrap(err, "unable to list recent threads")
	}
	if err := u.inboxRepo.SetPendingImports(inbox.ID, len(refs)); err != nil {
		log.Printf("[Sync] Failed to set pending imports for inbox %s: %v", inbox.ID, err)
	}

	var processed, failed int64
	grp, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, u.fetchConcurrency())

	for _, ref := range refs {
		ref := ref
		grp.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			defer func() {
				if err := u.inboxRepo.DecrementPendingImports(inbox.ID); err != nil {
					log.Printf("[Sync] Failed to decrement pending imports: %v", err)
				}
			}()

			if err := u.fetchAndUpsert(gctx, inbox, provider, creds, ref.ThreadID, ref.Snippet, onRefresh); err != nil {
				log.Printf("[Sync] Thread %s failed, skipping: %v", ref.ThreadID, err)
				atomic.AddInt64(&failed, 1)
				return nil
			}
			atomic.AddInt64(&processed, 1)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, errors.Wrap(err, "full sync batch aborted")
	}

	result := &SyncResult{Processed: int(processed), Failed: int(failed)}
	log.Printf("[Sync] Full sync for inbox %s done: %d processed, %d failed", inbox.ID, result.Processed, result.Failed)
	return result, nil
}

// RunIncrementalSync lists provider changes since the stored cursor and
// re-imports every touched thread in full, since thread metadata can change
// without the event carrying new body text. The cursor only advances when
// the change listing itself succeeded, so a failed pass retries from the
// same point; the upsert's natural-key dedup makes the retry idempotent.
func (u *conversationUsecase) RunIncrementalSync(ctx context.Context, inboxID string) (*SyncResult, error) {
	inbox, provider, creds, err := u.syncSetup(inboxID)
	if err != nil {
		return nil, err
	}
	onRefresh := u.credProvider.TokenUpdateCallback(inbox.ID)

	changes, err := provider.ListChangesSince(ctx, creds, inbox.ChangeCursor, onRefresh)
	if err != nil {
		// Cursor stays where it was; the next attempt covers the same span.
		log.Printf("[Sync] Change listing failed for inbox %s, cursor unchanged: %v", inbox.ID, err)
		return nil, errors.Wrap(err, "unable to list changes")
	}

	result := &SyncResult{}
	seen := make(map[string]bool)
	for _, event := range changes.Events {
		// Draft messages never produce topics.
		if convdomain.HasLabelIn(event.Labels, convdomain.LabelDraft) {
			continue
		}
		if seen[event.ThreadID] {
			continue
		}
		seen[event.ThreadID] = true

		if err := u.fetchAndUpsert(ctx, inbox, provider, creds, event.ThreadID, "", onRefresh); err != nil {
			log.Printf("[Sync] Thread %s failed during incremental sync, skipping: %v", event.ThreadID, err)
			result.Failed++
			continue
		}
		result.Processed++
	}

	// Advance even when there were zero events: the listing succeeded, so
	// everything up to NewCursor has been seen.
	if err := u.inboxRepo.AdvanceChangeCursor(inbox.ID, changes.NewCursor); err != nil {
		return result, errors.Wrap(err, "unable to advance change cursor")
	}

	log.Printf("[Sync] Incremental sync for inbox %s done: %d processed, %d failed, cursor %d", inbox.ID, result.Processed, result.Failed, changes.NewCursor)
	return result, nil
}

func (u *conversationUsecase) fetchAndUpsert(ctx context.Context, inbox *inboxdomain.Inbox, provider MailProvider, creds *inboxdomain.Credentials, threadID, snippet string, onRefresh inboxdomain.TokenUpdateFunc) error {
	thread, err := provider.FetchThread(ctx, creds, threadID, onRefresh)
	if err != nil {
		if errors.Is(err, convdomain.ErrThreadNotFound) {
			// The thread vanished between listing and fetch; permanently
			// gone, nothing to retry.
			log.Printf("[Sync] Thread %s no longer exists, skipping", threadID)
			return nil
		}
		return errors.Wrapf(err, "fetching thread %s", threadID)
	}
	if _, err := u.UpsertTopic(inbox, thread, snippet); err != nil {
		return errors.Wrapf(err, "upserting thread %s", threadID)
	}
	return nil
}

func (u *conversationUsecase) syncSetup(inboxID string) (*inboxdomain.Inbox, MailProvider, *inboxdomain.Credentials, error) {
	inbox, err := u.inboxRepo.FindByID(inboxID)
	if err != nil {
		return nil, nil, nil, err
	}
	if inbox == nil {
		return nil, nil, nil, errors.Errorf("inbox %s not found", inboxID)
	}
	provider, err := u.providerFor(inbox)
	if err != nil {
		return nil, nil, nil, err
	}
	creds, err := u.credProvider.CredentialsFor(inbox)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "unable to resolve inbox credentials")
	}
	return inbox, provider, creds, nil
}

func (u *conversationUsecase) fetchConcurrency() int {
	if u.cfg != nil && u.cfg.FetchConcurrency > 0 {
		return u.cfg.FetchConcurrency
	}
	return 10
}
