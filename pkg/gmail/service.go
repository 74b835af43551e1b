package gmail

import (
	"context"
	"encoding/base64"
	"log"
	"time"

	convdomain "mailmatch-backend/internal/conversation/domain"
	inboxdomain "mailmatch-backend/internal/inbox/domain"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// TokenUpdateFunc is a callback function that handles token updates
type TokenUpdateFunc = inboxdomain.TokenUpdateFunc

// Gmail API quota units per method, used to pace requests below the
// per-user quota.
const (
	quotaGetProfile  = 1
	quotaThreadsList = 10
	quotaThreadsGet  = 10
	quotaHistoryList = 2
	quotaWatch       = 100
)

const maxRetryAttempts = 5

type Service struct {
	clientID     string
	clientSecret string

	// limiter paces all calls for this process; Gmail enforces 250 quota
	// units per user per second.
	limiter *rate.Limiter
}

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			log.Printf("[Gmail] Failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}

func NewService(clientID, clientSecret string) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		limiter:      rate.NewLimiter(rate.Limit(200), 200),
	}
}

// gmailService creates a Gmail client bound to the inbox's tokens. The token
// source is wrapped so refreshed access tokens flow back to storage.
func (s *Service) gmailService(ctx context.Context, creds *inboxdomain.Credentials, onTokenRefresh TokenUpdateFunc) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
	}

	// Only force refresh if we have a refresh token
	if creds.RefreshToken != "" {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	wrappedSource := &notifyTokenSource{
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: onTokenRefresh,
	}

	client := oauth2.NewClient(ctx, wrappedSource)

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, errors.Wrap(err, "unable to create Gmail service")
	}
	return srv, nil
}

// GetChangeCursor returns the account's current history id.
func (s *Service) GetChangeCursor(ctx context.Context, creds *inboxdomain.Credentials, onRefresh TokenUpdateFunc) (uint64, error) {
	srv, err := s.gmailService(ctx, creds, onRefresh)
	if err != nil {
		return 0, err
	}

	var profile *gmail.Profile
	err = s.do(ctx, quotaGetProfile, func() error {
		var err error
		profile, err = srv.Users.GetProfile("me").Context(ctx).Do()
		return err
	})
	if err != nil {
		return 0, errors.Wrap(translateErr(err), "unable to fetch profile")
	}
	return profile.HistoryId, nil
}

// ListRecentThreads lists up to max threads, newest first.
func (s *Service) ListRecentThreads(ctx context.Context, creds *inboxdomain.Credentials, max int, onRefresh TokenUpdateFunc) ([]convdomain.ThreadRef, error) {
	srv, err := s.gmailService(ctx, creds, onRefresh)
	if err != nil {
		return nil, err
	}

	refs := make([]convdomain.ThreadRef, 0, max)
	pageToken := ""
	for len(refs) < max {
		call := srv.Users.Threads.List("me").MaxResults(int64(max - len(refs))).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		var resp *gmail.ListThreadsResponse
		err = s.do(ctx, quotaThreadsList, func() error {
			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			return nil, errors.Wrap(translateErr(err), "unable to list threads")
		}

		for _, t := range resp.Threads {
			refs = append(refs, convdomain.ThreadRef{ThreadID: t.Id, Snippet: t.Snippet})
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return refs, nil
}

// FetchThread retrieves one thread with full message bodies.
func (s *Service) FetchThread(ctx context.Context, creds *inboxdomain.Credentials, threadID string, onRefresh TokenUpdateFunc) (*convdomain.ThreadBody, error) {
	srv, err := s.gmailService(ctx, creds, onRefresh)
	if err != nil {
		return nil, err
	}

	var thread *gmail.Thread
	err = s.do(ctx, quotaThreadsGet, func() error {
		var err error
		thread, err = srv.Users.Threads.Get("me", threadID).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(translateErr(err), "unable to fetch thread %s", threadID)
	}

	body := &convdomain.ThreadBody{ThreadID: thread.Id}
	for _, msg := range thread.Messages {
		body.Messages = append(body.Messages, &convdomain.MessageBody{
			ProviderMessageID: msg.Id,
			Snippet:           msg.Snippet,
			Labels:            msg.LabelIds,
			InternalDate:      time.UnixMilli(msg.InternalDate).UTC(),
			Root:              convertPart(msg.Payload),
		})
	}
	return body, nil
}

// ListChangesSince lists message-added history records past the cursor.
// The returned cursor is the history id of the last page, which covers all
// listed events.
func (s *Service) ListChangesSince(ctx context.Context, creds *inboxdomain.Credentials, cursor uint64, onRefresh TokenUpdateFunc) (*convdomain.ChangeList, error) {
	srv, err := s.gmailService(ctx, creds, onRefresh)
	if err != nil {
		return nil, err
	}

	changes := &convdomain.ChangeList{NewCursor: cursor}
	pageToken := ""
	for {
		call := srv.Users.History.List("me").
			StartHistoryId(cursor).
			HistoryTypes("messageAdded").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		var resp *gmail.ListHistoryResponse
		err = s.do(ctx, quotaHistoryList, func() error {
			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			// A 404 here means the cursor has expired out of Gmail's history
			// window and the caller must fall back to a full sync.
			return nil, errors.Wrap(translateErr(err), "unable to list history")
		}

		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message == nil {
					continue
				}
				changes.Events = append(changes.Events, convdomain.ChangeEvent{
					ThreadID: added.Message.ThreadId,
					Labels:   added.Message.LabelIds,
				})
			}
		}
		if resp.HistoryId > changes.NewCursor {
			changes.NewCursor = resp.HistoryId
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return changes, nil
}

// Watch registers the mailbox for push notifications on the Pub/Sub topic
// and returns the history id the watch started at. Watches expire after
// seven days and must be renewed.
func (s *Service) Watch(ctx context.Context, creds *inboxdomain.Credentials, topicName string, onRefresh TokenUpdateFunc) (uint64, error) {
	srv, err := s.gmailService(ctx, creds, onRefresh)
	if err != nil {
		return 0, err
	}

	var resp *gmail.WatchResponse
	err = s.do(ctx, quotaWatch, func() error {
		var err error
		resp, err = srv.Users.Watch("me", &gmail.WatchRequest{
			TopicName:         topicName,
			LabelFilterAction: "exclude",
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return 0, errors.Wrap(translateErr(err), "unable to start mailbox watch")
	}
	return resp.HistoryId, nil
}

// Stop cancels the mailbox's push notification watch.
func (s *Service) Stop(ctx context.Context, creds *inboxdomain.Credentials, onRefresh TokenUpdateFunc) error {
	srv, err := s.gmailService(ctx, creds, onRefresh)
	if err != nil {
		return err
	}
	if err := srv.Users.Stop("me").Context(ctx).Do(); err != nil {
		return errors.Wrap(translateErr(err), "unable to stop mailbox watch")
	}
	return nil
}

// do paces the call against the quota limiter and retries rate-limited or
// server-side failures with exponential backoff.
func (s *Service) do(ctx context.Context, quotaCost int, call func() error) error {
	backoff := time.Second
	for attempt := 0; ; attempt++ {
		if err := s.limiter.WaitN(ctx, quotaCost); err != nil {
			return err
		}

		err := call()
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt >= maxRetryAttempts {
			return err
		}

		log.Printf("[Gmail] Request throttled, retrying in %s: %v", backoff, err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		if backoff < 32*time.Second {
			backoff *= 2
		}
	}
}

func retryable(err error) bool {
	if gerr, ok := err.(*googleapi.Error); ok {
		return gerr.Code == 429 || gerr.Code >= 500
	}
	return false
}

// translateErr maps provider status codes onto domain sentinels.
func translateErr(err error) error {
	if gerr, ok := err.(*googleapi.Error); ok {
		switch gerr.Code {
		case 404:
			return convdomain.ErrThreadNotFound
		case 401, 403:
			return convdomain.ErrAuthRevoked
		}
	}
	return err
}

// convertPart maps the provider's body part tree onto the neutral form the
// extractor consumes. Body data arrives base64url encoded; decode failures
// leave the payload empty rather than dropping the part.
func convertPart(part *gmail.MessagePart) *convdomain.BodyPart {
	if part == nil {
		return nil
	}

	converted := &convdomain.BodyPart{
		MimeType: part.MimeType,
		Filename: part.Filename,
		Headers:  make(map[string]string, len(part.Headers)),
	}
	for _, h := range part.Headers {
		converted.Headers[h.Name] = h.Value
	}

	if part.Body != nil {
		body := &convdomain.PartBody{
			AttachmentID: part.Body.AttachmentId,
			Size:         part.Body.Size,
		}
		if part.Body.Data != "" {
			if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
				body.Data = string(data)
			} else if data, err := base64.RawURLEncoding.DecodeString(part.Body.Data); err == nil {
				body.Data = string(data)
			}
		}
		converted.Body = body
	}

	for _, child := range part.Parts {
		if c := convertPart(child); c != nil {
			converted.Parts = append(converted.Parts, c)
		}
	}
	return converted
}
