package imap

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"

	convdomain "mailmatch-backend/internal/conversation/domain"
	inboxdomain "mailmatch-backend/internal/inbox/domain"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	"github.com/pkg/errors"
)

// Service speaks IMAP for inboxes without a change-notification API. IMAP
// has no thread listing, so every message is its own single-message thread
// keyed by UID, and the mailbox's UIDNEXT value serves as the change cursor:
// any UID at or past the stored cursor is new since the last sync.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// connect dials the server, logs in and selects INBOX read-only.
func (s *Service) connect(creds *inboxdomain.Credentials) (*client.Client, *imap.MailboxStatus, error) {
	addr := fmt.Sprintf("%s:%d", creds.Host, creds.Port)
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "unable to dial %s", addr)
	}

	if err := c.Login(creds.Username, creds.Password); err != nil {
		c.Logout()
		return nil, nil, errors.Wrap(convdomain.ErrAuthRevoked, err.Error())
	}

	mbox, err := c.Select("INBOX", true)
	if err != nil {
		c.Logout()
		return nil, nil, errors.Wrap(err, "unable to select INBOX")
	}
	return c, mbox, nil
}

func (s *Service) GetChangeCursor(ctx context.Context, creds *inboxdomain.Credentials, onRefresh inboxdomain.TokenUpdateFunc) (uint64, error) {
	c, mbox, err := s.connect(creds)
	if err != nil {
		return 0, err
	}
	defer c.Logout()
	return uint64(mbox.UidNext), nil
}

func (s *Service) ListRecentThreads(ctx context.Context, creds *inboxdomain.Credentials, max int, onRefresh inboxdomain.TokenUpdateFunc) ([]convdomain.ThreadRef, error) {
	c, mbox, err := s.connect(creds)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if mbox.Messages == 0 {
		return nil, nil
	}

	from := uint32(1)
	if mbox.Messages > uint32(max) {
		from = mbox.Messages - uint32(max) + 1
	}
	seqset := new(imap.SeqSet)
	seqset.AddRange(from, mbox.Messages)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope}, messages)
	}()

	var refs []convdomain.ThreadRef
	for msg := range messages {
		snippet := ""
		if msg.Envelope != nil {
			snippet = msg.Envelope.Subject
		}
		refs = append(refs, convdomain.ThreadRef{
			ThreadID: strconv.FormatUint(uint64(msg.Uid), 10),
			Snippet:  snippet,
		})
	}
	if err := <-done; err != nil {
		return nil, errors.Wrap(err, "unable to fetch message envelopes")
	}

	// Newest first, matching how other providers order thread listings.
	for i, j := 0, len(refs)-1; i < j; i, j = i+1, j-1 {
		refs[i], refs[j] = refs[j], refs[i]
	}
	return refs, nil
}

func (s *Service) FetchThread(ctx context.Context, creds *inboxdomain.Credentials, threadID string, onRefresh inboxdomain.TokenUpdateFunc) (*convdomain.ThreadBody, error) {
	uid, err := strconv.ParseUint(threadID, 10, 32)
	if err != nil {
		return nil, errors.Wrapf(err, "malformed thread id %q", threadID)
	}

	c, _, err := s.connect(creds)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid, imap.FetchFlags, imap.FetchInternalDate}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	var fetched *imap.Message
	for msg := range messages {
		fetched = msg
	}
	if err := <-done; err != nil {
		return nil, errors.Wrapf(err, "unable to fetch message %d", uid)
	}
	if fetched == nil {
		return nil, convdomain.ErrThreadNotFound
	}

	body := fetched.GetBody(section)
	if body == nil {
		return nil, errors.Errorf("message %d has no body section", uid)
	}

	entity, err := message.Read(body)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, errors.Wrapf(err, "unable to parse message %d", uid)
	}

	counter := 0
	root := convertEntity(entity, threadID, &counter)

	return &convdomain.ThreadBody{
		ThreadID: threadID,
		Messages: []*convdomain.MessageBody{{
			ProviderMessageID: threadID,
			Labels:            flagsToLabels(fetched.Flags),
			InternalDate:      fetched.InternalDate.UTC(),
			Root:              root,
		}},
	}, nil
}

// ListChangesSince reports every UID at or past the cursor as one change
// event. The new cursor is the mailbox's current UIDNEXT.
func (s *Service) ListChangesSince(ctx context.Context, creds *inboxdomain.Credentials, cursor uint64, onRefresh inboxdomain.TokenUpdateFunc) (*convdomain.ChangeList, error) {
	c, mbox, err := s.connect(creds)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	changes := &convdomain.ChangeList{NewCursor: uint64(mbox.UidNext)}
	if cursor == 0 {
		cursor = 1
	}
	if uint64(mbox.UidNext) <= cursor {
		return changes, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddRange(uint32(cursor), mbox.UidNext-1)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, []imap.FetchItem{imap.FetchUid, imap.FetchFlags}, messages)
	}()

	for msg := range messages {
		changes.Events = append(changes.Events, convdomain.ChangeEvent{
			ThreadID: strconv.FormatUint(uint64(msg.Uid), 10),
			Labels:   flagsToLabels(msg.Flags),
		})
	}
	if err := <-done; err != nil {
		return nil, errors.Wrap(err, "unable to fetch changed messages")
	}
	return changes, nil
}

// flagsToLabels maps IMAP flags onto the provider-neutral label names.
func flagsToLabels(flags []string) []string {
	var labels []string
	for _, f := range flags {
		switch f {
		case imap.DraftFlag:
			labels = append(labels, convdomain.LabelDraft)
		case imap.AnsweredFlag:
			labels = append(labels, convdomain.LabelSent)
		case "Junk", "$Junk":
			labels = append(labels, convdomain.LabelSpam)
		}
	}
	return labels
}

// convertEntity maps a parsed MIME entity onto the neutral body part tree.
// IMAP carries no server-side attachment ids, so parts are keyed by message
// UID and walk order; the id stays stable as long as the message does.
func convertEntity(e *message.Entity, uid string, counter *int) *convdomain.BodyPart {
	if e == nil {
		return nil
	}

	mediaType, _, err := e.Header.ContentType()
	if err != nil {
		mediaType = "text/plain"
	}

	part := &convdomain.BodyPart{
		MimeType: mediaType,
		Headers:  map[string]string{},
	}
	fields := e.Header.Fields()
	for fields.Next() {
		part.Headers[fields.Key()] = fields.Value()
	}
	if _, params, err := e.Header.ContentDisposition(); err == nil {
		part.Filename = params["filename"]
	}
	if part.Filename == "" {
		if _, params, err := e.Header.ContentType(); err == nil {
			part.Filename = params["name"]
		}
	}

	if mr := e.MultipartReader(); mr != nil {
		for {
			child, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				log.Printf("[IMAP] Skipping unreadable part in message %s: %v", uid, err)
				break
			}
			if c := convertEntity(child, uid, counter); c != nil {
				part.Parts = append(part.Parts, c)
			}
		}
		return part
	}

	data, err := io.ReadAll(e.Body)
	if err != nil {
		data = nil
	}
	*counter++
	body := &convdomain.PartBody{
		Size: int64(len(data)),
		Data: string(data),
	}
	if part.Filename != "" {
		body.AttachmentID = fmt.Sprintf("%s.%d", uid, *counter)
		// Attachment payloads are not cached; only their metadata is.
		body.Data = ""
	}
	part.Body = body
	return part
}
