package domain

import (
	"strings"
	"time"
)

// ThreadRef is the lightweight thread listing entry returned by providers:
// just enough to schedule a full fetch.
type ThreadRef struct {
	ThreadID string
	Snippet  string
}

// ThreadBody is a provider-neutral complete thread: its messages in thread
// order, oldest first.
type ThreadBody struct {
	ThreadID string
	Messages []*MessageBody
}

// MessageBody is one raw message as delivered by a provider, before any
// extraction has happened.
type MessageBody struct {
	ProviderMessageID string
	Snippet           string
	Labels            []string
	// InternalDate is the provider-assigned delivery time, as opposed to the
	// sender-controlled Date header inside the part tree.
	InternalDate time.Time
	Root         *BodyPart
}

// Header returns the named header from the root part, case-insensitively.
func (m *MessageBody) Header(name string) string {
	if m.Root == nil {
		return ""
	}
	return m.Root.Header(name)
}

// BodyPart is one node of the recursive body-part tree. Multipart nodes carry
// children; leaf nodes carry a body payload. The tree is externally supplied,
// so walkers must bound their recursion depth.
type BodyPart struct {
	MimeType string
	Filename string
	Headers  map[string]string
	Body     *PartBody
	Parts    []*BodyPart
}

// PartBody is a leaf payload. AttachmentID may be absent when the part is
// small enough that the provider inlined it.
type PartBody struct {
	AttachmentID string
	Size         int64
	Data         string
}

// Header returns the named part header, case-insensitively.
func (p *BodyPart) Header(name string) string {
	for k, v := range p.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// ChangeEvent is one provider-side change: a message was added to a thread.
// Labels are the flags on the added message, used to discard drafts.
type ChangeEvent struct {
	ThreadID string
	Labels   []string
}

// ChangeList is the result of listing changes since a cursor. NewCursor is
// the provider's cursor after the listed changes; it must only be persisted
// when the listing call itself succeeded.
type ChangeList struct {
	Events    []ChangeEvent
	NewCursor uint64
}
