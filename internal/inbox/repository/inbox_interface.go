package repository

import (
	inboxdomain "mailmatch-backend/internal/inbox/domain"
)

// InboxRepository defines persistence operations for connected mailboxes
type InboxRepository interface {
	Create(inbox *inboxdomain.Inbox) error
	FindByID(id string) (*inboxdomain.Inbox, error)
	FindByOwnerAddress(address string) (*inboxdomain.Inbox, error)
	List() ([]*inboxdomain.Inbox, error)
	// AdvanceChangeCursor moves the cursor forward; a value at or below the
	// stored cursor is ignored so late-arriving syncs never rewind it.
	AdvanceChangeCursor(id string, cursor uint64) error
	UpdateCredentialRef(id, credentialRef string) error
	SetPendingImports(id string, count int) error
	DecrementPendingImports(id string) error
	// Delete removes the inbox and cascades to its topics, messages and
	// attachments.
	Delete(id string) error
}
