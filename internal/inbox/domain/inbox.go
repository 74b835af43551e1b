package domain

import (
	"time"

	"golang.org/x/oauth2"
)

// ProviderKind identifies which message provider backs an inbox. The set is
// closed: every kind has exactly one MailProvider implementation, selected
// once at the inbox boundary.
type ProviderKind string

const (
	ProviderGmail ProviderKind = "gmail"
	ProviderIMAP  ProviderKind = "imap"
)

// Inbox represents one connected mailbox.
type Inbox struct {
	ID           string       `json:"id" gorm:"primaryKey"`
	Provider     ProviderKind `json:"provider" gorm:"not null"`
	OwnerAddress string       `json:"owner_address" gorm:"uniqueIndex;not null"`
	// CredentialRef is an opaque encrypted blob; only the credential
	// provider can turn it back into usable credentials.
	CredentialRef string `json:"-" gorm:"type:text"`
	// ChangeCursor is the provider high-water mark: everything up to this
	// point has been seen. It only ever advances.
	ChangeCursor uint64 `json:"change_cursor" gorm:"default:0"`
	// PendingImports counts outstanding thread fetches of the initial
	// full sync, so callers can report import progress.
	PendingImports int       `json:"pending_imports" gorm:"default:0"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Credentials is the decrypted form of an inbox credential reference.
// Gmail inboxes carry OAuth tokens, IMAP inboxes carry host/port/login.
type Credentials struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Host         string `json:"host,omitempty"`
	Port         int    `json:"port,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
}

// TokenUpdateFunc is invoked when a provider refreshes an OAuth token, so the
// stored credential reference can be rewritten.
type TokenUpdateFunc func(token *oauth2.Token) error
