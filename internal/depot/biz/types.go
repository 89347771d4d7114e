package biz

import (
	"context"
	"time"
)

// DefaultValidity is the lifetime granted to new users, documents and
// tokens when no explicit valid_until is supplied.
const DefaultValidity = 365 * 24 * time.Hour

// User owns documents. Deleting a user cascades through every owned
// document, its tokens, events, attachments and stored files.
type User struct {
	UID        string
	ValidUntil time.Time
}

// Document is a deposited file reachable through capability tokens.
type Document struct {
	DID                string
	Title              string
	Filename           string
	Checksum           string // lower-case hex SHA-256, unique across documents and attachments
	UploadDatetime     time.Time
	ValidUntil         time.Time
	UserUID            string
	AllowAttachment    bool
	AttachmentDeadline *time.Time // explicit admin-set deadline, overrides the configured window
}

// Token is an opaque capability granting time-bounded access to one document.
type Token struct {
	TID        int64
	Token      string
	DID        string
	ValidUntil time.Time
	Created    time.Time
}

// Attachment is a reply file deposited against a document after passing
// the validation pipeline.
type Attachment struct {
	AID      string
	DID      string
	Name     string
	Checksum string
	Uploaded time.Time
}

// Event records one access through a token. Append-only.
type Event struct {
	EID  int64
	TID  int64
	Date time.Time
	Kind string
}

// EventKindDownload is appended when a document body is served.
const EventKindDownload = "download"

// Redirect points a token's landing page somewhere else. Exactly one of
// UID or DID is set.
type Redirect struct {
	RID         string
	UID         string
	DID         string
	URL         string
	Description string
	ValidUntil  time.Time
}

// UserRepo persists users.
type UserRepo interface {
	GetOrCreate(ctx context.Context, uid string) (*User, error)
	Get(ctx context.Context, uid string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	UpdateValidUntil(ctx context.Context, uid string, validUntil time.Time) (bool, error)
	SetAllValidUntil(ctx context.Context, validUntil time.Time) error
	Rename(ctx context.Context, oldUID, newUID string) (bool, error)
	ExpiredUIDs(ctx context.Context, now time.Time) ([]string, error)
}

// DocumentRepo persists documents.
type DocumentRepo interface {
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, did string) (*Document, error)
	List(ctx context.Context) ([]*Document, error)
	ListByUser(ctx context.Context, uid string) ([]*Document, error)
	ListIDs(ctx context.Context) ([]string, error)
	Update(ctx context.Context, doc *Document) error
	UpdateChecksum(ctx context.Context, did, checksum string) error
	// IDsWithoutEventsBefore returns documents uploaded before the cutoff
	// whose tokens have no events at all.
	IDsWithoutEventsBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

// TokenRepo persists tokens.
type TokenRepo interface {
	// Create issues a fresh token for did; ErrDocumentNotFound when the
	// document does not resolve.
	Create(ctx context.Context, did string) (*Token, error)
	Get(ctx context.Context, tokenValue string) (*Token, error)
	ListByDocument(ctx context.Context, did string) ([]*Token, error)
	UpdateValidUntil(ctx context.Context, tokenValue string, validUntil time.Time) (bool, error)
	Expired(ctx context.Context, now time.Time) ([]*Token, error)
}

// EventRepo persists events.
type EventRepo interface {
	// Append records an event against the token; ErrTokenNotFound when the
	// token does not resolve.
	Append(ctx context.Context, tokenValue, kind string) error
	CountByToken(ctx context.Context, tid int64) (int64, error)
	FirstDateByToken(ctx context.Context, tid int64) (*time.Time, error)
	// EarliestForDocument returns the earliest event date across all of the
	// document's tokens, or nil when there is none.
	EarliestForDocument(ctx context.Context, did string) (*time.Time, error)
	List(ctx context.Context) ([]*Event, error)
}

// AttachmentRepo persists attachments.
type AttachmentRepo interface {
	// Create inserts the row; ErrDocumentNotFound when did does not
	// resolve, ErrDuplicateContent on a checksum collision.
	Create(ctx context.Context, att *Attachment) error
	Get(ctx context.Context, aid string) (*Attachment, error)
	ListByDocument(ctx context.Context, did string) ([]*Attachment, error)
	ListIDs(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, aid string) error
}

// RedirectRepo persists redirects.
type RedirectRepo interface {
	// Create enforces the owner discriminator: exactly one of UID and DID.
	Create(ctx context.Context, r *Redirect) error
	// ValidByDocument returns the redirect scoped to did that is valid at
	// the given instant, or nil.
	ValidByDocument(ctx context.Context, did string, now time.Time) (*Redirect, error)
	// ValidByUser is the user-scoped fallback.
	ValidByUser(ctx context.Context, uid string, now time.Time) (*Redirect, error)
	Delete(ctx context.Context, rid string) error
}

// ChecksumIndex answers dedup queries across the combined corpus.
type ChecksumIndex interface {
	// Exists reports whether the checksum is present in either the
	// document or the attachment table.
	Exists(ctx context.Context, checksum string) (bool, error)
	// DocumentsMissingChecksum lists documents whose checksum column is
	// empty, for lazy backfill.
	DocumentsMissingChecksum(ctx context.Context) ([]string, error)
}

// CascadeRepo executes multi-row delete cascades, each subtree in a
// single transaction. File removal is the caller's job, after commit.
type CascadeRepo interface {
	// DeleteDocumentTree removes events, tokens, attachment rows and the
	// document row for did. Returns the attachment ids whose files must be
	// removed and whether the document existed.
	DeleteDocumentTree(ctx context.Context, did string) (aids []string, found bool, err error)
	// DeleteTokenTree removes the token's events and the token row.
	DeleteTokenTree(ctx context.Context, tokenValue string) (found bool, err error)
	// DeleteUserRow removes only the user row.
	DeleteUserRow(ctx context.Context, uid string) (found bool, err error)
	// SweepToken removes one expired token and its events; when the owning
	// document has no tokens left, its attachment rows and the document
	// row go too. Reports whether the document was deleted and which
	// attachment files must be removed.
	SweepToken(ctx context.Context, tid int64, did string) (docDeleted bool, aids []string, err error)
}

// ContentStore is byte-addressable storage of document and attachment
// bodies keyed by generated identifier.
type ContentStore interface {
	// Put writes data under key and returns its lower-case hex SHA-256.
	Put(ctx context.Context, key string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete of a missing key is a no-op.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Checksum recomputes the stored body's SHA-256.
	Checksum(ctx context.Context, key string) (string, error)
	// Keys lists every stored identifier.
	Keys(ctx context.Context) ([]string, error)
}
