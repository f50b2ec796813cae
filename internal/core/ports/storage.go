package ports

import (
	"context"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
)

// DraftStore holds at most one conversation draft per user key.
type DraftStore interface {
	// LoadDraft returns the draft for userKey, or an error of kind
	// domain.KindNotFound when none exists.
	LoadDraft(ctx context.Context, userKey string) (*domain.Draft, error)

	// SaveDraft stores d if its Version matches the stored version
	// (zero for a new draft) and increments d.Version. A mismatch is an
	// error of kind domain.KindConflict.
	SaveDraft(ctx context.Context, d *domain.Draft) error

	// DeleteDraft removes the draft for userKey. Deleting a missing draft is not an error.
	DeleteDraft(ctx context.Context, userKey string) error

	// Close closes the storage connection
	Close() error
}

// EventStore is the append-only interaction log.
type EventStore interface {
	AppendEvent(ctx context.Context, evt *domain.Event) error

	// ListEvents returns the most recent events for userKey, newest first.
	ListEvents(ctx context.Context, userKey string, limit int) ([]*domain.Event, error)
}

// KnowledgeStore persists knowledge base documents.
type KnowledgeStore interface {
	KnowledgeSearcher
	AddDocument(ctx context.Context, doc *domain.Document) error
}

// KnowledgeSearcher finds documents relevant to a question.
type KnowledgeSearcher interface {
	SearchDocuments(ctx context.Context, query string, limit int) ([]domain.Document, error)
}

// Store is the full storage surface used by the runtime.
type Store interface {
	DraftStore
	EventStore
	KnowledgeStore
}
