package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
	"github.com/tjfontaine/helpdesk-gateway/internal/storage"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu     sync.RWMutex
	drafts map[string]*domain.Draft
	events []*domain.Event
	docs   []domain.Document
	nextID int64
	now    func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		drafts: make(map[string]*domain.Draft),
		now:    time.Now,
	}
}

func (s *Store) LoadDraft(ctx context.Context, userKey string) (*domain.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.drafts[userKey]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "no draft for "+userKey).WithOp("load_draft")
	}
	return d.Clone(), nil
}

func (s *Store) SaveDraft(ctx context.Context, d *domain.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored int64
	if cur, ok := s.drafts[d.UserKey]; ok {
		stored = cur.Version
	}
	if stored != d.Version {
		return domain.NewError(domain.KindConflict, "draft was modified concurrently").WithOp("save_draft")
	}

	d.Version++
	d.UpdatedAt = s.now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = d.UpdatedAt
	}
	s.drafts[d.UserKey] = d.Clone()
	return nil
}

func (s *Store) DeleteDraft(ctx context.Context, userKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.drafts, userKey)
	return nil
}

func (s *Store) AppendEvent(ctx context.Context, evt *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.now()
	}
	cp := *evt
	s.events = append(s.events, &cp)
	return nil
}

func (s *Store) ListEvents(ctx context.Context, userKey string, limit int) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = storage.DefaultEventLimit
	}
	var result []*domain.Event
	for i := len(s.events) - 1; i >= 0 && len(result) < limit; i-- {
		if userKey == "" || s.events[i].UserKey == userKey {
			cp := *s.events[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *Store) AddDocument(ctx context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	doc.ID = s.nextID
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now()
	}
	s.docs = append(s.docs, *doc)
	return nil
}

func (s *Store) SearchDocuments(ctx context.Context, query string, limit int) ([]domain.Document, error) {
	terms := storage.Keywords(query)
	if len(terms) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	docs := append([]domain.Document(nil), s.docs...)
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return storage.Rank(docs, terms, limit), nil
}

func (s *Store) Close() error {
	return nil
}
