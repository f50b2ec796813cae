package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
	"github.com/tjfontaine/helpdesk-gateway/internal/core/ports"
)

// ImportDocuments reads a JSON array of knowledge base documents from r and
// adds each one to store. Documents without a title or content are rejected
// before anything is written. It returns the number of documents added.
func ImportDocuments(ctx context.Context, store ports.KnowledgeStore, r io.Reader) (int, error) {
	var docs []domain.Document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&docs); err != nil {
		return 0, fmt.Errorf("failed to decode documents: %w", err)
	}

	for i := range docs {
		docs[i].Title = strings.TrimSpace(docs[i].Title)
		docs[i].Content = strings.TrimSpace(docs[i].Content)
		if docs[i].Title == "" || docs[i].Content == "" {
			return 0, fmt.Errorf("document %d: title and content are required", i)
		}
		docs[i].ID = 0
	}

	for i := range docs {
		if err := store.AddDocument(ctx, &docs[i]); err != nil {
			return i, fmt.Errorf("failed to add document %q: %w", docs[i].Title, err)
		}
	}
	return len(docs), nil
}

// ImportDocuments loads knowledge base documents into the App's store.
func (a *App) ImportDocuments(ctx context.Context, r io.Reader) (int, error) {
	store := a.Store()
	if store == nil {
		return 0, fmt.Errorf("app not built")
	}
	n, err := ImportDocuments(ctx, store, r)
	if err != nil {
		return n, err
	}
	a.logger.Info("knowledge base documents imported", slog.Int("count", n))
	return n, nil
}
