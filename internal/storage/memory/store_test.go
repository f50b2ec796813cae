package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
)

func TestMemoryStore_DraftLifecycle(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.LoadDraft(ctx, "alice@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("LoadDraft() error = %v, want not_found", err)
	}

	d := domain.NewDraft("alice@example.com", time.Now())
	d.Next = domain.Collecting(domain.FieldTitle)
	if err := store.SaveDraft(ctx, d); err != nil {
		t.Fatalf("SaveDraft() error = %v", err)
	}
	if d.Version != 1 {
		t.Errorf("Version = %d, want 1", d.Version)
	}

	got, err := store.LoadDraft(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("LoadDraft() error = %v", err)
	}
	if got.Next != domain.Collecting(domain.FieldTitle) {
		t.Errorf("Next = %v, want collecting:title", got.Next)
	}

	// mutating the loaded copy must not leak into the store
	got.SetField(domain.FieldTitle, "VPN down")
	again, _ := store.LoadDraft(ctx, "alice@example.com")
	if again.Field(domain.FieldTitle) != "" {
		t.Errorf("stored draft mutated through loaded copy")
	}

	if err := store.DeleteDraft(ctx, "alice@example.com"); err != nil {
		t.Fatalf("DeleteDraft() error = %v", err)
	}
	if err := store.DeleteDraft(ctx, "alice@example.com"); err != nil {
		t.Fatalf("second DeleteDraft() error = %v", err)
	}
}

func TestMemoryStore_SaveDraftVersionConflict(t *testing.T) {
	store := New()
	ctx := context.Background()

	d := domain.NewDraft("bob@example.com", time.Now())
	if err := store.SaveDraft(ctx, d); err != nil {
		t.Fatalf("SaveDraft() error = %v", err)
	}

	a, _ := store.LoadDraft(ctx, "bob@example.com")
	b, _ := store.LoadDraft(ctx, "bob@example.com")
	if err := store.SaveDraft(ctx, a); err != nil {
		t.Fatalf("SaveDraft(a) error = %v", err)
	}
	if err := store.SaveDraft(ctx, b); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("SaveDraft(stale) error = %v, want conflict", err)
	}

	fresh := domain.NewDraft("bob@example.com", time.Now())
	if err := store.SaveDraft(ctx, fresh); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("SaveDraft(new over existing) error = %v, want conflict", err)
	}
}

func TestMemoryStore_Events(t *testing.T) {
	store := New()
	ctx := context.Background()

	for _, typ := range []domain.EventType{domain.EventRequestReceived, domain.EventLLMParsed, domain.EventTicketCreated} {
		if err := store.AppendEvent(ctx, &domain.Event{ID: string(typ), UserKey: "alice@example.com", Type: typ}); err != nil {
			t.Fatalf("AppendEvent() error = %v", err)
		}
	}
	_ = store.AppendEvent(ctx, &domain.Event{ID: "other", UserKey: "bob@example.com", Type: domain.EventCancelled})

	events, err := store.ListEvents(ctx, "alice@example.com", 2)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Type != domain.EventTicketCreated {
		t.Errorf("events[0].Type = %s, want newest first", events[0].Type)
	}
}

func TestMemoryStore_SearchDocuments(t *testing.T) {
	store := New()
	ctx := context.Background()

	docs := []*domain.Document{
		{Title: "Reset your password", Category: "account", Content: "Use the self-service portal to reset a forgotten password."},
		{Title: "VPN troubleshooting", Category: "network", Content: "Restart the VPN client and check your connection."},
		{Title: "Printer setup", Category: "hardware", Content: "Add the printer from the control panel."},
	}
	for _, d := range docs {
		if err := store.AddDocument(ctx, d); err != nil {
			t.Fatalf("AddDocument() error = %v", err)
		}
	}

	got, err := store.SearchDocuments(ctx, "How do I reset my password?", 3)
	if err != nil {
		t.Fatalf("SearchDocuments() error = %v", err)
	}
	if len(got) != 1 || got[0].Title != "Reset your password" {
		t.Fatalf("SearchDocuments() = %+v, want the password document", got)
	}

	if got, _ := store.SearchDocuments(ctx, "hi", 3); len(got) != 0 {
		t.Errorf("SearchDocuments(short words) = %d docs, want 0", len(got))
	}
}
