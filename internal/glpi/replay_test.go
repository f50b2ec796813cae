package glpi

import (
	"context"
	"testing"
	"time"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
	"github.com/tjfontaine/helpdesk-gateway/internal/policy"
	"github.com/tjfontaine/helpdesk-gateway/internal/testutil"
)

func TestGateway_RecordedTicketWithLegacyMarker(t *testing.T) {
	rec, cleanup := testutil.NewVCRRecorder(t, "glpi_get_ticket")
	defer cleanup()

	engine, err := policy.NewEngine(context.Background(), "")
	if err != nil {
		t.Fatalf("policy.NewEngine() error = %v", err)
	}
	g := New(Config{
		BaseURL:   "http://glpi.test/apirest.php",
		AppToken:  "app",
		UserToken: "user",
		TokenTTL:  time.Minute,
		Location:  time.UTC,
	}, engine, WithClientOptions(WithHTTPClient(testutil.VCRHTTPClient(rec))))

	ctx := context.Background()
	ticket, err := g.GetTicket(ctx, 7, alice)
	if err != nil {
		t.Fatalf("GetTicket() error = %v", err)
	}
	if ticket.Requester != "alice@example.com" {
		t.Errorf("Requester = %q, want alice@example.com", ticket.Requester)
	}
	if ticket.Content != "L'imprimante du 3e étage bloque à chaque page." {
		t.Errorf("Content = %q", ticket.Content)
	}
	if ticket.Status != domain.StatusAssigned {
		t.Errorf("Status = %d, want %d", ticket.Status, domain.StatusAssigned)
	}
	wantMod := time.Date(2025, 7, 4, 11, 40, 2, 0, time.UTC)
	if !ticket.UpdatedAt.Equal(wantMod) {
		t.Errorf("UpdatedAt = %v, want %v", ticket.UpdatedAt, wantMod)
	}

	followups, err := g.ListFollowups(ctx, 7, agent)
	if err != nil {
		t.Fatalf("ListFollowups() error = %v", err)
	}
	if len(followups) != 2 {
		t.Fatalf("ListFollowups() returned %d, want 2", len(followups))
	}
	if followups[0].AuthorRole != domain.AuthorAgent || followups[0].Content != "Nous remplaçons le rouleau d'entraînement." {
		t.Errorf("followup[0] = %+v", followups[0])
	}
	if followups[1].AuthorRole != domain.AuthorClient || followups[1].Content != "Merci, ça fonctionne." {
		t.Errorf("followup[1] = %+v", followups[1])
	}
}
