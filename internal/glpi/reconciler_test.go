package glpi

import (
	"context"
	"errors"
	"testing"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
	"github.com/tjfontaine/helpdesk-gateway/internal/glpi/glpitest"
)

func TestReconciler_ExistingUserIsReused(t *testing.T) {
	srv := glpitest.NewServer()
	defer srv.Close()
	existing := srv.AddUser("alice@example.com", "Alice")
	g := newTestGateway(t, srv)

	uid, err := g.Reconciler().Resolve(context.Background(), alice)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if uid != existing {
		t.Errorf("Resolve() = %d, want %d", uid, existing)
	}
	if srv.UserCreates != 0 {
		t.Errorf("user creates = %d, want 0", srv.UserCreates)
	}
}

func TestReconciler_CreatesWithRoleProfile(t *testing.T) {
	tests := []struct {
		who         domain.Identity
		wantProfile int
	}{
		{alice, 2},
		{agent, 3},
		{admin, 4},
	}
	for _, tt := range tests {
		t.Run(string(tt.who.Role), func(t *testing.T) {
			srv := glpitest.NewServer()
			defer srv.Close()
			g := newTestGateway(t, srv)

			if _, err := g.Reconciler().Resolve(context.Background(), tt.who); err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			users := srv.Users()
			if len(users) != 1 || users[0].ProfileID != tt.wantProfile {
				t.Errorf("users = %+v, want profile %d", users, tt.wantProfile)
			}
		})
	}
}

func TestReconciler_RecoversFromDuplicateRace(t *testing.T) {
	srv := glpitest.NewServer()
	defer srv.Close()
	srv.DuplicateUserCreates(1)
	g := newTestGateway(t, srv)

	ref, err := g.CreateTicket(context.Background(), domain.NewTicket{
		Title:       "Race condition",
		Description: "User created concurrently by another request",
	}, alice)
	if err != nil {
		t.Fatalf("CreateTicket() error = %v", err)
	}

	users := srv.Users()
	if len(users) != 1 {
		t.Fatalf("users = %+v, want exactly one", users)
	}
	stored, _ := srv.Ticket(ref.ID)
	if stored.Requester != users[0].ID {
		t.Errorf("requester = %d, want %d", stored.Requester, users[0].ID)
	}

	again, err := g.Reconciler().Resolve(context.Background(), alice)
	if err != nil || again != users[0].ID {
		t.Errorf("Resolve() = (%d, %v), want stable id %d", again, err, users[0].ID)
	}
}

func TestReconciler_FailureBlocksTicketCreation(t *testing.T) {
	srv := glpitest.NewServer()
	defer srv.Close()
	srv.FailNext("POST", "/User", 1)
	g := newTestGateway(t, srv)

	_, err := g.CreateTicket(context.Background(), domain.NewTicket{Title: "No requester", Description: "should fail"}, alice)
	if !errors.Is(err, domain.ErrReconciliation) {
		t.Fatalf("CreateTicket() error = %v, want reconciliation", err)
	}
	if domain.KindOf(err) != domain.KindReconciliation {
		t.Errorf("KindOf() = %q, want reconciliation", domain.KindOf(err))
	}
	if srv.TicketCreates != 0 {
		t.Errorf("ticket creates = %d, want 0", srv.TicketCreates)
	}
}

func TestReconciler_CachesResolvedIDs(t *testing.T) {
	srv := glpitest.NewServer()
	defer srv.Close()
	g := newTestGateway(t, srv)
	ctx := context.Background()

	first, err := g.Reconciler().Resolve(ctx, alice)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	srv.FailNext("GET", "/User", 2)
	second, err := g.Reconciler().Resolve(ctx, alice)
	if err != nil {
		t.Fatalf("cached Resolve() error = %v", err)
	}
	if first != second {
		t.Errorf("cached Resolve() = %d, want %d", second, first)
	}
}

func TestReconciler_RejectsInvalidIdentity(t *testing.T) {
	srv := glpitest.NewServer()
	defer srv.Close()
	g := newTestGateway(t, srv)

	_, err := g.Reconciler().Resolve(context.Background(), domain.NewIdentity("not-an-email", "", "client"))
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("Resolve() error = %v, want invalid_request", err)
	}
}
