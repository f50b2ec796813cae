package glpi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
	"github.com/tjfontaine/helpdesk-gateway/internal/glpi/glpitest"
	"github.com/tjfontaine/helpdesk-gateway/internal/policy"
)

var (
	alice = domain.NewIdentity("alice@example.com", "Alice Martin", "client")
	bob   = domain.NewIdentity("bob@example.com", "Bob", "client")
	agent = domain.NewIdentity("agent@example.com", "Agent Smith", "agent_support")
	admin = domain.NewIdentity("root@example.com", "Root", "admin")
)

func newTestGateway(t *testing.T, srv *glpitest.Server, mutate ...func(*Config)) *Gateway {
	t.Helper()
	engine, err := policy.NewEngine(context.Background(), "")
	if err != nil {
		t.Fatalf("policy.NewEngine() error = %v", err)
	}
	cfg := Config{
		BaseURL:   srv.URL,
		AppToken:  glpitest.AppToken,
		UserToken: glpitest.UserToken,
		Timeout:   5 * time.Second,
		TokenTTL:  time.Minute,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return New(cfg, engine, WithGatewayLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func createTicket(t *testing.T, g *Gateway, title string, who domain.Identity) int {
	t.Helper()
	ref, err := g.CreateTicket(context.Background(), domain.NewTicket{
		Title:       title,
		Description: "Detailed description of " + title,
	}, who)
	if err != nil {
		t.Fatalf("CreateTicket() error = %v", err)
	}
	return ref.ID
}

func TestGateway_CreateTicketEmbedsMarkerAndLinksRequester(t *testing.T) {
	srv := glpitest.NewServer()
	defer srv.Close()
	g := newTestGateway(t, srv)

	ref, err := g.CreateTicket(context.Background(), domain.NewTicket{
		Title:       "Printer jammed",
		Description: "The printer on floor 3 jams on every page.",
		Category:    "hardware",
		Priority:    4,
	}, alice)
	if err != nil {
		t.Fatalf("CreateTicket() error = %v", err)
	}

	stored, ok := srv.Ticket(ref.ID)
	if !ok {
		t.Fatalf("ticket %d not stored", ref.ID)
	}
	want := "Requester-Email: alice@example.com\nTicket-Category: hardware\n\nThe printer on floor 3 jams on every page."
	if stored.Content != want {
		t.Errorf("stored content = %q, want %q", stored.Content, want)
	}
	if stored.Priority != 4 {
		t.Errorf("priority = %d, want 4", stored.Priority)
	}

	users := srv.Users()
	if len(users) != 1 || users[0].Name != "alice@example.com" || users[0].ProfileID != 2 {
		t.Fatalf("users = %+v, want one client user for alice", users)
	}
	if stored.Requester != users[0].ID {
		t.Errorf("requester id = %d, want %d", stored.Requester, users[0].ID)
	}
	links := srv.Links()
	if len(links) != 1 || links[0].TicketID != ref.ID || links[0].UserID != users[0].ID || links[0].Type != 1 {
		t.Errorf("links = %+v, want one requester link", links)
	}

	got, err := g.GetTicket(context.Background(), ref.ID, alice)
	if err != nil {
		t.Fatalf("GetTicket() error = %v", err)
	}
	if got.Content != "The printer on floor 3 jams on every page." || got.Category != "hardware" {
		t.Errorf("GetTicket() content = %q, category = %q", got.Content, got.Category)
	}
	if got.Requester != alice.Email {
		t.Errorf("Requester = %q, want %q", got.Requester, alice.Email)
	}
}

func TestGateway_OwnershipRoundTrip(t *testing.T) {
	srv := glpitest.NewServer()
	defer srv.Close()
	g := newTestGateway(t, srv)
	ctx := context.Background()

	id := createTicket(t, g, "VPN drops every hour", alice)
	createTicket(t, g, "Bob's keyboard", bob)

	mine, err := g.ListTickets(ctx, alice)
	if err != nil {
		t.Fatalf("ListTickets(alice) error = %v", err)
	}
	if len(mine) != 1 || mine[0].ID != id {
		t.Errorf("ListTickets(alice) = %+v, want only ticket %d", mine, id)
	}

	theirs, err := g.ListTickets(ctx, domain.NewIdentity("carol@example.com", "", "client"))
	if err != nil {
		t.Fatalf("ListTickets(carol) error = %v", err)
	}
	if len(theirs) != 0 {
		t.Errorf("ListTickets(carol) = %+v, want none", theirs)
	}

	all, err := g.ListTickets(ctx, agent)
	if err != nil {
		t.Fatalf("ListTickets(agent) error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListTickets(agent) returned %d tickets, want 2", len(all))
	}
}

func TestGateway_GetTicketAccess(t *testing.T) {
	srv := glpitest.NewServer()
	defer srv.Close()
	g := newTestGateway(t, srv)
	ctx := context.Background()
	id := createTicket(t, g, "Laptop overheating", alice)

	tests := []struct {
		name     string
		id       int
		who      domain.Identity
		wantKind domain.ErrorKind
	}{
		{"owner", id, alice, ""},
		{"owner with different case", id, domain.NewIdentity("ALICE@example.com", "", "client"), ""},
		{"other client", id, bob, domain.KindAccessDenied},
		{"agent", id, agent, ""},
		{"missing ticket", 999999, agent, domain.KindNotFound},
		{"invalid id", 0, agent, domain.KindInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticket, err := g.GetTicket(ctx, tt.id, tt.who)
			if got := domain.KindOf(err); got != tt.wantKind {
				t.Fatalf("GetTicket() error = %v, want kind %q", err, tt.wantKind)
			}
			if tt.wantKind != "" && ticket != nil {
				t.Errorf("GetTicket() leaked a ticket on error")
			}
		})
	}
}

func TestGateway_ListTicketsExhaustsPagination(t *testing.T) {
	for _, emptyPage := range []bool{false, true} {
		name := "range exceeded"
		if emptyPage {
			name = "empty page"
		}
		t.Run(name, func(t *testing.T) {
			srv := glpitest.NewServer()
			defer srv.Close()
			srv.EmptyPageAtEnd = emptyPage
			now := time.Now()
			for i := 0; i < 4; i++ {
				srv.AddTicket("other", "Requester-Email: bob@example.com\n\nx", 1, now)
			}
			last := srv.AddTicket("mine", "Requester-Email: alice@example.com\n\nmine", 1, now)

			g := newTestGateway(t, srv, func(c *Config) { c.PageSize = 2 })
			got, err := g.ListTickets(context.Background(), alice)
			if err != nil {
				t.Fatalf("ListTickets() error = %v", err)
			}
			if len(got) != 1 || got[0].ID != last {
				t.Errorf("ListTickets() = %+v, want ticket %d", got, last)
			}
			if srv.TicketListCalls != 4 {
				t.Errorf("list calls = %d, want 4", srv.TicketListCalls)
			}
		})
	}
}

func TestGateway_UpdateTicket(t *testing.T) {
	srv := glpitest.NewServer()
	defer srv.Close()
	g := newTestGateway(t, srv)
	ctx := context.Background()
	id := createTicket(t, g, "Mail not syncing", alice)

	t.Run("empty patch is rejected before any call", func(t *testing.T) {
		fresh := glpitest.NewServer()
		defer fresh.Close()
		_, err := newTestGateway(t, fresh).UpdateTicket(ctx, id, domain.TicketPatch{}, alice)
		if !errors.Is(err, domain.ErrInvalidRequest) {
			t.Fatalf("UpdateTicket() error = %v, want invalid_request", err)
		}
		if fresh.InitSessionCalls != 0 {
			t.Errorf("InitSession calls = %d, want 0", fresh.InitSessionCalls)
		}
	})

	t.Run("other client is denied", func(t *testing.T) {
		content := "hijacked"
		_, err := g.UpdateTicket(ctx, id, domain.TicketPatch{Content: &content}, bob)
		if !errors.Is(err, domain.ErrAccessDenied) {
			t.Fatalf("UpdateTicket() error = %v, want access_denied", err)
		}
		stored, _ := srv.Ticket(id)
		if strings.Contains(stored.Content, "hijacked") {
			t.Errorf("denied update reached the remote system")
		}
	})

	t.Run("agent update keeps the owner marker", func(t *testing.T) {
		content := "Mail stopped syncing after the password change."
		updated, err := g.UpdateTicket(ctx, id, domain.TicketPatch{Content: &content}, agent)
		if err != nil {
			t.Fatalf("UpdateTicket() error = %v", err)
		}
		if updated.Content != content {
			t.Errorf("Content = %q, want %q", updated.Content, content)
		}
		if updated.Requester != alice.Email {
			t.Errorf("Requester = %q, want %q", updated.Requester, alice.Email)
		}
		if _, err := g.GetTicket(ctx, id, alice); err != nil {
			t.Errorf("owner lost access after update: %v", err)
		}
	})

	t.Run("owner renames", func(t *testing.T) {
		title := "Mail sync broken"
		updated, err := g.UpdateTicket(ctx, id, domain.TicketPatch{Title: &title}, alice)
		if err != nil {
			t.Fatalf("UpdateTicket() error = %v", err)
		}
		if updated.Title != title {
			t.Errorf("Title = %q, want %q", updated.Title, title)
		}
	})
}

func TestGateway_DeleteTicket(t *testing.T) {
	srv := glpitest.NewServer()
	defer srv.Close()
	g := newTestGateway(t, srv)
	ctx := context.Background()

	id := createTicket(t, g, "Obsolete request", alice)
	if err := g.DeleteTicket(ctx, id, agent); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("DeleteTicket(agent) error = %v, want access_denied", err)
	}
	if err := g.DeleteTicket(ctx, id, bob); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("DeleteTicket(bob) error = %v, want access_denied", err)
	}
	if err := g.DeleteTicket(ctx, id, alice); err != nil {
		t.Fatalf("DeleteTicket(owner) error = %v", err)
	}
	if _, err := g.GetTicket(ctx, id, admin); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetTicket() after delete error = %v, want not_found", err)
	}

	other := createTicket(t, g, "Another one", bob)
	if err := g.DeleteTicket(ctx, other, admin); err != nil {
		t.Errorf("DeleteTicket(admin) error = %v", err)
	}
}

func TestGateway_FollowupRoleRoundTrip(t *testing.T) {
	srv := glpitest.NewServer()
	defer srv.Close()
	g := newTestGateway(t, srv)
	ctx := context.Background()
	id := createTicket(t, g, "Screen flickers", alice)

	if _, err := g.AddFollowup(ctx, id, "Please restart and tell us if it persists.", agent); err != nil {
		t.Fatalf("AddFollowup(agent) error = %v", err)
	}
	if _, err := g.AddFollowup(ctx, id, "It still flickers.", alice); err != nil {
		t.Fatalf("AddFollowup(alice) error = %v", err)
	}
	if _, err := g.AddFollowup(ctx, id, "sneaky", bob); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("AddFollowup(bob) error = %v, want access_denied", err)
	}
	srv.AddFollowup(id, "internal note", true)

	stored := srv.Followups(id)
	if !strings.HasPrefix(stored[0].Content, AgentMarker) {
		t.Errorf("stored followup = %q, want agent marker", stored[0].Content)
	}

	got, err := g.ListFollowups(ctx, id, alice)
	if err != nil {
		t.Fatalf("ListFollowups() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListFollowups(owner) returned %d, want 2 public followups", len(got))
	}
	if got[0].AuthorRole != domain.AuthorAgent || got[0].Content != "Please restart and tell us if it persists." {
		t.Errorf("followup[0] = %+v", got[0])
	}
	if got[1].AuthorRole != domain.AuthorClient || got[1].Content != "It still flickers." {
		t.Errorf("followup[1] = %+v", got[1])
	}

	staff, err := g.ListFollowups(ctx, id, agent)
	if err != nil {
		t.Fatalf("ListFollowups(agent) error = %v", err)
	}
	if len(staff) != 3 {
		t.Errorf("ListFollowups(agent) returned %d, want 3", len(staff))
	}
}

func TestGateway_RemindTicket(t *testing.T) {
	srv := glpitest.NewServer()
	defer srv.Close()
	g := newTestGateway(t, srv)
	id := createTicket(t, g, "Waiting for a new badge", alice)

	if _, err := g.RemindTicket(context.Background(), id, alice); err != nil {
		t.Fatalf("RemindTicket() error = %v", err)
	}
	stored := srv.Followups(id)
	if len(stored) != 1 || stored[0].Content != ClientMarker+" "+ReminderContent {
		t.Errorf("followups = %+v", stored)
	}
}

func TestGateway_ReauthenticatesOnceOnRejectedSession(t *testing.T) {
	srv := glpitest.NewServer()
	defer srv.Close()
	g := newTestGateway(t, srv)
	ctx := context.Background()
	id := createTicket(t, g, "Session test", alice)
	before := srv.InitSessionCalls

	srv.RejectSessions(1)
	if _, err := g.GetTicket(ctx, id, alice); err != nil {
		t.Fatalf("GetTicket() after session expiry error = %v", err)
	}
	if got := srv.InitSessionCalls - before; got != 1 {
		t.Errorf("re-authentications = %d, want 1", got)
	}

	srv.RejectSessions(2)
	_, err := g.GetTicket(ctx, id, alice)
	if !errors.Is(err, domain.ErrAuth) {
		t.Errorf("GetTicket() with two rejections error = %v, want auth", err)
	}
}

func TestGateway_ReadsRetriedWritesNot(t *testing.T) {
	srv := glpitest.NewServer()
	defer srv.Close()
	g := newTestGateway(t, srv)
	ctx := context.Background()
	id := createTicket(t, g, "Retry semantics", alice)

	srv.FailNext("GET", "/Ticket/"+strconv.Itoa(id), 1)
	if _, err := g.GetTicket(ctx, id, alice); err != nil {
		t.Fatalf("GetTicket() with one 5xx error = %v, want retried success", err)
	}

	srv.FailNext("GET", "/Ticket/"+strconv.Itoa(id), 2)
	if _, err := g.GetTicket(ctx, id, alice); !errors.Is(err, domain.ErrGateway) {
		t.Fatalf("GetTicket() with two 5xx error = %v, want gateway", err)
	}

	creates := srv.TicketCreates
	srv.FailNext("POST", "/Ticket", 1)
	_, err := g.CreateTicket(ctx, domain.NewTicket{Title: "Write once", Description: "must not be retried"}, alice)
	if !errors.Is(err, domain.ErrGateway) {
		t.Fatalf("CreateTicket() error = %v, want gateway", err)
	}
	if srv.TicketCreates != creates {
		t.Errorf("ticket creates = %d, want %d (write retried)", srv.TicketCreates, creates)
	}
}

func TestGateway_InitSessionFailureIsAuthError(t *testing.T) {
	srv := glpitest.NewServer()
	defer srv.Close()
	srv.FailInitSession = true
	g := newTestGateway(t, srv)

	if err := g.EnsureSession(context.Background()); !errors.Is(err, domain.ErrAuth) {
		t.Errorf("EnsureSession() error = %v, want auth", err)
	}
	_, err := g.ListTickets(context.Background(), agent)
	if domain.StatusOf(err) != 503 {
		t.Errorf("StatusOf(ListTickets error) = %d, want 503", domain.StatusOf(err))
	}
}

func TestGateway_BadUserTokenIsAuthError(t *testing.T) {
	srv := glpitest.NewServer()
	defer srv.Close()
	g := newTestGateway(t, srv, func(c *Config) { c.UserToken = "wrong" })
	if err := g.EnsureSession(context.Background()); !errors.Is(err, domain.ErrAuth) {
		t.Errorf("EnsureSession() error = %v, want auth", err)
	}
}

func TestGateway_FailedLinkForgetsCachedRequester(t *testing.T) {
	srv := glpitest.NewServer()
	defer srv.Close()
	g := newTestGateway(t, srv, func(c *Config) {
		c.ReconcileCacheSize = 16
		c.ReconcileCacheTTL = time.Minute
	})

	createTicket(t, g, "First ticket", alice)
	createTicket(t, g, "Second ticket", alice)
	if srv.UserSearches != 1 {
		t.Fatalf("user searches = %d, want 1 while the mapping is cached", srv.UserSearches)
	}

	srv.FailNext("POST", "/Ticket_User", 1)
	createTicket(t, g, "Third ticket", alice)
	createTicket(t, g, "Fourth ticket", alice)
	if srv.UserSearches != 2 {
		t.Errorf("user searches = %d, want 2 after a failed requester link", srv.UserSearches)
	}
}
