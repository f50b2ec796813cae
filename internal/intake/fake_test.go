package intake

import (
	"context"
	"sync"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
	"github.com/tjfontaine/helpdesk-gateway/internal/core/ports"
)

type followupCall struct {
	ticketID int
	content  string
	author   domain.Identity
}

// fakeGateway records calls and serves tickets from memory.
type fakeGateway struct {
	mu sync.Mutex

	ensureErr   error
	createErr   error
	getErr      error
	followupErr error

	created   []domain.NewTicket
	followups []followupCall
	reminded  []int
	deleted   []int
	updated   map[int]string
	tickets   map[int]*domain.Ticket
	nextID    int
}

var _ ports.TicketGateway = (*fakeGateway)(nil)

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		tickets: make(map[int]*domain.Ticket),
		updated: make(map[int]string),
		nextID:  100,
	}
}

func (g *fakeGateway) EnsureSession(ctx context.Context) error {
	return g.ensureErr
}

func (g *fakeGateway) CreateTicket(ctx context.Context, t domain.NewTicket, requester domain.Identity) (*domain.TicketRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = append(g.created, t)
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.nextID++
	g.tickets[g.nextID] = &domain.Ticket{ID: g.nextID, Title: t.Title, Content: t.Description, Requester: requester.Email, Status: domain.StatusNew}
	return &domain.TicketRef{ID: g.nextID}, nil
}

func (g *fakeGateway) GetTicket(ctx context.Context, id int, requester domain.Identity) (*domain.Ticket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getErr != nil {
		return nil, g.getErr
	}
	t, ok := g.tickets[id]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "ticket not found")
	}
	return t, nil
}

func (g *fakeGateway) ListTickets(ctx context.Context, requester domain.Identity) ([]domain.TicketSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []domain.TicketSummary
	for _, t := range g.tickets {
		if domain.SameEmail(t.Requester, requester.Email) {
			out = append(out, t.Summary())
		}
	}
	return out, nil
}

func (g *fakeGateway) UpdateTicket(ctx context.Context, id int, patch domain.TicketPatch, requester domain.Identity) (*domain.Ticket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tickets[id]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "ticket not found")
	}
	if patch.Content != nil {
		t.Content = *patch.Content
		g.updated[id] = *patch.Content
	}
	return t, nil
}

func (g *fakeGateway) DeleteTicket(ctx context.Context, id int, requester domain.Identity) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleted = append(g.deleted, id)
	delete(g.tickets, id)
	return nil
}

func (g *fakeGateway) AddFollowup(ctx context.Context, id int, content string, author domain.Identity) (*domain.FollowupRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.followupErr != nil {
		return nil, g.followupErr
	}
	g.followups = append(g.followups, followupCall{ticketID: id, content: content, author: author})
	return &domain.FollowupRef{ID: len(g.followups), TicketID: id}, nil
}

func (g *fakeGateway) RemindTicket(ctx context.Context, id int, requester domain.Identity) (*domain.FollowupRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reminded = append(g.reminded, id)
	return &domain.FollowupRef{ID: 1, TicketID: id}, nil
}

func (g *fakeGateway) ListFollowups(ctx context.Context, id int, requester domain.Identity) ([]domain.Followup, error) {
	return nil, nil
}

func (g *fakeGateway) createCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.created)
}
