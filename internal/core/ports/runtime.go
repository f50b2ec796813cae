package ports

import (
	"context"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
	"github.com/tjfontaine/helpdesk-gateway/internal/pkg/config"
)

// ConfigProvider loads and manages configuration.
type ConfigProvider interface {
	Load(ctx context.Context) (*config.Config, error)
	Watch(ctx context.Context, onChange func(*config.Config)) error
	Close() error
}

// AuthProvider authenticates the front-end collaborator calling the API.
type AuthProvider interface {
	Authenticate(ctx context.Context, token string) (*AuthContext, error)
}

// AuthContext contains authenticated request context.
type AuthContext struct {
	KeyID       string
	Description string
}

// Completer is the language model collaborator: text in, text out.
type Completer interface {
	Complete(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

// Authorizer decides whether a role is privileged for an operation.
type Authorizer interface {
	Privileged(ctx context.Context, op domain.Operation, role domain.Role) (bool, error)
}

// TicketGateway is the adapter to the remote ticketing system.
// Ownership checks are applied for every requester-scoped operation.
type TicketGateway interface {
	// EnsureSession obtains a session token without performing any other call.
	EnsureSession(ctx context.Context) error

	CreateTicket(ctx context.Context, t domain.NewTicket, requester domain.Identity) (*domain.TicketRef, error)
	GetTicket(ctx context.Context, ticketID int, requester domain.Identity) (*domain.Ticket, error)
	ListTickets(ctx context.Context, requester domain.Identity) ([]domain.TicketSummary, error)
	UpdateTicket(ctx context.Context, ticketID int, patch domain.TicketPatch, requester domain.Identity) (*domain.Ticket, error)
	DeleteTicket(ctx context.Context, ticketID int, requester domain.Identity) error

	AddFollowup(ctx context.Context, ticketID int, content string, author domain.Identity) (*domain.FollowupRef, error)
	RemindTicket(ctx context.Context, ticketID int, requester domain.Identity) (*domain.FollowupRef, error)
	ListFollowups(ctx context.Context, ticketID int, requester domain.Identity) ([]domain.Followup, error)
}
