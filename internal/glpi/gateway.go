package glpi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
	"github.com/tjfontaine/helpdesk-gateway/internal/core/ports"
)

const (
	defaultPageSize = 50
	maxPages        = 10000

	// requesterLinkType marks the requester role on a ticket actor link.
	requesterLinkType = 1

	// ReminderContent is the followup added by a reminder.
	ReminderContent = "Reminder: this ticket is still awaiting handling."
)

// Config holds gateway settings.
type Config struct {
	BaseURL   string
	AppToken  string
	UserToken string

	Timeout  time.Duration
	TokenTTL time.Duration
	PageSize int

	TempPassword       string
	Profiles           map[domain.Role]int
	ReconcileCacheTTL  time.Duration
	ReconcileCacheSize int

	// Location is the time zone of remote timestamps. Defaults to time.Local.
	Location *time.Location
}

// Option configures the gateway.
type Option func(*Gateway)

// WithGatewayLogger sets the logger.
func WithGatewayLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithClientOptions passes options to the underlying REST client.
func WithClientOptions(opts ...ClientOption) Option {
	return func(g *Gateway) {
		g.clientOpts = append(g.clientOpts, opts...)
	}
}

// WithClock overrides the session cache clock.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

// Gateway implements ports.TicketGateway against the remote REST API.
type Gateway struct {
	client     *Client
	sessions   *SessionCache
	t          *transport
	reconciler *Reconciler
	authz      ports.Authorizer

	pageSize int
	location *time.Location
	now      func() time.Time

	clientOpts []ClientOption
	tracer     trace.Tracer
	logger     *slog.Logger
}

var _ ports.TicketGateway = (*Gateway)(nil)

// New creates a gateway. authz decides which roles see every ticket.
func New(cfg Config, authz ports.Authorizer, opts ...Option) *Gateway {
	g := &Gateway{
		authz:    authz,
		pageSize: cfg.PageSize,
		location: cfg.Location,
		now:      time.Now,
		tracer:   otel.Tracer("helpdesk-gateway/glpi"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.pageSize <= 0 {
		g.pageSize = defaultPageSize
	}
	if g.location == nil {
		g.location = time.Local
	}

	clientOpts := append([]ClientOption{WithTimeout(cfg.Timeout), WithLogger(g.logger)}, g.clientOpts...)
	g.client = NewClient(cfg.BaseURL, cfg.AppToken, cfg.UserToken, clientOpts...)
	g.sessions = NewSessionCache(g.client, cfg.TokenTTL)
	g.sessions.now = g.now
	g.t = &transport{client: g.client, sessions: g.sessions, logger: g.logger}

	recOpts := []ReconcilerOption{WithProfiles(cfg.Profiles), WithTempPassword(cfg.TempPassword)}
	if cfg.ReconcileCacheSize != 0 || cfg.ReconcileCacheTTL != 0 {
		recOpts = append(recOpts, WithCache(cfg.ReconcileCacheSize, cfg.ReconcileCacheTTL))
	}
	g.reconciler = newReconciler(g.t, g.logger, recOpts...)
	return g
}

// Reconciler returns the identity reconciler used for ticket creation.
func (g *Gateway) Reconciler() *Reconciler {
	return g.reconciler
}

// Close terminates the cached session, if any.
func (g *Gateway) Close(ctx context.Context) error {
	tok := g.sessions.Current()
	if tok == "" {
		return nil
	}
	g.sessions.Invalidate(tok)
	return g.client.KillSession(ctx, tok)
}

// EnsureSession obtains a session token without any other call.
func (g *Gateway) EnsureSession(ctx context.Context) error {
	_, err := g.sessions.Token(ctx)
	return err
}

// CreateTicket resolves the requester, creates the ticket with the owner
// marker embedded in its body and links the requester natively.
func (g *Gateway) CreateTicket(ctx context.Context, nt domain.NewTicket, requester domain.Identity) (_ *domain.TicketRef, err error) {
	ctx, span := g.startSpan(ctx, "create_ticket", requester)
	defer func() { endSpan(span, err) }()

	title := strings.TrimSpace(nt.Title)
	if title == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, "ticket title is required").WithOp("create_ticket")
	}
	if err := requester.Validate(); err != nil {
		return nil, err
	}

	uid, err := g.reconciler.Resolve(ctx, requester)
	if err != nil {
		return nil, err
	}

	input := map[string]interface{}{
		"name": title,
		"content": encodeTicketBody(ticketBody{
			Owner:    requester.Email,
			Content:  strings.TrimSpace(nt.Description),
			Category: nt.Category,
		}),
		"_users_id_requester": uid,
	}
	if nt.Priority > 0 {
		input["priority"] = nt.Priority
	}
	if nt.Urgency > 0 {
		input["urgency"] = nt.Urgency
	}

	var out createResponse
	if _, err := g.t.call(ctx, request{op: "create_ticket", method: http.MethodPost, path: "/Ticket", body: envelope{Input: input}}, &out); err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, domain.NewError(domain.KindGateway, "ticket creation returned no id").WithOp("create_ticket")
	}
	span.SetAttributes(attribute.Int("ticket.id", out.ID))

	g.linkRequester(ctx, out.ID, uid, requester)
	return &domain.TicketRef{ID: out.ID, Message: out.Message}, nil
}

// linkRequester is best-effort: the embedded marker stays authoritative.
// A failed link drops the cached remote id so the next creation resolves
// the requester again, in case the remote user was removed.
func (g *Gateway) linkRequester(ctx context.Context, ticketID, userID int, requester domain.Identity) {
	input := map[string]interface{}{
		"tickets_id": ticketID,
		"users_id":   userID,
		"type":       requesterLinkType,
	}
	if _, err := g.t.call(ctx, request{op: "link_requester", method: http.MethodPost, path: "/Ticket_User", body: envelope{Input: input}}, nil); err != nil {
		g.logger.Warn("failed to link requester",
			slog.Int("ticket_id", ticketID),
			slog.Int("remote_user_id", userID),
			slog.Any("error", err),
		)
		g.reconciler.Forget(requester.Email)
	}
}

// GetTicket reads one ticket. Unprivileged callers may only read their own.
func (g *Gateway) GetTicket(ctx context.Context, ticketID int, requester domain.Identity) (_ *domain.Ticket, err error) {
	ctx, span := g.startSpan(ctx, "get_ticket", requester)
	defer func() { endSpan(span, err) }()

	return g.authorizedTicket(ctx, domain.OpGetTicket, ticketID, requester)
}

// ListTickets exhausts remote pagination, then filters by owner marker for
// unprivileged callers.
func (g *Gateway) ListTickets(ctx context.Context, requester domain.Identity) (_ []domain.TicketSummary, err error) {
	ctx, span := g.startSpan(ctx, "list_tickets", requester)
	defer func() { endSpan(span, err) }()

	privileged, err := g.privileged(ctx, domain.OpListTickets, requester)
	if err != nil {
		return nil, err
	}

	all, err := g.fetchAllTickets(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.TicketSummary, 0, len(all))
	for _, t := range all {
		if !privileged && !domain.SameEmail(t.Requester, requester.Email) {
			continue
		}
		out = append(out, t.Summary())
	}
	span.SetAttributes(attribute.Int("tickets.total", len(all)), attribute.Int("tickets.visible", len(out)))
	return out, nil
}

func (g *Gateway) fetchAllTickets(ctx context.Context) ([]*domain.Ticket, error) {
	var all []*domain.Ticket
	for page := 0; page < maxPages; page++ {
		start := page * g.pageSize
		q := url.Values{}
		q.Set("range", fmt.Sprintf("%d-%d", start, start+g.pageSize-1))
		q.Set("is_deleted", "0")

		var batch []remoteTicket
		_, err := g.t.call(ctx, request{op: "list_tickets", method: http.MethodGet, path: "/Ticket", query: q}, &batch)
		if err != nil {
			if remoteCode(err) == codeRangeExceedTotal {
				return all, nil
			}
			return nil, err
		}
		if len(batch) == 0 {
			return all, nil
		}
		for _, rt := range batch {
			all = append(all, rt.toDomain(g.location))
		}
	}
	g.logger.Warn("ticket pagination stopped at page limit", slog.Int("pages", maxPages))
	return all, nil
}

// UpdateTicket applies a partial update after the ownership check. The
// owner marker of the stored body is preserved.
func (g *Gateway) UpdateTicket(ctx context.Context, ticketID int, patch domain.TicketPatch, requester domain.Identity) (_ *domain.Ticket, err error) {
	if patch.IsEmpty() {
		return nil, domain.NewError(domain.KindInvalidRequest, "update requires a title or a content").WithOp("update_ticket")
	}

	ctx, span := g.startSpan(ctx, "update_ticket", requester)
	defer func() { endSpan(span, err) }()

	current, err := g.authorizedTicket(ctx, domain.OpUpdateTicket, ticketID, requester)
	if err != nil {
		return nil, err
	}

	input := map[string]interface{}{}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, domain.NewError(domain.KindInvalidRequest, "ticket title cannot be empty").WithOp("update_ticket")
		}
		input["name"] = title
	}
	if patch.Content != nil {
		input["content"] = encodeTicketBody(ticketBody{
			Owner:    current.Requester,
			Content:  strings.TrimSpace(*patch.Content),
			Category: current.Category,
		})
	}

	path := "/Ticket/" + strconv.Itoa(ticketID)
	if err := g.writeItem(ctx, "update_ticket", http.MethodPut, path, ticketID, envelope{Input: input}); err != nil {
		return nil, err
	}
	return g.fetchTicket(ctx, ticketID)
}

// DeleteTicket moves a ticket to the remote trash. Owners and roles
// privileged for deletion may delete.
func (g *Gateway) DeleteTicket(ctx context.Context, ticketID int, requester domain.Identity) (err error) {
	ctx, span := g.startSpan(ctx, "delete_ticket", requester)
	defer func() { endSpan(span, err) }()

	if _, err := g.authorizedTicket(ctx, domain.OpDeleteTicket, ticketID, requester); err != nil {
		return err
	}
	return g.writeItem(ctx, "delete_ticket", http.MethodDelete, "/Ticket/"+strconv.Itoa(ticketID), ticketID, nil)
}

// AddFollowup adds a public followup prefixed with the author role marker.
func (g *Gateway) AddFollowup(ctx context.Context, ticketID int, content string, author domain.Identity) (_ *domain.FollowupRef, err error) {
	ctx, span := g.startSpan(ctx, "add_followup", author)
	defer func() { endSpan(span, err) }()

	return g.addFollowup(ctx, domain.OpAddFollowup, ticketID, content, author)
}

// RemindTicket adds a reminder followup to a ticket.
func (g *Gateway) RemindTicket(ctx context.Context, ticketID int, requester domain.Identity) (_ *domain.FollowupRef, err error) {
	ctx, span := g.startSpan(ctx, "remind_ticket", requester)
	defer func() { endSpan(span, err) }()

	return g.addFollowup(ctx, domain.OpRemindTicket, ticketID, ReminderContent, requester)
}

func (g *Gateway) addFollowup(ctx context.Context, op domain.Operation, ticketID int, content string, author domain.Identity) (*domain.FollowupRef, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, "followup content is required").WithOp(string(op))
	}
	if _, err := g.authorizedTicket(ctx, op, ticketID, author); err != nil {
		return nil, err
	}

	input := map[string]interface{}{
		"itemtype":   "Ticket",
		"items_id":   ticketID,
		"content":    encodeFollowup(authorRoleFor(author.Role), content),
		"is_private": 0,
	}
	var out createResponse
	if _, err := g.t.call(ctx, request{op: string(op), method: http.MethodPost, path: "/ITILFollowup", body: envelope{Input: input}}, &out); err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, domain.NewError(domain.KindGateway, "followup creation returned no id").WithOp(string(op))
	}
	return &domain.FollowupRef{ID: out.ID, TicketID: ticketID}, nil
}

// ListFollowups returns the followups of a ticket with markers stripped.
// Private followups are hidden from unprivileged callers.
func (g *Gateway) ListFollowups(ctx context.Context, ticketID int, requester domain.Identity) (_ []domain.Followup, err error) {
	ctx, span := g.startSpan(ctx, "list_followups", requester)
	defer func() { endSpan(span, err) }()

	if _, err := g.authorizedTicket(ctx, domain.OpListFollowups, ticketID, requester); err != nil {
		return nil, err
	}
	privileged, err := g.privileged(ctx, domain.OpListFollowups, requester)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("sort", "date_creation")
	q.Set("order", "ASC")

	var raw []remoteFollowup
	path := "/Ticket/" + strconv.Itoa(ticketID) + "/ITILFollowup"
	if _, err := g.t.call(ctx, request{op: "list_followups", method: http.MethodGet, path: path, query: q}, &raw); err != nil {
		if remoteCode(err) == codeRangeExceedTotal {
			return []domain.Followup{}, nil
		}
		return nil, err
	}

	out := make([]domain.Followup, 0, len(raw))
	for _, rf := range raw {
		f := rf.toDomain(ticketID, g.location)
		if f.IsPrivate && !privileged {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// authorizedTicket fetches a ticket and applies the ownership rule for op:
// privileged roles pass, others must own the ticket.
func (g *Gateway) authorizedTicket(ctx context.Context, op domain.Operation, ticketID int, requester domain.Identity) (*domain.Ticket, error) {
	if ticketID <= 0 {
		return nil, domain.NewError(domain.KindInvalidRequest, "ticket id must be positive").WithOp(string(op))
	}
	t, err := g.fetchTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	privileged, err := g.privileged(ctx, op, requester)
	if err != nil {
		return nil, err
	}
	if privileged {
		return t, nil
	}
	if t.Requester == "" || !domain.SameEmail(t.Requester, requester.Email) {
		return nil, domain.NewError(domain.KindAccessDenied, "you do not have access to this ticket").WithOp(string(op))
	}
	return t, nil
}

func (g *Gateway) fetchTicket(ctx context.Context, ticketID int) (*domain.Ticket, error) {
	var rt remoteTicket
	_, err := g.t.call(ctx, request{op: "get_ticket", method: http.MethodGet, path: "/Ticket/" + strconv.Itoa(ticketID)}, &rt)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewError(domain.KindNotFound, fmt.Sprintf("ticket %d not found", ticketID)).WithOp("get_ticket").WithCause(err)
		}
		return nil, err
	}
	if rt.ID == 0 {
		return nil, domain.NewError(domain.KindNotFound, fmt.Sprintf("ticket %d not found", ticketID)).WithOp("get_ticket")
	}
	return rt.toDomain(g.location), nil
}

// writeItem performs an update or delete and checks the per-item result.
func (g *Gateway) writeItem(ctx context.Context, op, method, path string, id int, body interface{}) error {
	var results []itemResult
	if _, err := g.t.call(ctx, request{op: op, method: method, path: path, body: body}, &results); err != nil {
		return err
	}
	for _, r := range results {
		if ok, msg := r.ok(id); !ok {
			if msg == "" {
				msg = "remote system rejected the change"
			}
			return domain.NewError(domain.KindGateway, msg).WithOp(op)
		}
	}
	return nil
}

func (g *Gateway) privileged(ctx context.Context, op domain.Operation, who domain.Identity) (bool, error) {
	if g.authz == nil {
		return false, nil
	}
	ok, err := g.authz.Privileged(ctx, op, who.Role)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate privilege for %s: %w", op, err)
	}
	return ok, nil
}

func (g *Gateway) startSpan(ctx context.Context, op string, who domain.Identity) (context.Context, trace.Span) {
	return g.tracer.Start(ctx, "glpi."+op, trace.WithAttributes(
		attribute.String("user.role", string(who.Role)),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
