// Package helpdesk exposes the intake engine and ticket routes over HTTP.
//
// The caller identity is asserted by the authenticated front-end through the
// X-User-Email, X-User-Name and X-User-Role headers.
package helpdesk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
	"github.com/tjfontaine/helpdesk-gateway/internal/core/ports"
	"github.com/tjfontaine/helpdesk-gateway/internal/intake"
	"github.com/tjfontaine/helpdesk-gateway/internal/server"
)

const (
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
	HeaderUserRole  = "X-User-Role"

	maxBodyBytes = 64 << 10
)

// Asker answers one inbound user message.
type Asker interface {
	Ask(ctx context.Context, req intake.AskRequest) (*domain.Reply, error)
}

type Handler struct {
	asker   Asker
	tickets ports.TicketGateway
	logger  *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func NewHandler(asker Asker, tickets ports.TicketGateway, opts ...Option) *Handler {
	h := &Handler{
		asker:   asker,
		tickets: tickets,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Mount registers the /v1 routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/ask", h.HandleAsk)
		r.Get("/tickets", h.HandleListTickets)
		r.Route("/tickets/{ticketID}", func(r chi.Router) {
			r.Get("/", h.HandleGetTicket)
			r.Put("/", h.HandleUpdateTicket)
			r.Delete("/", h.HandleDeleteTicket)
			r.Get("/followups", h.HandleListFollowups)
			r.Post("/followups", h.HandleAddFollowup)
		})
	})
}

// AskRequest is the body of POST /v1/ask.
type AskRequest struct {
	Message string `json:"message"`

	// TicketID turns the message into a followup on that ticket.
	TicketID *int `json:"ticket_id,omitempty"`
}

// FollowupRequest is the body of POST /v1/tickets/{id}/followups.
type FollowupRequest struct {
	Content string `json:"content"`
}

func (h *Handler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var body AskRequest
	if err := decodeBody(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	reply, err := h.asker.Ask(r.Context(), intake.AskRequest{
		Identity:  id,
		Message:   body.Message,
		TicketID:  body.TicketID,
		RequestID: server.GetRequestID(r.Context()),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	server.AddLogField(r.Context(), "reply_type", string(reply.Type))
	if reply.ErrorKind != "" {
		server.AddLogField(r.Context(), "error_kind", string(reply.ErrorKind))
	}
	server.WriteJSON(w, http.StatusOK, reply)
}

func (h *Handler) HandleListTickets(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	tickets, err := h.tickets.ListTickets(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if tickets == nil {
		tickets = []domain.TicketSummary{}
	}
	server.WriteJSON(w, http.StatusOK, map[string]interface{}{"tickets": tickets})
}

func (h *Handler) HandleGetTicket(w http.ResponseWriter, r *http.Request) {
	id, ticketID, ok := h.scoped(w, r)
	if !ok {
		return
	}

	t, err := h.tickets.GetTicket(r.Context(), ticketID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) HandleUpdateTicket(w http.ResponseWriter, r *http.Request) {
	id, ticketID, ok := h.scoped(w, r)
	if !ok {
		return
	}

	var patch domain.TicketPatch
	if err := decodeBody(w, r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	if patch.IsEmpty() {
		h.writeError(w, r, domain.NewError(domain.KindInvalidRequest, "nothing to update"))
		return
	}

	t, err := h.tickets.UpdateTicket(r.Context(), ticketID, patch, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) HandleDeleteTicket(w http.ResponseWriter, r *http.Request) {
	id, ticketID, ok := h.scoped(w, r)
	if !ok {
		return
	}

	if err := h.tickets.DeleteTicket(r.Context(), ticketID, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListFollowups(w http.ResponseWriter, r *http.Request) {
	id, ticketID, ok := h.scoped(w, r)
	if !ok {
		return
	}

	followups, err := h.tickets.ListFollowups(r.Context(), ticketID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if followups == nil {
		followups = []domain.Followup{}
	}
	server.WriteJSON(w, http.StatusOK, map[string]interface{}{"followups": followups})
}

func (h *Handler) HandleAddFollowup(w http.ResponseWriter, r *http.Request) {
	id, ticketID, ok := h.scoped(w, r)
	if !ok {
		return
	}

	var body FollowupRequest
	if err := decodeBody(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	body.Content = strings.TrimSpace(body.Content)
	if body.Content == "" {
		h.writeError(w, r, domain.NewError(domain.KindInvalidRequest, "content is required"))
		return
	}

	ref, err := h.tickets.AddFollowup(r.Context(), ticketID, body.Content, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusCreated, ref)
}

// identity reads and validates the caller headers.
func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	id := domain.NewIdentity(
		r.Header.Get(HeaderUserEmail),
		r.Header.Get(HeaderUserName),
		r.Header.Get(HeaderUserRole),
	)
	if err := id.Validate(); err != nil {
		h.writeError(w, r, err)
		return domain.Identity{}, false
	}
	server.AddLogField(r.Context(), "user", id.Key())
	server.AddLogField(r.Context(), "role", string(id.Role))
	return id, true
}

func (h *Handler) scoped(w http.ResponseWriter, r *http.Request) (domain.Identity, int, bool) {
	id, ok := h.identity(w, r)
	if !ok {
		return domain.Identity{}, 0, false
	}
	ticketID, err := strconv.Atoi(chi.URLParam(r, "ticketID"))
	if err != nil || ticketID <= 0 {
		h.writeError(w, r, domain.NewError(domain.KindInvalidRequest, "ticket id must be a positive integer"))
		return domain.Identity{}, 0, false
	}
	server.AddLogField(r.Context(), "ticket_id", strconv.Itoa(ticketID))
	return id, ticketID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewError(domain.KindInvalidRequest, "request body is required")
		}
		return domain.NewError(domain.KindInvalidRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

// writeError maps err onto the JSON error envelope. Internal details of
// untagged errors are logged, not returned.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	server.AddError(r.Context(), err)

	status := domain.StatusOf(err)
	kind := string(domain.KindOf(err))
	message := "internal error"

	var de *domain.Error
	if errors.As(err, &de) {
		message = de.Message
		if message == "" && de.Err != nil {
			message = de.Err.Error()
		}
	} else {
		kind = "internal"
		h.logger.Error("unhandled error",
			slog.String("request_id", server.GetRequestID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}

	server.WriteError(w, status, kind, message)
}
