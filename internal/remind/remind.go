// Package remind adds reminder followups to open tickets that have not been
// modified for a while.
package remind

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
	"github.com/tjfontaine/helpdesk-gateway/internal/core/ports"
)

// DefaultStaleAfter is the idle time after which an open ticket is reminded.
const DefaultStaleAfter = 2 * time.Hour

// Result summarizes one sweep.
type Result struct {
	Checked  int
	Stale    int
	Reminded []int
	Failed   []int
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

// Sweeper reminds stale tickets as a privileged identity.
type Sweeper struct {
	tickets    ports.TicketGateway
	as         domain.Identity
	staleAfter time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// New creates a sweeper acting as identity as. The identity must be
// privileged for listing and reminding every ticket.
func New(tickets ports.TicketGateway, as domain.Identity, staleAfter time.Duration, opts ...Option) *Sweeper {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	s := &Sweeper{
		tickets:    tickets,
		as:         as,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stale reports whether t awaits handling and was last modified at least
// staleAfter ago. Tickets with an unknown modification time are skipped.
func (s *Sweeper) Stale(t domain.TicketSummary) bool {
	if !domain.IsOpenStatus(t.Status) || t.UpdatedAt.IsZero() {
		return false
	}
	return s.now().Sub(t.UpdatedAt) >= s.staleAfter
}

// Run lists every ticket and reminds the stale ones. A failed reminder is
// logged and does not stop the sweep.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	var res Result

	summaries, err := s.tickets.ListTickets(ctx, s.as)
	if err != nil {
		return res, fmt.Errorf("failed to list tickets: %w", err)
	}

	for _, t := range summaries {
		res.Checked++
		if !s.Stale(t) {
			continue
		}
		res.Stale++

		if err := ctx.Err(); err != nil {
			return res, err
		}

		if _, err := s.tickets.RemindTicket(ctx, t.ID, s.as); err != nil {
			res.Failed = append(res.Failed, t.ID)
			s.logger.Warn("failed to remind ticket",
				slog.Int("ticket_id", t.ID),
				slog.String("error", err.Error()))
			continue
		}
		res.Reminded = append(res.Reminded, t.ID)
		s.logger.Info("ticket reminded",
			slog.Int("ticket_id", t.ID),
			slog.Duration("idle", s.now().Sub(t.UpdatedAt).Round(time.Minute)))
	}

	s.logger.Info("reminder sweep complete",
		slog.Int("checked", res.Checked),
		slog.Int("stale", res.Stale),
		slog.Int("reminded", len(res.Reminded)),
		slog.Int("failed", len(res.Failed)))
	return res, nil
}
