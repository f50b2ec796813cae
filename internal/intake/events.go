package intake

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
)

// logEvent appends an interaction event to the event store (best-effort).
func (s *Service) logEvent(ctx context.Context, req AskRequest, typ domain.EventType, ticketID int, detail map[string]string) {
	if s.events == nil {
		return
	}
	evt := &domain.Event{
		ID:        "evt_" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		UserKey:   req.Identity.Key(),
		Type:      typ,
		TicketID:  ticketID,
		RequestID: req.RequestID,
		Detail:    detail,
		CreatedAt: s.now(),
	}
	if err := s.events.AppendEvent(ctx, evt); err != nil {
		s.logger.Warn("failed to record interaction event",
			slog.String("type", string(typ)),
			slog.Any("error", err),
		)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
