package intake

import (
	"context"
	"fmt"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
	"github.com/tjfontaine/helpdesk-gateway/internal/extract"
)

// ticketAction runs an intent scoped to an existing ticket.
func (s *Service) ticketAction(ctx context.Context, req AskRequest, res extract.Result) (*domain.Reply, error) {
	id, ok := res.TicketID()
	if !ok {
		id, ok = ticketIDIn(req.Message)
	}
	if !ok {
		return &domain.Reply{Type: domain.ReplyConversation, Message: msgWhichTicket}, nil
	}

	switch res.Intent {
	case domain.IntentStatus:
		return s.ticketStatus(ctx, req, id)
	case domain.IntentFollowup:
		content := res.Value(extract.KeyDescription)
		if content == "" {
			content = req.Message
		}
		return s.addFollowup(ctx, req, id, content)
	case domain.IntentUpdate:
		return s.updateTicket(ctx, req, id, res.Value(extract.KeyDescription))
	case domain.IntentRemind:
		return s.remindTicket(ctx, req, id)
	case domain.IntentDelete:
		return s.deleteTicket(ctx, req, id)
	}
	return &domain.Reply{Type: domain.ReplyConversation, Message: msgTellMeMore}, nil
}

func (s *Service) ticketStatus(ctx context.Context, req AskRequest, id int) (*domain.Reply, error) {
	t, err := s.gateway.GetTicket(ctx, id, req.Identity)
	if err != nil {
		return s.failureFor(ctx, req, err, id), nil
	}
	return &domain.Reply{
		Type:     domain.ReplyTicketStatus,
		Message:  fmt.Sprintf("Ticket #%d (%s) is %s.", t.ID, t.Title, domain.StatusLabel(t.Status)),
		TicketID: t.ID,
		Ticket:   t,
	}, nil
}

func (s *Service) addFollowup(ctx context.Context, req AskRequest, id int, content string) (*domain.Reply, error) {
	ref, err := s.gateway.AddFollowup(ctx, id, content, req.Identity)
	if err != nil {
		return s.failureFor(ctx, req, err, id), nil
	}
	s.logEvent(ctx, req, domain.EventFollowupAdded, id, map[string]string{"followup_id": fmt.Sprint(ref.ID)})
	return &domain.Reply{
		Type:     domain.ReplyFollowupAdded,
		Message:  fmt.Sprintf("Your message has been added to ticket #%d.", id),
		TicketID: id,
	}, nil
}

func (s *Service) updateTicket(ctx context.Context, req AskRequest, id int, content string) (*domain.Reply, error) {
	if content == "" {
		return &domain.Reply{
			Type:     domain.ReplyTicketIncomplete,
			Message:  fmt.Sprintf("Please tell me the new description for ticket #%d.", id),
			TicketID: id,
			Field:    domain.FieldDescription,
			Missing:  []domain.Field{domain.FieldDescription},
		}, nil
	}
	t, err := s.gateway.UpdateTicket(ctx, id, domain.TicketPatch{Content: &content}, req.Identity)
	if err != nil {
		return s.failureFor(ctx, req, err, id), nil
	}
	s.logEvent(ctx, req, domain.EventTicketUpdated, id, nil)
	return &domain.Reply{
		Type:     domain.ReplyTicketUpdated,
		Message:  fmt.Sprintf("Ticket #%d has been updated.", id),
		TicketID: id,
		Ticket:   t,
	}, nil
}

func (s *Service) remindTicket(ctx context.Context, req AskRequest, id int) (*domain.Reply, error) {
	if _, err := s.gateway.RemindTicket(ctx, id, req.Identity); err != nil {
		return s.failureFor(ctx, req, err, id), nil
	}
	s.logEvent(ctx, req, domain.EventTicketReminded, id, nil)
	return &domain.Reply{
		Type:     domain.ReplyTicketReminded,
		Message:  fmt.Sprintf("A reminder has been sent for ticket #%d.", id),
		TicketID: id,
	}, nil
}

func (s *Service) deleteTicket(ctx context.Context, req AskRequest, id int) (*domain.Reply, error) {
	if err := s.gateway.DeleteTicket(ctx, id, req.Identity); err != nil {
		return s.failureFor(ctx, req, err, id), nil
	}
	s.logEvent(ctx, req, domain.EventTicketDeleted, id, nil)
	return &domain.Reply{
		Type:     domain.ReplyTicketDeleted,
		Message:  fmt.Sprintf("Ticket #%d has been deleted.", id),
		TicketID: id,
	}, nil
}

func (s *Service) listTickets(ctx context.Context, req AskRequest) *domain.Reply {
	tickets, err := s.gateway.ListTickets(ctx, req.Identity)
	if err != nil {
		return s.failure(ctx, req, err)
	}
	msg := "You have no tickets."
	switch len(tickets) {
	case 0:
	case 1:
		msg = "You have 1 ticket."
	default:
		msg = fmt.Sprintf("You have %d tickets.", len(tickets))
	}
	return &domain.Reply{Type: domain.ReplyTicketList, Message: msg, Tickets: tickets}
}
