package intake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
)

const (
	msgCancelled             = "Operation cancelled. Let me know if you have another question."
	msgConfirmationCancelled = "All right, no ticket will be opened. Let me know if you need anything else."
	msgConfirmTicket         = "It sounds like you are running into a problem. Shall I open a support ticket for it?"
	msgFAQFeedback           = "Did this solve your problem?"
	msgFAQResolved           = "Glad I could help! Let me know if you have another question."
	msgGreeting              = "Hello! How can I help you today?"
	msgUnsupported           = "Sorry, I can only help with IT support questions and tickets."
	msgTellMeMore            = "Could you tell me a bit more about what you need?"
	msgNoAnswer              = "I could not find an answer to your question. If you are facing a problem, describe it and I can open a ticket for you."
	msgWhichTicket           = "Which ticket are you referring to? Please give me its number."
)

var fieldQuestions = map[domain.Field]string{
	domain.FieldTitle:       "What short title would describe your problem?",
	domain.FieldDescription: "Please describe the problem in detail: what happens, since when, and any error message you see.",
	domain.FieldPriority:    "What priority should this ticket have (low, normal, high, urgent)?",
	domain.FieldCategory:    "Which category fits best (hardware, software, network, account, other)?",
	domain.FieldUrgency:     "How urgent is it for you (low, normal, high, urgent)?",
}

func fieldQuestion(f domain.Field) string {
	return fieldQuestions[f]
}

func incompleteMessage(fields []domain.Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return fmt.Sprintf("I need more detail before opening the ticket. Please give a more precise %s.", strings.Join(names, " and "))
}

func ticketCreatedMessage(id int) string {
	return fmt.Sprintf("Ticket #%d has been created. The support team will get back to you soon.", id)
}

// failure turns a gateway or collaborator error into an error reply.
func (s *Service) failure(ctx context.Context, req AskRequest, err error) *domain.Reply {
	return s.failureFor(ctx, req, err, 0)
}

func (s *Service) failureFor(ctx context.Context, req AskRequest, err error, ticketID int) *domain.Reply {
	kind := domain.KindOf(err)
	if kind == "" {
		kind = domain.KindGateway
	}

	var msg string
	switch kind {
	case domain.KindAuth:
		msg = "The ticketing system is temporarily unavailable. Please try again in a moment."
	case domain.KindAccessDenied:
		msg = "You are not allowed to access this ticket."
	case domain.KindNotFound:
		msg = fmt.Sprintf("Ticket #%d was not found.", ticketID)
	case domain.KindReconciliation:
		msg = fmt.Sprintf("Your ticket could not be created because your account could not be matched in the ticketing system (%s). The support team has been notified.", err.Error())
	case domain.KindInvalidRequest:
		msg = err.Error()
	case domain.KindUnavailable:
		msg = "The assistant is temporarily unavailable. Please try again later."
	default:
		msg = "The ticketing system did not respond correctly. Please try again later."
	}

	level := slog.LevelWarn
	if kind == domain.KindGateway || kind == domain.KindReconciliation {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "ask ended with an error reply",
		slog.String("user", req.Identity.Key()),
		slog.String("kind", string(kind)),
		slog.Int("ticket_id", ticketID),
		slog.Any("error", err),
	)

	return &domain.Reply{
		Type:      domain.ReplyError,
		Message:   msg,
		TicketID:  ticketID,
		ErrorKind: kind,
	}
}
