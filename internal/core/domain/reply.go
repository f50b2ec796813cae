package domain

// ReplyType tags the structured reply returned by the orchestrator.
type ReplyType string

const (
	ReplyConversation          ReplyType = "conversation"
	ReplyAskField              ReplyType = "ask_field"
	ReplyConfirmationTicket    ReplyType = "confirmation_ticket"
	ReplyFAQSuggestion         ReplyType = "faq_suggestion"
	ReplyFAQResolved           ReplyType = "faq_resolved"
	ReplyTicketIncomplete      ReplyType = "ticket_incomplete"
	ReplyTicketCreated         ReplyType = "ticket_created"
	ReplyFollowupAdded         ReplyType = "followup_added"
	ReplyTicketStatus          ReplyType = "ticket_status"
	ReplyTicketUpdated         ReplyType = "ticket_updated"
	ReplyTicketReminded        ReplyType = "ticket_reminded"
	ReplyTicketDeleted         ReplyType = "ticket_deleted"
	ReplyTicketList            ReplyType = "ticket_list"
	ReplyCancelled             ReplyType = "cancelled"
	ReplyConfirmationCancelled ReplyType = "confirmation_cancelled"
	ReplyError                 ReplyType = "error"
)

// Reply is the single structured answer to one inbound message.
type Reply struct {
	Type    ReplyType `json:"type"`
	Message string    `json:"message"`

	// TicketID is set on every ticket-producing or ticket-scoped reply.
	TicketID int `json:"ticket_id,omitempty"`

	// Field is the field being asked for on ask_field replies.
	Field Field `json:"field,omitempty"`

	// Missing lists insufficient fields on ticket_incomplete replies.
	Missing []Field `json:"missing,omitempty"`

	Ticket  *Ticket         `json:"ticket,omitempty"`
	Tickets []TicketSummary `json:"tickets,omitempty"`

	// Sources names the knowledge documents behind a faq answer.
	Sources []string `json:"sources,omitempty"`

	// ErrorKind is set on error replies.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
}

// Terminal reports whether the reply ends the conversation flow.
func (r Reply) Terminal() bool {
	switch r.Type {
	case ReplyTicketCreated, ReplyCancelled, ReplyConfirmationCancelled, ReplyFAQResolved:
		return true
	}
	return false
}
