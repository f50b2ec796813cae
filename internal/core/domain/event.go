package domain

import "time"

// EventType names an entry in the intake interaction log.
type EventType string

const (
	EventRequestReceived  EventType = "request_received"
	EventLLMParsed        EventType = "llm_parsed"
	EventDraftUpdated     EventType = "draft_updated"
	EventTicketCreated    EventType = "ticket_created"
	EventTicketFailed     EventType = "ticket_failed"
	EventFollowupAdded    EventType = "followup_added"
	EventTicketUpdated    EventType = "ticket_updated"
	EventTicketReminded   EventType = "ticket_reminded"
	EventTicketDeleted    EventType = "ticket_deleted"
	EventFAQAnswered      EventType = "faq_answered"
	EventFAQResolved      EventType = "faq_resolved"
	EventCancelled        EventType = "cancelled"
	EventReconcileFailure EventType = "reconciliation_failed"
)

// Event is one append-only entry of the interaction log.
type Event struct {
	ID        string            `json:"id"`
	UserKey   string            `json:"user_key"`
	Type      EventType         `json:"type"`
	TicketID  int               `json:"ticket_id,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
