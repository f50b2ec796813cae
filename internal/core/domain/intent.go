package domain

// Intent is the per-turn classification produced by the field extractor.
type Intent string

const (
	IntentSalutation   Intent = "salutation"
	IntentCreateTicket Intent = "create_ticket"
	IntentFAQ          Intent = "faq"
	IntentFollowup     Intent = "followup_ticket"
	IntentStatus       Intent = "status_ticket"
	IntentUpdate       Intent = "update_ticket"
	IntentRemind       Intent = "remind_ticket"
	IntentDelete       Intent = "delete_ticket"
	IntentList         Intent = "list_tickets"
	IntentUnsupported  Intent = "unsupported"
	IntentOther        Intent = "other"
)

// TicketScoped reports whether the intent acts on an existing ticket.
func (i Intent) TicketScoped() bool {
	switch i {
	case IntentFollowup, IntentStatus, IntentUpdate, IntentRemind, IntentDelete:
		return true
	}
	return false
}
