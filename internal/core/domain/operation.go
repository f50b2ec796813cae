package domain

// Operation names a gateway action subject to the privilege policy.
type Operation string

const (
	OpListTickets   Operation = "list_tickets"
	OpGetTicket     Operation = "get_ticket"
	OpUpdateTicket  Operation = "update_ticket"
	OpDeleteTicket  Operation = "delete_ticket"
	OpAddFollowup   Operation = "add_followup"
	OpListFollowups Operation = "list_followups"
	OpRemindTicket  Operation = "remind_ticket"
)
