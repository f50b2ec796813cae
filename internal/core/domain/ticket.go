package domain

import (
	"strings"
	"time"
)

// Ticket status codes of the remote ticketing system.
const (
	StatusNew      = 1
	StatusAssigned = 2
	StatusPlanned  = 3
	StatusPending  = 4
	StatusSolved   = 5
	StatusClosed   = 6
)

var statusLabels = map[int]string{
	StatusNew:      "new",
	StatusAssigned: "processing (assigned)",
	StatusPlanned:  "processing (planned)",
	StatusPending:  "pending",
	StatusSolved:   "solved",
	StatusClosed:   "closed",
}

// StatusLabel returns a human label for a remote status code.
func StatusLabel(status int) string {
	if l, ok := statusLabels[status]; ok {
		return l
	}
	return "unknown"
}

// IsOpenStatus reports whether the ticket still awaits handling.
func IsOpenStatus(status int) bool {
	return status >= StatusNew && status <= StatusPlanned
}

// Ticket is a remote ticket with its ownership marker resolved.
type Ticket struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`

	// Requester is the email recovered from the ownership marker, if any.
	Requester string `json:"requester_email,omitempty"`

	Category string `json:"category,omitempty"`
	Status   int    `json:"status"`
	Priority int    `json:"priority,omitempty"`
	Urgency  int    `json:"urgency,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary returns the list view of the ticket.
func (t *Ticket) Summary() TicketSummary {
	return TicketSummary{
		ID:          t.ID,
		Title:       t.Title,
		Requester:   t.Requester,
		Status:      t.Status,
		StatusLabel: StatusLabel(t.Status),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// TicketSummary is a ticket without its body.
type TicketSummary struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Requester   string    `json:"requester_email,omitempty"`
	Status      int       `json:"status"`
	StatusLabel string    `json:"status_label"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TicketRef references a ticket just created remotely.
type TicketRef struct {
	ID      int    `json:"id"`
	Message string `json:"message,omitempty"`
}

// NewTicket is the input to ticket creation.
type NewTicket struct {
	Title       string
	Description string
	Category    string

	// Priority and Urgency use the remote 1..5 scale, 0 meaning unset.
	Priority int
	Urgency  int
}

// TicketPatch is a partial ticket update. Nil fields are left unchanged.
type TicketPatch struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

// IsEmpty reports whether the patch would change nothing.
func (p TicketPatch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil
}

// AuthorRole is the reconstructed author of a followup.
type AuthorRole string

const (
	AuthorAgent  AuthorRole = "agent"
	AuthorClient AuthorRole = "client"
)

// Followup is a remote followup with its role marker resolved.
type Followup struct {
	ID         int        `json:"id"`
	TicketID   int        `json:"ticket_id"`
	AuthorRole AuthorRole `json:"author_role"`
	Content    string     `json:"content"`
	IsPrivate  bool       `json:"is_private"`
	CreatedAt  time.Time  `json:"created_at"`
}

// FollowupRef references a followup just created remotely.
type FollowupRef struct {
	ID       int `json:"id"`
	TicketID int `json:"ticket_id"`
}

// ScaleLevel maps a free-text priority or urgency onto the remote 1..5 scale.
// It returns 0 when the value is not recognized.
func ScaleLevel(v string) int {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case "1", "very low", "très basse", "tres basse":
		return 1
	case "2", "low", "basse", "faible":
		return 2
	case "3", "normal", "medium", "moyenne", "normale":
		return 3
	case "4", "high", "haute", "élevée", "elevee":
		return 4
	case "5", "urgent", "very high", "critical", "urgente", "critique", "très haute", "tres haute":
		return 5
	}
	return 0
}
