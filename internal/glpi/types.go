package glpi

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
)

// dateLayout is the remote timestamp format, expressed in the server's local time.
const dateLayout = "2006-01-02 15:04:05"

// flexInt decodes integers that the remote API sometimes renders as strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// expanded dropdowns replace ids with labels
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

type remoteTicket struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	Content      string  `json:"content"`
	Status       flexInt `json:"status"`
	Priority     flexInt `json:"priority"`
	Urgency      flexInt `json:"urgency"`
	Date         string  `json:"date"`
	DateMod      string  `json:"date_mod"`
	DateCreation string  `json:"date_creation"`
}

type remoteFollowup struct {
	ID           int     `json:"id"`
	ItemsID      int     `json:"items_id"`
	Itemtype     string  `json:"itemtype"`
	Content      string  `json:"content"`
	IsPrivate    flexInt `json:"is_private"`
	Date         string  `json:"date"`
	DateCreation string  `json:"date_creation"`
}

type remoteUser struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Realname string `json:"realname"`
	Email    string `json:"email"`
}

type createResponse struct {
	ID      int    `json:"id"`
	Message string `json:"message"`
}

// envelope wraps every write payload.
type envelope struct {
	Input interface{} `json:"input"`
}

// itemResult is one element of the array returned by update and delete.
// It carries the item id as a dynamic key and a message.
type itemResult map[string]json.RawMessage

// ok reports whether the result for id is true.
func (r itemResult) ok(id int) (bool, string) {
	var msg string
	if raw, found := r["message"]; found {
		_ = json.Unmarshal(raw, &msg)
	}
	raw, found := r[strconv.Itoa(id)]
	if !found {
		return false, msg
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, msg
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n != 0, msg
	}
	return false, msg
}

func parseTime(s string, loc *time.Location) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, s); err != nil {
			return time.Time{}
		}
	}
	return t
}

func (rt remoteTicket) toDomain(loc *time.Location) *domain.Ticket {
	body := decodeTicketBody(rt.Content)
	created := parseTime(rt.Date, loc)
	if created.IsZero() {
		created = parseTime(rt.DateCreation, loc)
	}
	updated := parseTime(rt.DateMod, loc)
	if updated.IsZero() {
		updated = created
	}
	return &domain.Ticket{
		ID:        rt.ID,
		Title:     rt.Name,
		Content:   body.Content,
		Requester: body.Owner,
		Category:  body.Category,
		Status:    int(rt.Status),
		Priority:  int(rt.Priority),
		Urgency:   int(rt.Urgency),
		CreatedAt: created,
		UpdatedAt: updated,
	}
}

func (rf remoteFollowup) toDomain(ticketID int, loc *time.Location) domain.Followup {
	role, content := decodeFollowup(rf.Content)
	created := parseTime(rf.DateCreation, loc)
	if created.IsZero() {
		created = parseTime(rf.Date, loc)
	}
	if rf.ItemsID != 0 {
		ticketID = rf.ItemsID
	}
	return domain.Followup{
		ID:         rf.ID,
		TicketID:   ticketID,
		AuthorRole: role,
		Content:    content,
		IsPrivate:  rf.IsPrivate != 0,
		CreatedAt:  created,
	}
}
