package glpi

import (
	"html"
	"regexp"
	"strings"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
)

// The ownership and role markers are a storage contract with every ticket
// already written remotely. Changing them requires a new prefix version;
// readers keep accepting the older prefixes.
const (
	// OwnerMarkerPrefix starts the first line of a ticket body.
	OwnerMarkerPrefix = "Requester-Email: "

	// AgentMarker prefixes followups written by an administrator or support agent.
	AgentMarker = "AGENT_MSG::"

	// ClientMarker prefixes followups written by a client.
	ClientMarker = "CLIENT_MSG::"

	// CategoryMarkerPrefix starts the optional header line after the owner
	// marker. It is only read inside the header block.
	CategoryMarkerPrefix = "Ticket-Category: "
)

// legacyOwnerPrefixes are accepted on read only.
var legacyOwnerPrefixes = []string{"Email du demandeur: "}

var htmlBreaks = strings.NewReplacer(
	"<br />", "\n",
	"<br/>", "\n",
	"<br>", "\n",
	"</p>\n<p>", "\n",
	"</p><p>", "\n",
	"<p>", "",
	"</p>", "",
)

var (
	escapedTag = regexp.MustCompile(`&lt;/?[a-zA-Z][^&<>]*&gt;`)
	rawTag     = regexp.MustCompile(`</?[a-zA-Z][^<>]*>`)
)

// normalizeBody undoes the HTML encoding the remote system may apply to
// stored rich text. Entities are only decoded when the body carries
// markup, escaped or not: plain text comes back exactly as written.
func normalizeBody(s string) string {
	switch {
	case escapedTag.MatchString(s):
		s = htmlBreaks.Replace(html.UnescapeString(s))
	case rawTag.MatchString(s):
		s = html.UnescapeString(htmlBreaks.Replace(s))
	}
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// ticketBody is the decoded form of a stored ticket body.
type ticketBody struct {
	Owner    string
	Content  string
	Category string
}

// encodeTicketBody writes a header block (owner marker, then an optional
// category line), a blank line and the content. Without an owner there is
// no header and the category is not stored.
func encodeTicketBody(b ticketBody) string {
	owner := strings.TrimSpace(b.Owner)
	if owner == "" {
		return b.Content
	}
	var sb strings.Builder
	sb.WriteString(OwnerMarkerPrefix)
	sb.WriteString(owner)
	sb.WriteString("\n")
	if c := strings.TrimSpace(b.Category); c != "" {
		sb.WriteString(CategoryMarkerPrefix)
		sb.WriteString(c)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(b.Content)
	return sb.String()
}

// decodeTicketBody is the inverse of encodeTicketBody. Bodies without a
// marker yield an empty Owner and the whole body as Content.
func decodeTicketBody(raw string) ticketBody {
	s := normalizeBody(raw)
	var b ticketBody

	first, rest, _ := strings.Cut(s, "\n")
	owner, ok := ownerFromLine(first)
	if !ok {
		b.Content = s
		return b
	}
	b.Owner = owner
	if line, after, _ := strings.Cut(rest, "\n"); strings.HasPrefix(line, CategoryMarkerPrefix) {
		b.Category = strings.TrimSpace(line[len(CategoryMarkerPrefix):])
		rest = after
	}
	b.Content = strings.TrimLeft(rest, "\n")
	return b
}

func ownerFromLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	for _, prefix := range append([]string{OwnerMarkerPrefix}, legacyOwnerPrefixes...) {
		if strings.HasPrefix(line, prefix) {
			email := strings.TrimSpace(line[len(prefix):])
			return email, email != ""
		}
	}
	return "", false
}

// encodeFollowup prefixes content with the author role marker.
func encodeFollowup(role domain.AuthorRole, content string) string {
	prefix := ClientMarker
	if role == domain.AuthorAgent {
		prefix = AgentMarker
	}
	return prefix + " " + content
}

// decodeFollowup recovers the author role and the user-visible content.
// Unmarked followups were written directly in the remote system by staff.
func decodeFollowup(raw string) (domain.AuthorRole, string) {
	s := normalizeBody(raw)
	trimmed := strings.TrimLeft(s, " \n")
	switch {
	case strings.HasPrefix(trimmed, AgentMarker):
		return domain.AuthorAgent, strings.TrimPrefix(trimmed[len(AgentMarker):], " ")
	case strings.HasPrefix(trimmed, ClientMarker):
		return domain.AuthorClient, strings.TrimPrefix(trimmed[len(ClientMarker):], " ")
	default:
		return domain.AuthorAgent, s
	}
}

// authorRoleFor maps a local role to the followup author role.
func authorRoleFor(role domain.Role) domain.AuthorRole {
	switch domain.NormalizeRole(string(role)) {
	case domain.RoleAdmin, domain.RoleSupportAgent:
		return domain.AuthorAgent
	default:
		return domain.AuthorClient
	}
}
