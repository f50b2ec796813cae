// Package extract parses the line-oriented "KEY: value" text produced by the
// language model into named fields and an intent.
//
// Parsing is best-effort and never fails: malformed or missing sections
// simply produce fewer keys.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
)

// Canonical keys of a parsed result.
const (
	KeyIntention   = "intention"
	KeyTitle       = "title"
	KeyDescription = "description"
	KeyPriority    = "priority"
	KeyCategory    = "category"
	KeyUrgency     = "urgency"
	KeyTicketID    = "ticket_id"
	KeyResponse    = "response"
)

// keyAliases maps every accepted upper-case key, accents stripped, to its canonical name.
var keyAliases = map[string]string{
	"INTENTION":     KeyIntention,
	"INTENT":        KeyIntention,
	"TITLE":         KeyTitle,
	"TITRE":         KeyTitle,
	"DESCRIPTION":   KeyDescription,
	"PRIORITY":      KeyPriority,
	"PRIORITE":      KeyPriority,
	"CATEGORY":      KeyCategory,
	"CATEGORIE":     KeyCategory,
	"URGENCY":       KeyUrgency,
	"URGENCE":       KeyUrgency,
	"TICKET_ID":     KeyTicketID,
	"TICKET":        KeyTicketID,
	"NUMERO_TICKET": KeyTicketID,
	"RESPONSE":      KeyResponse,
	"REPONSE":       KeyResponse,
	"ANSWER":        KeyResponse,
}

var intentLabels = map[string]domain.Intent{
	"SALUTATION":          domain.IntentSalutation,
	"GREETING":            domain.IntentSalutation,
	"CREATE_TICKET":       domain.IntentCreateTicket,
	"CREATION_TICKET":     domain.IntentCreateTicket,
	"FAQ":                 domain.IntentFAQ,
	"QUESTION":            domain.IntentFAQ,
	"FOLLOWUP_TICKET":     domain.IntentFollowup,
	"SUIVI_TICKET":        domain.IntentFollowup,
	"STATUS_TICKET":       domain.IntentStatus,
	"STATUT_TICKET":       domain.IntentStatus,
	"GET_TICKET_STATUS":   domain.IntentStatus,
	"UPDATE_TICKET":       domain.IntentUpdate,
	"MODIFICATION_TICKET": domain.IntentUpdate,
	"REMIND_TICKET":       domain.IntentRemind,
	"RELANCE_TICKET":      domain.IntentRemind,
	"DELETE_TICKET":       domain.IntentDelete,
	"SUPPRESSION_TICKET":  domain.IntentDelete,
	"LIST_TICKETS":        domain.IntentList,
	"LISTE_TICKETS":       domain.IntentList,
	"UNSUPPORTED":         domain.IntentUnsupported,
	"NON_SUPPORTE":        domain.IntentUnsupported,
	"OTHER":               domain.IntentOther,
	"AUTRE":               domain.IntentOther,
}

// keyLine matches a key line such as "TITLE: ...", "**TITRE**: ..." or "- *Priority*: ...".
var keyLine = regexp.MustCompile(`^\s*(?:[-•>#]+\s*)?[*_]*([\p{L}][\p{L}_ ]*?)[*_]*\s*:[*_]*\s*(.*)$`)

var ticketNumber = regexp.MustCompile(`\d+`)

var accentFolder = strings.NewReplacer(
	"É", "E", "È", "E", "Ê", "E", "À", "A", "Â", "A", "Ô", "O", "Û", "U", "Ù", "U", "Î", "I", "Ç", "C",
)

// Result is the outcome of parsing one language model response.
type Result struct {
	// Fields maps canonical lower-case keys to trimmed values. Keys present
	// with an empty value carry domain.PlaceholderValue.
	Fields map[string]string

	// Intent is the classified intent, domain.IntentOther when absent.
	Intent domain.Intent

	// HasIntent reports whether an INTENTION key was present.
	HasIntent bool
}

// Value returns the value for key, or "" when the key is absent or a placeholder.
func (r Result) Value(key string) string {
	v := r.Fields[key]
	if domain.IsPlaceholder(v) {
		return ""
	}
	return v
}

// TicketID returns the ticket number extracted from the TICKET_ID key.
func (r Result) TicketID() (int, bool) {
	v := r.Value(KeyTicketID)
	if v == "" {
		return 0, false
	}
	m := ticketNumber.FindString(v)
	if m == "" {
		return 0, false
	}
	id, err := strconv.Atoi(m)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// DraftFields returns the non-placeholder ticket fields of the result.
func (r Result) DraftFields() map[domain.Field]string {
	out := make(map[domain.Field]string)
	for _, f := range domain.FieldOrder {
		if v := r.Value(string(f)); v != "" {
			out[f] = v
		}
	}
	return out
}

// Parse extracts fields and the intent from text.
// Lines that do not start with a known key continue the previous key's value.
func Parse(text string) Result {
	res := Result{Fields: make(map[string]string), Intent: domain.IntentOther}

	var (
		current string
		order   []string
	)
	values := make(map[string][]string)

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if key, value, ok := matchKey(line); ok {
			current = key
			if _, seen := values[key]; !seen {
				order = append(order, key)
			}
			// a repeated key restarts its value
			values[key] = []string{value}
			continue
		}
		if current != "" {
			values[current] = append(values[current], line)
		}
	}

	for _, key := range order {
		v := strings.TrimSpace(strings.Join(values[key], "\n"))
		v = strings.Trim(v, "*_")
		v = strings.TrimSpace(v)
		if v == "" {
			v = domain.PlaceholderValue
		}
		res.Fields[key] = v
	}

	if label, ok := res.Fields[KeyIntention]; ok {
		res.HasIntent = true
		res.Intent = ParseIntent(label)
	}
	return res
}

// ParseIntent maps an intent label onto domain.Intent.
// Unknown labels map to domain.IntentOther.
func ParseIntent(label string) domain.Intent {
	label = normalizeKey(strings.Trim(strings.TrimSpace(label), "`<>*_\"'"))
	if label == "" {
		return domain.IntentOther
	}
	// "CREATION_TICKET|FAQ" style echoes of the template take the first option
	if i := strings.IndexAny(label, "|/,"); i > 0 {
		label = label[:i]
	}
	if intent, ok := intentLabels[label]; ok {
		return intent
	}
	return domain.IntentOther
}

func matchKey(line string) (key, value string, ok bool) {
	m := keyLine.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	canonical, known := keyAliases[normalizeKey(m[1])]
	if !known {
		return "", "", false
	}
	return canonical, m[2], true
}

func normalizeKey(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = accentFolder.Replace(s)
	return strings.ReplaceAll(s, " ", "_")
}
