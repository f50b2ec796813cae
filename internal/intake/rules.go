package intake

import (
	"strings"
	"unicode/utf8"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
)

// Rules are the tunable thresholds and vocabularies of the orchestrator.
// They can be swapped at runtime with Service.SetRules.
type Rules struct {
	// MinTitle and MinDescription apply to values collected field by field.
	MinTitle       int
	MinDescription int

	// MinTitleInline and MinDescriptionInline apply when a single message
	// carries enough detail to create a ticket directly.
	MinTitleInline       int
	MinDescriptionInline int

	// GenericTerms are values never accepted as a title or description.
	GenericTerms []string

	// CancelPhrases abort the conversation from any state.
	CancelPhrases []string

	// MaxHistory caps the number of turns kept in a draft.
	MaxHistory int

	// FAQResults is the number of knowledge documents fetched per question.
	FAQResults int
}

// DefaultRules returns the built-in rules.
func DefaultRules() Rules {
	return Rules{
		MinTitle:             5,
		MinDescription:       10,
		MinTitleInline:       10,
		MinDescriptionInline: 15,
		GenericTerms: []string{
			"hello", "hi", "thanks", "thank you", "question", "help", "test", "unknown", "problem", "issue",
			"bonjour", "salut", "merci", "aide", "inconnue", "inconnu", "problème",
		},
		CancelPhrases: append([]string(nil), defaultCancelPhrases...),
		MaxHistory:    20,
		FAQResults:    3,
	}
}

// withDefaults fills zero values from DefaultRules.
func (r Rules) withDefaults() Rules {
	d := DefaultRules()
	if r.MinTitle <= 0 {
		r.MinTitle = d.MinTitle
	}
	if r.MinDescription <= 0 {
		r.MinDescription = d.MinDescription
	}
	if r.MinTitleInline <= 0 {
		r.MinTitleInline = d.MinTitleInline
	}
	if r.MinDescriptionInline <= 0 {
		r.MinDescriptionInline = d.MinDescriptionInline
	}
	if len(r.GenericTerms) == 0 {
		r.GenericTerms = d.GenericTerms
	}
	if len(r.CancelPhrases) == 0 {
		r.CancelPhrases = d.CancelPhrases
	}
	if r.MaxHistory <= 0 {
		r.MaxHistory = d.MaxHistory
	}
	if r.FAQResults <= 0 {
		r.FAQResults = d.FAQResults
	}
	return r
}

// acceptable reports whether v passes the quality gate for field f.
// Only title and description are gated.
func (r Rules) acceptable(f domain.Field, v string, inline bool) bool {
	minLen := 0
	switch f {
	case domain.FieldTitle:
		minLen = r.MinTitle
		if inline {
			minLen = r.MinTitleInline
		}
	case domain.FieldDescription:
		minLen = r.MinDescription
		if inline {
			minLen = r.MinDescriptionInline
		}
	default:
		return true
	}

	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" || domain.IsPlaceholder(v) {
		return false
	}
	for _, g := range r.GenericTerms {
		if v == strings.ToLower(g) {
			return false
		}
	}
	return utf8.RuneCountInString(v) >= minLen
}

// insufficient lists the gated fields of fields that fail the quality gate.
func (r Rules) insufficient(fields map[domain.Field]string, inline bool) []domain.Field {
	var bad []domain.Field
	for _, f := range []domain.Field{domain.FieldTitle, domain.FieldDescription} {
		if !r.acceptable(f, fields[f], inline) {
			bad = append(bad, f)
		}
	}
	return bad
}

// nextToCollect returns the first field after the given one, in
// collection order, that is still missing or fails the collection gate.
// An empty after starts from the first field.
func (r Rules) nextToCollect(d *domain.Draft, after domain.Field) (domain.Field, bool) {
	f, ok := domain.FieldOrder[0], true
	if after != "" {
		f, ok = domain.NextField(after)
	}
	for ; ok; f, ok = domain.NextField(f) {
		v := d.Field(f)
		if domain.IsPlaceholder(v) || !r.acceptable(f, v, false) {
			return f, true
		}
	}
	return "", false
}

func joinFields(fields []domain.Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return strings.Join(names, ",")
}
