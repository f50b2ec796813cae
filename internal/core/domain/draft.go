package domain

import (
	"fmt"
	"strings"
	"time"
)

// Field names a ticket attribute collected during a conversation.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldPriority    Field = "priority"
	FieldCategory    Field = "category"
	FieldUrgency     Field = "urgency"
)

// FieldOrder is the fixed collection order.
var FieldOrder = []Field{FieldTitle, FieldDescription, FieldPriority, FieldCategory, FieldUrgency}

// NextField returns the field collected after f, or false when f is the last one.
func NextField(f Field) (Field, bool) {
	for i, cur := range FieldOrder {
		if cur == f && i+1 < len(FieldOrder) {
			return FieldOrder[i+1], true
		}
	}
	return "", false
}

// ParseField validates a field name.
func ParseField(s string) (Field, bool) {
	for _, f := range FieldOrder {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// PlaceholderValue is substituted by the extractor for empty matches.
const PlaceholderValue = "unknown"

var placeholders = map[string]bool{
	"":             true,
	"unknown":      true,
	"inconnu":      true,
	"inconnue":     true,
	"non spécifié": true,
	"non specifie": true,
	"non précisé":  true,
	"n/a":          true,
	"na":           true,
	"none":         true,
	"null":         true,
	"empty":        true,
	"vide":         true,
	"aucun":        true,
	"aucune":       true,
}

// IsPlaceholder reports whether v carries no real information.
func IsPlaceholder(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.Trim(v, "*_.\"'`")
	return placeholders[strings.TrimSpace(v)]
}

// State is the coarse position of a draft in the dialogue state machine.
type State string

const (
	StateIdle              State = "idle"
	StateAwaitConfirmation State = "await_confirmation"
	StateAwaitFAQFeedback  State = "await_faq_feedback"
	StateCollecting        State = "collecting"
)

// Expectation is the next input a draft is waiting for.
// Field is set only when State is StateCollecting.
type Expectation struct {
	State State `json:"state"`
	Field Field `json:"field,omitempty"`
}

// Collecting returns an expectation waiting for field f.
func Collecting(f Field) Expectation {
	return Expectation{State: StateCollecting, Field: f}
}

// String renders the expectation as stored, e.g. "collecting:title".
func (e Expectation) String() string {
	if e.State == StateCollecting {
		return string(e.State) + ":" + string(e.Field)
	}
	if e.State == "" {
		return string(StateIdle)
	}
	return string(e.State)
}

// ParseExpectation is the inverse of Expectation.String.
func ParseExpectation(s string) (Expectation, error) {
	state, field, hasField := strings.Cut(s, ":")
	switch State(state) {
	case StateIdle, StateAwaitConfirmation, StateAwaitFAQFeedback:
		if hasField {
			return Expectation{}, fmt.Errorf("unexpected field in state %q", s)
		}
		return Expectation{State: State(state)}, nil
	case StateCollecting:
		f, ok := ParseField(field)
		if !ok {
			return Expectation{}, fmt.Errorf("unknown field in state %q", s)
		}
		return Collecting(f), nil
	default:
		return Expectation{}, fmt.Errorf("unknown draft state %q", s)
	}
}

// Turn is one question/response pair of the conversation history.
type Turn struct {
	Question string `json:"question"`
	Response string `json:"response"`
}

// Draft is the per-user, not yet submitted ticket being assembled.
type Draft struct {
	UserKey         string           `json:"user_key"`
	Next            Expectation      `json:"next_expected"`
	Fields          map[Field]string `json:"fields"`
	History         []Turn           `json:"history"`
	PendingQuestion string           `json:"pending_question_context,omitempty"`

	// Version is incremented by the store on every successful save.
	// Zero means the draft has never been stored.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDraft creates an empty draft for userKey.
func NewDraft(userKey string, now time.Time) *Draft {
	return &Draft{
		UserKey:   userKey,
		Next:      Expectation{State: StateIdle},
		Fields:    make(map[Field]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetField stores v into f unless v is a placeholder.
// It reports whether the draft changed.
func (d *Draft) SetField(f Field, v string) bool {
	v = strings.TrimSpace(v)
	if IsPlaceholder(v) {
		return false
	}
	if d.Fields == nil {
		d.Fields = make(map[Field]string)
	}
	if d.Fields[f] == v {
		return false
	}
	d.Fields[f] = v
	return true
}

// Field returns the stored value of f, or "" when unset.
func (d *Draft) Field(f Field) string {
	return d.Fields[f]
}

// MissingFields lists the unset fields in collection order.
func (d *Draft) MissingFields() []Field {
	var missing []Field
	for _, f := range FieldOrder {
		if IsPlaceholder(d.Fields[f]) {
			missing = append(missing, f)
		}
	}
	return missing
}

// AppendTurn records a turn, keeping at most max entries (0 means unbounded).
func (d *Draft) AppendTurn(t Turn, max int) {
	d.History = append(d.History, t)
	if max > 0 && len(d.History) > max {
		d.History = append([]Turn(nil), d.History[len(d.History)-max:]...)
	}
}

// Clone returns a deep copy of the draft.
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	c := *d
	c.Fields = make(map[Field]string, len(d.Fields))
	for k, v := range d.Fields {
		c.Fields[k] = v
	}
	c.History = append([]Turn(nil), d.History...)
	return &c
}
