package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
	"github.com/tjfontaine/helpdesk-gateway/internal/core/ports"
)

// MockClient is a scripted Completer. Replies are consumed in order; when
// the script is exhausted the heuristic reply is used.
type MockClient struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   [][]domain.ChatMessage
}

var _ ports.Completer = (*MockClient)(nil)

// NewMockClient creates a mock returning replies in order.
func NewMockClient(replies ...string) *MockClient {
	return &MockClient{replies: replies}
}

// FailWith makes every subsequent call return err.
func (m *MockClient) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Push appends scripted replies.
func (m *MockClient) Push(replies ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, replies...)
}

// Calls returns the prompts received so far.
func (m *MockClient) Calls() [][]domain.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]domain.ChatMessage(nil), m.calls...)
}

// Complete implements ports.Completer.
func (m *MockClient) Complete(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, messages)
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) > 0 {
		r := m.replies[0]
		m.replies = m.replies[1:]
		return r, nil
	}
	return HeuristicReply(messages), nil
}

var (
	greetingWords = regexp.MustCompile(`(?i)^\s*(hello|hi|hey|bonjour|salut|bonsoir|thanks|thank you|merci)\b[\s!.,]*$`)
	problemWords  = regexp.MustCompile(`(?i)\b(broken|error|fail|crash|not working|doesn't work|does not work|can't|cannot|panne|erreur|bloqu|marche pas|fonctionne pas|impossible|open a ticket|create a ticket|ouvrir un ticket|créer un ticket)`)
	numberWord    = regexp.MustCompile(`\d+`)
)

// HeuristicReply produces a keyword-based answer in the line-oriented format.
// It lets the service run without a language model.
func HeuristicReply(messages []domain.ChatMessage) string {
	if len(messages) == 0 {
		return "INTENTION: OTHER\nRESPONSE: How can I help you?"
	}
	last := messages[len(messages)-1].Content

	// answer synthesis prompt
	if strings.Contains(messages[0].Content, NoAnswer) {
		return NoAnswer
	}

	switch {
	case greetingWords.MatchString(last):
		return "INTENTION: SALUTATION\nTITLE: unknown\nDESCRIPTION: unknown\nRESPONSE: Hello! How can I help you today?"
	case problemWords.MatchString(last):
		title := last
		if i := strings.IndexAny(title, ".!?\n"); i > 0 {
			title = title[:i]
		}
		if r := []rune(title); len(r) > 80 {
			title = string(r[:80])
		}
		ticketID := "unknown"
		if n := numberWord.FindString(last); n != "" {
			ticketID = n
		}
		return fmt.Sprintf("INTENTION: CREATE_TICKET\nTITLE: %s\nDESCRIPTION: %s\nPRIORITY: unknown\nCATEGORY: unknown\nURGENCY: unknown\nTICKET_ID: %s\nRESPONSE: I understand, let me help you with this problem.",
			strings.TrimSpace(title), strings.TrimSpace(last), ticketID)
	default:
		return "INTENTION: FAQ\nTITLE: unknown\nDESCRIPTION: unknown\nRESPONSE: unknown"
	}
}
