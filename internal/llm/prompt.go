package llm

import (
	"fmt"
	"strings"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
)

const (
	defaultMaxPromptTokens = 3000
	docExcerptChars        = 600

	// NoAnswer is returned by the model when the knowledge excerpts do not
	// answer the question.
	NoAnswer = "NO_ANSWER"
)

const classifySystemPrompt = `You are a helpdesk assistant for the ticketing system. Analyse the user's request and answer following strict rules.

--- MANDATORY RULES ---
1. Determine the intention first. Possible intentions:
   - SALUTATION: the user only greets, thanks or says goodbye.
   - CREATE_TICKET: the user explicitly describes a problem or an error, or asks to open a ticket.
   - FOLLOWUP_TICKET: the user adds information to an existing ticket.
   - STATUS_TICKET: the user asks about the state of an existing ticket.
   - UPDATE_TICKET: the user wants to change the description of an existing ticket.
   - REMIND_TICKET: the user wants to chase an existing ticket.
   - DELETE_TICKET: the user wants to delete an existing ticket.
   - LIST_TICKETS: the user wants to see their tickets.
   - FAQ: any other general question or request for information.
   - UNSUPPORTED: requests outside the scope of IT support.
   - OTHER: anything else.
2. Fill TITLE and DESCRIPTION only when the intention is CREATE_TICKET and the user gave those details. Otherwise they MUST be unknown.
3. Use the conversation history to understand the context. Never ask again for information already given.
4. RESPONSE must be polite, concise, directly related to the current message and in the user's language.

--- STRICT RESPONSE FORMAT ---
INTENTION: <SALUTATION|CREATE_TICKET|FOLLOWUP_TICKET|STATUS_TICKET|UPDATE_TICKET|REMIND_TICKET|DELETE_TICKET|LIST_TICKETS|FAQ|UNSUPPORTED|OTHER>
TITLE: <short title of the problem or unknown>
DESCRIPTION: <detailed description of the problem or unknown>
PRIORITY: <low|normal|high|urgent|unknown>
CATEGORY: <hardware|software|network|account|other|unknown>
URGENCY: <low|normal|high|urgent|unknown>
TICKET_ID: <ticket number if relevant or unknown>
RESPONSE: <your answer to show the user for this turn>`

const answerSystemPrompt = `You are a helpdesk assistant. Answer the user's question using only the knowledge base excerpts below.
Answer in the user's language, in a few sentences.
If the excerpts do not answer the question, reply exactly ` + NoAnswer + `.`

// PromptBuilder assembles prompts within a token budget.
type PromptBuilder struct {
	counter   *Counter
	maxTokens int
}

// NewPromptBuilder creates a builder. maxTokens <= 0 selects the default budget.
func NewPromptBuilder(counter *Counter, maxTokens int) *PromptBuilder {
	if maxTokens <= 0 {
		maxTokens = defaultMaxPromptTokens
	}
	return &PromptBuilder{counter: counter, maxTokens: maxTokens}
}

// Classify builds the intent classification and field extraction prompt.
// The oldest history turns are dropped first, then the least relevant
// documents, until the prompt fits the budget.
func (b *PromptBuilder) Classify(question string, docs []domain.Document, history []domain.Turn) []domain.ChatMessage {
	for {
		msgs := b.classify(question, docs, history)
		if b.Tokens(msgs) <= b.maxTokens {
			return msgs
		}
		switch {
		case len(history) > 0:
			history = history[1:]
		case len(docs) > 0:
			docs = docs[:len(docs)-1]
		default:
			return msgs
		}
	}
}

func (b *PromptBuilder) classify(question string, docs []domain.Document, history []domain.Turn) []domain.ChatMessage {
	msgs := []domain.ChatMessage{{Role: domain.ChatSystem, Content: classifySystemPrompt}}
	if len(docs) > 0 {
		msgs = append(msgs, domain.ChatMessage{
			Role:    domain.ChatSystem,
			Content: "Relevant knowledge base context:\n\n" + formatDocs(docs),
		})
	}
	for _, turn := range history {
		msgs = append(msgs,
			domain.ChatMessage{Role: domain.ChatUser, Content: turn.Question},
			domain.ChatMessage{Role: domain.ChatAssistant, Content: turn.Response},
		)
	}
	return append(msgs, domain.ChatMessage{Role: domain.ChatUser, Content: question})
}

// Answer builds the prompt synthesizing an answer from knowledge documents.
func (b *PromptBuilder) Answer(question string, docs []domain.Document) []domain.ChatMessage {
	for {
		msgs := []domain.ChatMessage{
			{Role: domain.ChatSystem, Content: answerSystemPrompt + "\n\n" + formatDocs(docs)},
			{Role: domain.ChatUser, Content: question},
		}
		if b.Tokens(msgs) <= b.maxTokens || len(docs) <= 1 {
			return msgs
		}
		docs = docs[:len(docs)-1]
	}
}

// Tokens counts the tokens of msgs, including a small per-message overhead.
func (b *PromptBuilder) Tokens(msgs []domain.ChatMessage) int {
	total := 0
	for _, m := range msgs {
		total += 4 + b.counter.Count(m.Content)
	}
	return total
}

func formatDocs(docs []domain.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		content := d.Content
		if r := []rune(content); len(r) > docExcerptChars {
			content = string(r[:docExcerptChars]) + "..."
		}
		parts = append(parts, fmt.Sprintf("Title: %s\nCategory: %s\nContent: %s", d.Title, d.Category, content))
	}
	return strings.Join(parts, "\n\n")
}

// IsNoAnswer reports whether a synthesized answer carries no usable content.
func IsNoAnswer(answer string) bool {
	a := strings.TrimSpace(answer)
	return a == "" || strings.Contains(strings.ToUpper(a), NoAnswer)
}
