package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
	"github.com/tjfontaine/helpdesk-gateway/internal/extract"
)

func TestClient_Complete(t *testing.T) {
	var got chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"INTENTION: FAQ"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewClient("sk-test", time.Second, WithBaseURL(srv.URL+"/"))
	out, err := c.Complete(context.Background(), []domain.ChatMessage{
		{Role: domain.ChatSystem, Content: "rules"},
		{Role: domain.ChatUser, Content: "hello"},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != "INTENTION: FAQ" {
		t.Errorf("Complete() = %q", out)
	}
	if got.Model != defaultModel || len(got.Messages) != 2 || got.Messages[1].Role != "user" {
		t.Errorf("request = %+v", got)
	}
}

func TestClient_CompleteErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	c := NewClient("", time.Second, WithBaseURL(srv.URL))
	_, err := c.Complete(context.Background(), []domain.ChatMessage{{Role: domain.ChatUser, Content: "x"}})
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("error = %v, want unavailable", err)
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error = %v, want API message", err)
	}
}

func TestCounter_Count(t *testing.T) {
	c := NewCounter("gpt-4o-mini")
	if n := c.Count("hello world"); n <= 0 || n > 5 {
		t.Errorf("Count() = %d, want a small positive number", n)
	}
	unknown := NewCounter("some-local-model")
	if n := unknown.Count("hello world"); n <= 0 {
		t.Errorf("Count() with fallback = %d", n)
	}
}

func TestPromptBuilder_Classify(t *testing.T) {
	b := NewPromptBuilder(NewCounter("gpt-4o-mini"), 0)
	docs := []domain.Document{{Title: "VPN", Category: "network", Content: strings.Repeat("a", 900)}}
	history := []domain.Turn{{Question: "hi", Response: "hello"}}

	msgs := b.Classify("my vpn is down", docs, history)
	if len(msgs) != 5 {
		t.Fatalf("len(msgs) = %d, want 5", len(msgs))
	}
	if msgs[0].Role != domain.ChatSystem || !strings.Contains(msgs[0].Content, "INTENTION:") {
		t.Errorf("first message is not the rules prompt")
	}
	if strings.Count(msgs[1].Content, "a") > docExcerptChars+10 {
		t.Errorf("document excerpt not truncated")
	}
	if msgs[2].Content != "hi" || msgs[3].Role != domain.ChatAssistant {
		t.Errorf("history not rendered as turns: %+v", msgs[2:4])
	}
	if last := msgs[len(msgs)-1]; last.Role != domain.ChatUser || last.Content != "my vpn is down" {
		t.Errorf("last message = %+v", last)
	}
}

func TestPromptBuilder_ClassifyTrimsOldestHistory(t *testing.T) {
	counter := NewCounter("gpt-4o-mini")
	base := NewPromptBuilder(counter, 100000).Classify("question", nil, nil)
	budget := NewPromptBuilder(counter, 100000).Tokens(base) + 30

	history := []domain.Turn{
		{Question: "oldest " + strings.Repeat("word ", 50), Response: "r1"},
		{Question: "newest", Response: "r2"},
	}
	msgs := NewPromptBuilder(counter, budget).Classify("question", nil, history)
	for _, m := range msgs {
		if strings.HasPrefix(m.Content, "oldest") {
			t.Fatalf("oldest turn kept despite budget")
		}
	}
	found := false
	for _, m := range msgs {
		if m.Content == "newest" {
			found = true
		}
	}
	if !found {
		t.Errorf("newest turn dropped")
	}
}

func TestIsNoAnswer(t *testing.T) {
	for in, want := range map[string]bool{
		"":                         true,
		"NO_ANSWER":                true,
		"  no_answer.":             true,
		"Restart the VPN client.": false,
	} {
		if got := IsNoAnswer(in); got != want {
			t.Errorf("IsNoAnswer(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMockClient_ScriptThenHeuristic(t *testing.T) {
	m := NewMockClient("INTENTION: FAQ\nRESPONSE: scripted")
	ctx := context.Background()
	user := func(s string) []domain.ChatMessage {
		return []domain.ChatMessage{{Role: domain.ChatSystem, Content: "rules"}, {Role: domain.ChatUser, Content: s}}
	}

	out, _ := m.Complete(ctx, user("anything"))
	if !strings.Contains(out, "scripted") {
		t.Fatalf("first reply = %q, want scripted", out)
	}

	out, _ = m.Complete(ctx, user("Bonjour !"))
	if r := extract.Parse(out); r.Intent != domain.IntentSalutation {
		t.Errorf("greeting intent = %q", r.Intent)
	}

	out, _ = m.Complete(ctx, user("My printer is broken. It shows error 42"))
	r := extract.Parse(out)
	if r.Intent != domain.IntentCreateTicket {
		t.Errorf("problem intent = %q", r.Intent)
	}
	if r.Value(extract.KeyTitle) != "My printer is broken" {
		t.Errorf("title = %q", r.Value(extract.KeyTitle))
	}

	if len(m.Calls()) != 3 {
		t.Errorf("Calls() = %d, want 3", len(m.Calls()))
	}

	m.FailWith(domain.NewError(domain.KindUnavailable, "down"))
	if _, err := m.Complete(ctx, user("x")); !errors.Is(err, domain.ErrUnavailable) {
		t.Errorf("error = %v, want unavailable", err)
	}
}
