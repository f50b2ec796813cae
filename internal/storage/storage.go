// Package storage holds the draft, event and knowledge stores shared by the
// memory and SQL backends.
package storage

import (
	"sort"
	"strings"
	"unicode"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
	"github.com/tjfontaine/helpdesk-gateway/internal/core/ports"
)

// Re-export storage interfaces from core/ports.
type (
	DraftStore        = ports.DraftStore
	EventStore        = ports.EventStore
	KnowledgeStore    = ports.KnowledgeStore
	KnowledgeSearcher = ports.KnowledgeSearcher
	Store             = ports.Store
)

const (
	DefaultEventLimit  = 50
	DefaultSearchLimit = 3
	minKeywordLength   = 3
)

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "how": true, "what": true,
	"can": true, "does": true, "not": true, "les": true, "des": true, "une": true,
	"pour": true, "avec": true, "est": true, "que": true, "qui": true, "dans": true,
	"comment": true, "mon": true, "mes": true, "pas": true,
}

// Keywords splits a question into lowercase search terms, dropping short
// words and stop words. Duplicates are removed and order is preserved.
func Keywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	var terms []string
	for _, f := range fields {
		if len([]rune(f)) < minKeywordLength || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

// Score counts term hits in doc. Title hits weigh double.
func Score(doc domain.Document, terms []string) int {
	title := strings.ToLower(doc.Title)
	body := strings.ToLower(doc.Content + " " + doc.Category)
	score := 0
	for _, t := range terms {
		if strings.Contains(title, t) {
			score += 2
		}
		if strings.Contains(body, t) {
			score++
		}
	}
	return score
}

// Rank orders docs by descending score and returns at most limit
// documents with a positive score.
func Rank(docs []domain.Document, terms []string, limit int) []domain.Document {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	type scored struct {
		doc   domain.Document
		score int
	}
	var hits []scored
	for _, d := range docs {
		if s := Score(d, terms); s > 0 {
			hits = append(hits, scored{doc: d, score: s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].doc.ID < hits[j].doc.ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]domain.Document, len(hits))
	for i, h := range hits {
		out[i] = h.doc
	}
	return out
}
