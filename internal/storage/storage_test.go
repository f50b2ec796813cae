package storage

import (
	"reflect"
	"testing"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
)

func TestKeywords(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"How do I reset my password?", []string{"reset", "password"}},
		{"Comment réinitialiser mon mot de passe", []string{"réinitialiser", "mot", "passe"}},
		{"VPN vpn VPN", []string{"vpn"}},
		{"ok", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := Keywords(tt.query); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Keywords() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRank(t *testing.T) {
	docs := []domain.Document{
		{ID: 1, Title: "Printer", Content: "vpn mentioned in passing"},
		{ID: 2, Title: "VPN setup", Content: "configure the vpn client"},
		{ID: 3, Title: "Mail", Content: "nothing relevant"},
	}
	got := Rank(docs, []string{"vpn"}, 5)
	if len(got) != 2 {
		t.Fatalf("len(Rank()) = %d, want 2", len(got))
	}
	if got[0].ID != 2 {
		t.Errorf("Rank()[0].ID = %d, want title hit first", got[0].ID)
	}
	if got := Rank(docs, []string{"vpn"}, 1); len(got) != 1 {
		t.Errorf("limit not applied: %d", len(got))
	}
}
