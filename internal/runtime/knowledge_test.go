package runtime

import (
	"context"
	"strings"
	"testing"

	"github.com/tjfontaine/helpdesk-gateway/internal/storage/memory"
)

func TestImportDocuments(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	input := `[
		{"title": "Reset your password", "category": "accounts", "content": "Open the self-service portal and choose Forgot password."},
		{"title": "Configure the VPN", "content": "Install the VPN client and sign in with your corporate account."}
	]`
	n, err := ImportDocuments(ctx, store, strings.NewReader(input))
	if err != nil {
		t.Fatalf("ImportDocuments() error = %v", err)
	}
	if n != 2 {
		t.Errorf("ImportDocuments() = %d, want 2", n)
	}

	docs, err := store.SearchDocuments(ctx, "vpn client", 3)
	if err != nil {
		t.Fatalf("SearchDocuments() error = %v", err)
	}
	if len(docs) == 0 || docs[0].Title != "Configure the VPN" {
		t.Errorf("SearchDocuments() = %+v, want VPN document first", docs)
	}
}

func TestImportDocuments_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `title: x`},
		{"unknown field", `[{"title": "x", "content": "y", "body": "z"}]`},
		{"missing content", `[{"title": "x"}, {"title": "y", "content": "z"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			n, err := ImportDocuments(context.Background(), store, strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("ImportDocuments() error = nil, want error")
			}
			if n != 0 {
				t.Errorf("ImportDocuments() = %d, want 0", n)
			}
		})
	}
}
