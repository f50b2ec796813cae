package remind

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
	"github.com/tjfontaine/helpdesk-gateway/internal/core/ports"
	"github.com/tjfontaine/helpdesk-gateway/internal/glpi"
	"github.com/tjfontaine/helpdesk-gateway/internal/glpi/glpitest"
	"github.com/tjfontaine/helpdesk-gateway/internal/policy"
)

var admin = domain.NewIdentity("helpdesk-bot@example.com", "Reminders", "admin")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweeper_Stale(t *testing.T) {
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	s := New(nil, admin, time.Hour, WithClock(func() time.Time { return now }))

	tests := []struct {
		name   string
		ticket domain.TicketSummary
		want   bool
	}{
		{"new and idle", domain.TicketSummary{Status: 1, UpdatedAt: now.Add(-2 * time.Hour)}, true},
		{"planned and idle", domain.TicketSummary{Status: 3, UpdatedAt: now.Add(-time.Hour)}, true},
		{"recently updated", domain.TicketSummary{Status: 2, UpdatedAt: now.Add(-30 * time.Minute)}, false},
		{"solved", domain.TicketSummary{Status: 5, UpdatedAt: now.Add(-48 * time.Hour)}, false},
		{"closed", domain.TicketSummary{Status: 6, UpdatedAt: now.Add(-48 * time.Hour)}, false},
		{"unknown modification time", domain.TicketSummary{Status: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Stale(tt.ticket); got != tt.want {
				t.Errorf("Stale() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_DefaultStaleAfter(t *testing.T) {
	s := New(nil, admin, 0)
	if s.staleAfter != DefaultStaleAfter {
		t.Errorf("staleAfter = %v, want %v", s.staleAfter, DefaultStaleAfter)
	}
}

func TestSweeper_RunAgainstRemote(t *testing.T) {
	srv := glpitest.NewServer()
	defer srv.Close()

	engine, err := policy.NewEngine(context.Background(), "")
	if err != nil {
		t.Fatalf("policy.NewEngine() error = %v", err)
	}
	gw := glpi.New(glpi.Config{
		BaseURL:   srv.URL,
		AppToken:  glpitest.AppToken,
		UserToken: glpitest.UserToken,
		Timeout:   5 * time.Second,
	}, engine, glpi.WithGatewayLogger(discardLogger()))
	defer gw.Close(context.Background())

	now := time.Now()
	stale := srv.AddTicket("Printer jam", "The printer on floor 2 is jammed.", 1, now.Add(-3*time.Hour))
	fresh := srv.AddTicket("New laptop", "Requesting a new laptop.", 2, now.Add(-10*time.Minute))
	solved := srv.AddTicket("Password reset", "Reset done.", 5, now.Add(-72*time.Hour))

	s := New(gw, admin, 2*time.Hour, WithLogger(discardLogger()), WithClock(func() time.Time { return now }))
	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Checked != 3 || res.Stale != 1 {
		t.Errorf("checked/stale = %d/%d, want 3/1", res.Checked, res.Stale)
	}
	if len(res.Reminded) != 1 || res.Reminded[0] != stale {
		t.Errorf("reminded = %v, want [%d]", res.Reminded, stale)
	}
	if len(res.Failed) != 0 {
		t.Errorf("failed = %v, want none", res.Failed)
	}

	followups := srv.Followups(stale)
	if len(followups) != 1 || !strings.Contains(followups[0].Content, glpi.ReminderContent) {
		t.Errorf("stale ticket followups = %+v, want one reminder", followups)
	}
	for _, id := range []int{fresh, solved} {
		if got := srv.Followups(id); len(got) != 0 {
			t.Errorf("ticket %d followups = %+v, want none", id, got)
		}
	}
}

type flakyTickets struct {
	ports.TicketGateway
	summaries []domain.TicketSummary
	failID    int
	reminded  []int
}

func (f *flakyTickets) ListTickets(context.Context, domain.Identity) ([]domain.TicketSummary, error) {
	return f.summaries, nil
}

func (f *flakyTickets) RemindTicket(_ context.Context, id int, _ domain.Identity) (*domain.FollowupRef, error) {
	if id == f.failID {
		return nil, errors.New("remote unavailable")
	}
	f.reminded = append(f.reminded, id)
	return &domain.FollowupRef{ID: 100 + id}, nil
}

func TestSweeper_RunContinuesAfterFailure(t *testing.T) {
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	old := now.Add(-5 * time.Hour)
	tickets := &flakyTickets{
		summaries: []domain.TicketSummary{
			{ID: 1, Status: 1, UpdatedAt: old},
			{ID: 2, Status: 2, UpdatedAt: old},
			{ID: 3, Status: 1, UpdatedAt: old},
		},
		failID: 2,
	}

	s := New(tickets, admin, time.Hour, WithLogger(discardLogger()), WithClock(func() time.Time { return now }))
	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Reminded) != 2 || res.Reminded[0] != 1 || res.Reminded[1] != 3 {
		t.Errorf("reminded = %v, want [1 3]", res.Reminded)
	}
	if len(res.Failed) != 1 || res.Failed[0] != 2 {
		t.Errorf("failed = %v, want [2]", res.Failed)
	}
}

type failingList struct {
	ports.TicketGateway
}

func (failingList) ListTickets(context.Context, domain.Identity) ([]domain.TicketSummary, error) {
	return nil, errors.New("boom")
}

func TestSweeper_RunListError(t *testing.T) {
	s := New(failingList{}, admin, time.Hour, WithLogger(discardLogger()))
	if _, err := s.Run(context.Background()); err == nil {
		t.Fatal("Run() error = nil, want list failure")
	}
}
