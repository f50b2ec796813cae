// Package sqldb implements the storage interfaces on top of database/sql
// through sqlx, for any supported dialect.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
	"github.com/tjfontaine/helpdesk-gateway/internal/storage"
	"github.com/tjfontaine/helpdesk-gateway/internal/storage/dialect"
)

const maxSearchCandidates = 200

// Store is a SQL implementation of storage.Store.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
	now     func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Config holds database connection configuration
type Config struct {
	Driver string // Driver name: sqlite, postgres
	DSN    string // Data source name / connection string
}

// New creates a new SQL store with the specified configuration.
func New(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, stmt := range d.PragmaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db, dialect: d, now: time.Now}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// NewSQLite creates a new SQLite store.
func NewSQLite(dsn string) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: dsn})
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS drafts (
user_key TEXT PRIMARY KEY,
next_expected TEXT NOT NULL,
fields TEXT NOT NULL,
history TEXT NOT NULL,
pending_question TEXT NOT NULL DEFAULT '',
version INTEGER NOT NULL,
created_at TIMESTAMP NOT NULL,
updated_at TIMESTAMP NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS intake_events (
id TEXT PRIMARY KEY,
user_key TEXT NOT NULL,
type TEXT NOT NULL,
ticket_id INTEGER NOT NULL DEFAULT 0,
request_id TEXT NOT NULL DEFAULT '',
detail TEXT,
created_at TIMESTAMP NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS kb_documents (
id ` + s.dialect.AutoIncrementClause() + `,
title TEXT NOT NULL,
category TEXT NOT NULL DEFAULT '',
content TEXT NOT NULL,
created_at TIMESTAMP NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_intake_events_user ON intake_events(user_key, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_drafts_updated ON drafts(updated_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

type draftRow struct {
	UserKey         string    `db:"user_key"`
	NextExpected    string    `db:"next_expected"`
	Fields          string    `db:"fields"`
	History         string    `db:"history"`
	PendingQuestion string    `db:"pending_question"`
	Version         int64     `db:"version"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (s *Store) LoadDraft(ctx context.Context, userKey string) (*domain.Draft, error) {
	query := s.dialect.Rebind(`SELECT user_key, next_expected, fields, history, pending_question, version, created_at, updated_at
	          FROM drafts WHERE user_key = ?`)

	var row draftRow
	err := s.db.GetContext(ctx, &row, query, userKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "no draft for "+userKey).WithOp("load_draft")
	}
	if err != nil {
		return nil, domain.NewError(domain.KindUnavailable, "failed to load draft").WithOp("load_draft").WithCause(err)
	}

	next, err := domain.ParseExpectation(row.NextExpected)
	if err != nil {
		return nil, fmt.Errorf("failed to decode draft state: %w", err)
	}
	d := &domain.Draft{
		UserKey:         row.UserKey,
		Next:            next,
		PendingQuestion: row.PendingQuestion,
		Version:         row.Version,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(row.Fields), &d.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft fields: %w", err)
	}
	if err := json.Unmarshal([]byte(row.History), &d.History); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft history: %w", err)
	}
	if d.Fields == nil {
		d.Fields = make(map[domain.Field]string)
	}
	return d, nil
}

func (s *Store) SaveDraft(ctx context.Context, d *domain.Draft) error {
	fields, err := json.Marshal(d.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal draft fields: %w", err)
	}
	history, err := json.Marshal(d.History)
	if err != nil {
		return fmt.Errorf("failed to marshal draft history: %w", err)
	}

	now := s.now()
	created := d.CreatedAt
	if created.IsZero() {
		created = now
	}

	var res sql.Result
	if d.Version == 0 {
		query := s.dialect.Rebind(`INSERT INTO drafts (user_key, next_expected, fields, history, pending_question, version, created_at, updated_at)
		          VALUES (?, ?, ?, ?, ?, 1, ?, ?) ` + s.dialect.InsertIgnoreClause("user_key"))
		res, err = s.db.ExecContext(ctx, query,
			d.UserKey, d.Next.String(), string(fields), string(history), d.PendingQuestion, created, now)
	} else {
		query := s.dialect.Rebind(`UPDATE drafts SET next_expected = ?, fields = ?, history = ?, pending_question = ?,
		          version = version + 1, updated_at = ?
		          WHERE user_key = ? AND version = ?`)
		res, err = s.db.ExecContext(ctx, query,
			d.Next.String(), string(fields), string(history), d.PendingQuestion, now, d.UserKey, d.Version)
	}
	if err != nil {
		return domain.NewError(domain.KindUnavailable, "failed to save draft").WithOp("save_draft").WithCause(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.NewError(domain.KindConflict, "draft was modified concurrently").WithOp("save_draft")
	}

	d.Version++
	d.CreatedAt = created
	d.UpdatedAt = now
	return nil
}

func (s *Store) DeleteDraft(ctx context.Context, userKey string) error {
	query := s.dialect.Rebind(`DELETE FROM drafts WHERE user_key = ?`)
	if _, err := s.db.ExecContext(ctx, query, userKey); err != nil {
		return domain.NewError(domain.KindUnavailable, "failed to delete draft").WithOp("delete_draft").WithCause(err)
	}
	return nil
}

type eventRow struct {
	ID        string         `db:"id"`
	UserKey   string         `db:"user_key"`
	Type      string         `db:"type"`
	TicketID  int            `db:"ticket_id"`
	RequestID string         `db:"request_id"`
	Detail    sql.NullString `db:"detail"`
	CreatedAt time.Time      `db:"created_at"`
}

func (s *Store) AppendEvent(ctx context.Context, evt *domain.Event) error {
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.now()
	}
	var detail sql.NullString
	if len(evt.Detail) > 0 {
		b, err := json.Marshal(evt.Detail)
		if err != nil {
			return fmt.Errorf("failed to marshal event detail: %w", err)
		}
		detail = sql.NullString{String: string(b), Valid: true}
	}

	query := s.dialect.Rebind(`INSERT INTO intake_events (id, user_key, type, ticket_id, request_id, detail, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query,
		evt.ID, evt.UserKey, string(evt.Type), evt.TicketID, evt.RequestID, detail, evt.CreatedAt); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, userKey string, limit int) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = storage.DefaultEventLimit
	}

	query := `SELECT id, user_key, type, ticket_id, request_id, detail, created_at FROM intake_events`
	args := []any{}
	if userKey != "" {
		query += ` WHERE user_key = ?`
		args = append(args, userKey)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, s.dialect.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]*domain.Event, 0, len(rows))
	for _, r := range rows {
		evt := &domain.Event{
			ID:        r.ID,
			UserKey:   r.UserKey,
			Type:      domain.EventType(r.Type),
			TicketID:  r.TicketID,
			RequestID: r.RequestID,
			CreatedAt: r.CreatedAt,
		}
		if r.Detail.Valid && r.Detail.String != "" {
			if err := json.Unmarshal([]byte(r.Detail.String), &evt.Detail); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event detail: %w", err)
			}
		}
		events = append(events, evt)
	}
	return events, nil
}

func (s *Store) AddDocument(ctx context.Context, doc *domain.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now()
	}
	query := s.dialect.Rebind(`INSERT INTO kb_documents (title, category, content, created_at) VALUES (?, ?, ?, ?) RETURNING id`)
	if err := s.db.QueryRowxContext(ctx, query, doc.Title, doc.Category, doc.Content, doc.CreatedAt).Scan(&doc.ID); err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}
	return nil
}

// SearchDocuments preselects documents containing any keyword with LIKE and
// ranks the candidates by keyword hits.
func (s *Store) SearchDocuments(ctx context.Context, query string, limit int) ([]domain.Document, error) {
	terms := storage.Keywords(query)
	if len(terms) == 0 {
		return nil, nil
	}

	clauses := make([]string, 0, len(terms))
	args := make([]any, 0, len(terms)*3+1)
	for _, t := range terms {
		clauses = append(clauses, `(LOWER(title) LIKE ? OR LOWER(content) LIKE ? OR LOWER(category) LIKE ?)`)
		like := "%" + t + "%"
		args = append(args, like, like, like)
	}
	args = append(args, maxSearchCandidates)

	q := s.dialect.Rebind(`SELECT id, title, category, content, created_at FROM kb_documents WHERE ` +
		strings.Join(clauses, " OR ") + ` ORDER BY id LIMIT ?`)

	var docs []domain.Document
	if err := s.db.SelectContext(ctx, &docs, q, args...); err != nil {
		return nil, domain.NewError(domain.KindUnavailable, "knowledge search failed").WithOp("search_documents").WithCause(err)
	}
	return storage.Rank(docs, terms, limit), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
