// Package dialect provides the SQL differences between the supported databases.
package dialect

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect represents a SQL database dialect.
type Dialect interface {
	// Name returns the dialect name (e.g., "sqlite", "postgres")
	Name() string

	// DriverName returns the database/sql driver name to use
	DriverName() string

	// Rebind converts ? placeholders to the dialect's format.
	Rebind(query string) string

	// AutoIncrementClause returns the clause for auto-increment primary keys
	AutoIncrementClause() string

	// InsertIgnoreClause returns the suffix making an INSERT a no-op when
	// conflictColumn already holds the value.
	InsertIgnoreClause(conflictColumn string) string

	// PragmaStatements returns statements run once per connection pool.
	PragmaStatements() []string
}

// DialectType represents supported database types
type DialectType string

const (
	SQLite   DialectType = "sqlite"
	Postgres DialectType = "postgres"
)

// New creates a new Dialect based on the dialect type
func New(dialectType DialectType) (Dialect, error) {
	switch dialectType {
	case SQLite:
		return sqliteDialect{}, nil
	case Postgres:
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialectType)
	}
}

// FromDriverName returns the dialect for a given driver name
func FromDriverName(driverName string) (Dialect, error) {
	switch strings.ToLower(driverName) {
	case "sqlite", "sqlite3", "":
		return sqliteDialect{}, nil
	case "postgres", "pgx":
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driverName)
	}
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string               { return "sqlite" }
func (sqliteDialect) DriverName() string         { return "sqlite" }
func (sqliteDialect) Rebind(query string) string { return query }

func (sqliteDialect) AutoIncrementClause() string {
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (sqliteDialect) InsertIgnoreClause(conflictColumn string) string {
	return fmt.Sprintf("ON CONFLICT(%s) DO NOTHING", conflictColumn)
}

func (sqliteDialect) PragmaStatements() []string {
	return []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
}

// postgresDialect expects the embedding program to register a "pgx" driver.
type postgresDialect struct{}

func (postgresDialect) Name() string       { return "postgres" }
func (postgresDialect) DriverName() string { return "pgx" }

func (postgresDialect) Rebind(query string) string {
	var b strings.Builder
	idx := 1
	for _, ch := range query {
		if ch == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(idx))
			idx++
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (postgresDialect) AutoIncrementClause() string {
	return "BIGSERIAL PRIMARY KEY"
}

func (postgresDialect) InsertIgnoreClause(conflictColumn string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", conflictColumn)
}

func (postgresDialect) PragmaStatements() []string {
	return nil
}
