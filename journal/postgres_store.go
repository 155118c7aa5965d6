package journal

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/liamcoop/hedgerules/rules"
)

// PostgresStore implements Store backed by PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a journal on the executions table
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Record inserts an entry
func (s *PostgresStore) Record(ctx context.Context, e *Entry) error {
	stamp(e)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (id, recorded_at, entity, ruleset, rule, action, status, reference, error_code, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.Time, e.Entity, e.RuleSet, e.Rule, e.Action, string(e.Status),
		e.Reference, e.ErrorCode, e.Message)

	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}

	return nil
}

// List returns entries newest first
func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recorded_at, entity, ruleset, rule, action, status, reference, error_code, message
		FROM executions
		WHERE $1 = '' OR entity = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`, f.Entity, f.limit())
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var status string
		if err := rows.Scan(&e.ID, &e.Time, &e.Entity, &e.RuleSet, &e.Rule, &e.Action,
			&status, &e.Reference, &e.ErrorCode, &e.Message); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		e.Status = rules.Status(status)
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return entries, nil
}
