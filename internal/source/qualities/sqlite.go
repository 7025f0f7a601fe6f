// Package qualities reads revision quality scores from a SQLite database.
package qualities

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"slices"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

// DefaultChunk keeps IN lists under SQLite's host parameter limit.
const DefaultChunk = 900

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store reads a table with columns rev_id and weighted_sum.
type Store struct {
	db    *sql.DB
	table string
	chunk int
}

// Open opens the database at path read-only.
func Open(path, table string, chunk int) (*Store, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if chunk < 1 {
		chunk = DefaultChunk
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open qualities database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open qualities database %s: %w", path, err)
	}
	return &Store{db: db, table: table, chunk: chunk}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Scores returns the score of every id present in the table.
func (s *Store) Scores(ctx context.Context, ids []int64) (map[int64]float64, error) {
	out := make(map[int64]float64, len(ids))
	for chunk := range slices.Chunk(ids, s.chunk) {
		if err := s.scoreChunk(ctx, chunk, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) scoreChunk(ctx context.Context, ids []int64, out map[int64]float64) error {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	q := fmt.Sprintf("SELECT rev_id, weighted_sum FROM %s WHERE rev_id IN (%s)", s.table, placeholders)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("failed to query qualities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return fmt.Errorf("failed to scan quality row: %w", err)
		}
		out[id] = score
	}
	return rows.Err()
}
