package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/sightline-io/sightline/pkg/narrative"
)

// unknownNamePattern matches placeholder names the scanner emits for devices
// that never advertised one. Such rows carry no narrative value.
const unknownNamePattern = "%(Unknown)%"

// patternColumns lists columns returned by pattern SELECT queries.
var patternColumns = []string{"pseudonym", "device_name", "message"}

// PatternStore implements narrative.PatternStore using PostgreSQL.
type PatternStore struct {
	db *sql.DB
}

// NewPatternStore creates a PostgreSQL synthetic pattern store.
func NewPatternStore(db *sql.DB) *PatternStore {
	return &PatternStore{db: db}
}

// Fragments returns all fragments of the given type, excluding unknown-named
// devices.
func (s *PatternStore) Fragments(ctx context.Context, typ narrative.PatternType) ([]narrative.Fragment, error) {
	qb := psq.Select(patternColumns...).
		From("synthetic_patterns").
		Where(sq.Eq{"pattern_type": string(typ)}).
		Where(sq.NotLike{"device_name": unknownNamePattern})

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building pattern query: %w", err)
	}
	return s.queryFragments(ctx, query, args)
}

// Routine returns the newest routine fragments, most recent first.
func (s *PatternStore) Routine(ctx context.Context, limit int) ([]narrative.Fragment, error) {
	qb := psq.Select(patternColumns...).
		From("synthetic_patterns").
		Where(sq.Eq{"pattern_type": string(narrative.PatternRoutine)}).
		Where(sq.NotLike{"device_name": unknownNamePattern}).
		OrderBy("created_at DESC")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building routine query: %w", err)
	}
	return s.queryFragments(ctx, query, args)
}

func (s *PatternStore) queryFragments(ctx context.Context, query string, args []any) ([]narrative.Fragment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying synthetic patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var fragments []narrative.Fragment
	for rows.Next() {
		var f narrative.Fragment
		if err := rows.Scan(&f.Pseudonym, &f.DeviceName, &f.Message); err != nil {
			return nil, fmt.Errorf("scanning synthetic pattern row: %w", err)
		}
		fragments = append(fragments, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating synthetic pattern rows: %w", err)
	}
	return fragments, nil
}

// Verify interface compliance.
var _ narrative.PatternStore = (*PatternStore)(nil)
