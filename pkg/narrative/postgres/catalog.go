// Package postgres provides PostgreSQL storage for the profile template
// catalog and the synthetic pattern corpus.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/sightline-io/sightline/pkg/narrative"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// templateColumns lists columns returned by catalog SELECT queries.
var templateColumns = []string{
	"profile_name", "device_name_trigger", "profile_type",
	"movement_patterns", "social_insights", "provocative_note",
	"is_high_concern",
}

// Catalog implements narrative.Catalog using PostgreSQL.
type Catalog struct {
	db *sql.DB
}

// NewCatalog creates a PostgreSQL template catalog.
func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

// Templates loads the full template catalog in authoring order.
func (c *Catalog) Templates(ctx context.Context) ([]narrative.Template, error) {
	query, args, err := psq.Select(templateColumns...).
		From("profile_templates").
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building catalog query: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying profile templates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var templates []narrative.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating profile template rows: %w", err)
	}
	return templates, nil
}

func scanTemplate(rows *sql.Rows) (narrative.Template, error) {
	var (
		t        narrative.Template
		trigger  string
		kind     string
		movement []byte
		social   []byte
		note     sql.NullString
	)

	err := rows.Scan(&t.Name, &trigger, &kind, &movement, &social, &note, &t.HighConcern)
	if err != nil {
		return t, fmt.Errorf("scanning profile template row: %w", err)
	}

	t.Kind = narrative.Kind(kind)
	t.Trigger = narrative.ParseTrigger(trigger)
	t.ProvocativeNote = note.String

	if len(movement) > 0 {
		if err := json.Unmarshal(movement, &t.MovementPatterns); err != nil {
			return t, fmt.Errorf("decoding movement patterns for %q: %w", t.Name, err)
		}
	}
	if len(social) > 0 {
		if err := json.Unmarshal(social, &t.SocialInsights); err != nil {
			return t, fmt.Errorf("decoding social insights for %q: %w", t.Name, err)
		}
	}
	return t, nil
}

// Verify interface compliance.
var _ narrative.Catalog = (*Catalog)(nil)
