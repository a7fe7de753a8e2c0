package db

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig defines a single-row coalescing upsert.
type UpsertConfig struct {
	Table        string   // target table (e.g., "leads" or "public.leads")
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
	// Overwrite lists columns that always take the incoming value, such as
	// updated_at. Every other non-key column keeps its stored value when
	// the incoming one is NULL.
	Overwrite []string
}

// CoalesceUpsert builds one INSERT ... ON CONFLICT ... DO UPDATE statement
// where each non-key column is set to COALESCE(EXCLUDED.col, table.col).
// A later NULL therefore never erases a stored value, and the whole
// merge happens in a single statement.
func CoalesceUpsert(cfg UpsertConfig, format sq.PlaceholderFormat, values []any) (string, []any, error) {
	if len(cfg.Columns) == 0 {
		return "", nil, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return "", nil, eris.New("db: upsert: no conflict keys specified")
	}
	if len(values) != len(cfg.Columns) {
		return "", nil, eris.Errorf("db: upsert: %d values for %d columns", len(values), len(cfg.Columns))
	}

	skip := make(map[string]bool, len(cfg.ConflictKeys))
	for _, k := range cfg.ConflictKeys {
		skip[k] = true
	}
	overwrite := make(map[string]bool, len(cfg.Overwrite))
	for _, c := range cfg.Overwrite {
		overwrite[c] = true
	}

	table := SanitizeTable(cfg.Table)
	var setClauses []string
	for _, col := range cfg.Columns {
		if skip[col] {
			continue
		}
		ident := pgx.Identifier{col}.Sanitize()
		if overwrite[col] {
			setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", ident, ident))
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = COALESCE(EXCLUDED.%s, %s.%s)", ident, ident, table, ident))
	}

	quoted := make([]string, len(cfg.Columns))
	for i, c := range cfg.Columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}

	suffix := fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", QuoteAndJoin(cfg.ConflictKeys))
	if len(setClauses) > 0 {
		suffix = fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", QuoteAndJoin(cfg.ConflictKeys), strings.Join(setClauses, ", "))
	}

	sql, args, err := sq.Insert(table).
		Columns(quoted...).
		Values(values...).
		Suffix(suffix).
		PlaceholderFormat(format).
		ToSql()
	if err != nil {
		return "", nil, eris.Wrapf(err, "db: upsert: build for %s", cfg.Table)
	}
	return sql, args, nil
}

// SanitizeTable handles schema-qualified table names like "public.leads".
func SanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// QuoteAndJoin quotes each column name and joins with commas.
func QuoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
