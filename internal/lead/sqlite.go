package lead

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-resolver/internal/db"
	"github.com/sells-group/lead-resolver/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn, table string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if table == "" {
		table = DefaultTable
	}
	return &SQLiteStore{db: conn, table: table, now: time.Now}, nil
}

// Migrate creates the lead table.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	t := db.SanitizeTable(s.table)
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	source_id        TEXT PRIMARY KEY,
	name             TEXT,
	city             TEXT,
	state            TEXT,
	lead_type        TEXT,
	location         TEXT,
	phone            TEXT,
	email            TEXT,
	physical_address TEXT,
	description      TEXT,
	message_sent_at  TEXT,
	created_at       TEXT NOT NULL DEFAULT (strftime('%%Y-%%m-%%dT%%H:%%M:%%fZ', 'now')),
	updated_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS %s ON %s (updated_at);
`, t, db.QuoteAndJoin([]string{"idx_" + s.table + "_updated_at"}), t)
	_, err := s.db.ExecContext(ctx, ddl)
	return eris.Wrap(err, "sqlite: migrate")
}

// Upsert implements Store.
func (s *SQLiteStore) Upsert(ctx context.Context, lead model.MergedLead) error {
	if lead.SourceID == "" {
		return eris.New("sqlite: upsert: empty source id")
	}
	query, args, err := db.CoalesceUpsert(upsertConfig(s.table), sq.Question, values(lead, s.now(), sqliteTime))
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert")
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return eris.Wrapf(err, "sqlite: upsert lead %s", lead.SourceID)
	}
	return nil
}

// Times are stored as fixed-width UTC text so they sort lexically.
func sqliteTime(t time.Time) any {
	return t.UTC().Format(sqliteTimeLayout)
}

const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// ListWithoutPhone implements Store.
func (s *SQLiteStore) ListWithoutPhone(ctx context.Context, limit int) ([]Row, error) {
	q := sq.Select(selectColumns...).
		From(db.SanitizeTable(s.table)).
		Where(sq.Eq{"phone": nil}).
		OrderBy("updated_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads without phone")
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanSQLiteRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate leads")
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, sourceID string) (*Row, error) {
	query, args, err := sq.Select(selectColumns...).
		From(db.SanitizeTable(s.table)).
		Where(sq.Eq{"source_id": sourceID}).
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build get")
	}
	r, err := scanSQLiteRow(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRow(row scanner) (Row, error) {
	var (
		r                                                   Row
		name, city, state, leadType, location, phone, email sql.NullString
		address, description, sent                          sql.NullString
		updated                                             string
	)
	if err := row.Scan(&r.SourceID, &name, &city, &state, &leadType, &location, &phone,
		&email, &address, &description, &sent, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, eris.Wrap(err, "sqlite: scan lead")
	}
	r.Name, r.City, r.State = name.String, city.String, state.String
	r.LeadType, r.Location, r.Phone = leadType.String, location.String, phone.String
	r.Email, r.PhysicalAddress, r.Description = email.String, address.String, description.String
	if sent.Valid {
		t, err := time.Parse(sqliteTimeLayout, sent.String)
		if err != nil {
			return r, eris.Wrapf(err, "sqlite: parse message_sent_at for %s", r.SourceID)
		}
		r.MessageSentAt = &t
	}
	t, err := time.Parse(sqliteTimeLayout, updated)
	if err != nil {
		return r, eris.Wrapf(err, "sqlite: parse updated_at for %s", r.SourceID)
	}
	r.UpdatedAt = t
	return r, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
