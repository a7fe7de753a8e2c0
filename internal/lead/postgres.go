package lead

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-resolver/internal/db"
	"github.com/sells-group/lead-resolver/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	table   string
	now     func() time.Time
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString, table string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// A single sequential worker needs few connections.
	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool, table, pool.Close), nil
}

func newPostgresStore(pool db.Pool, table string, closeFn func()) *PostgresStore {
	if table == "" {
		table = DefaultTable
	}
	return &PostgresStore{pool: pool, table: table, now: time.Now, closeFn: closeFn}
}

// Migrate creates the lead table and its indexes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	t := db.SanitizeTable(s.table)
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
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
	message_sent_at  TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`, t)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (updated_at DESC) WHERE phone IS NULL`,
		pgx.Identifier{"idx_" + s.table + "_no_phone"}.Sanitize(), t)
	if _, err := s.pool.Exec(ctx, index); err != nil {
		return eris.Wrap(err, "postgres: migrate index")
	}
	return nil
}

// Upsert implements Store.
func (s *PostgresStore) Upsert(ctx context.Context, lead model.MergedLead) error {
	if lead.SourceID == "" {
		return eris.New("postgres: upsert: empty source id")
	}
	sql, args, err := db.CoalesceUpsert(upsertConfig(s.table), sq.Dollar, values(lead, s.now(), func(t time.Time) any { return t }))
	if err != nil {
		return eris.Wrap(err, "postgres: upsert")
	}
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert lead %s", lead.SourceID)
	}
	zap.L().Debug("postgres: lead upserted",
		zap.String("source_id", lead.SourceID),
		zap.Int64("rows", tag.RowsAffected()),
	)
	return nil
}

var selectColumns = []string{
	"source_id", "name", "city", "state", "lead_type", "location", "phone",
	"email", "physical_address", "description", "message_sent_at", "updated_at",
}

// ListWithoutPhone implements Store.
func (s *PostgresStore) ListWithoutPhone(ctx context.Context, limit int) ([]Row, error) {
	q := sq.Select(selectColumns...).
		From(db.SanitizeTable(s.table)).
		Where(sq.Eq{"phone": nil}).
		OrderBy("updated_at DESC").
		PlaceholderFormat(sq.Dollar)
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list")
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads without phone")
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanPostgresRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate leads")
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, sourceID string) (*Row, error) {
	sql, args, err := sq.Select(selectColumns...).
		From(db.SanitizeTable(s.table)).
		Where(sq.Eq{"source_id": sourceID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build get")
	}
	r, err := scanPostgresRow(s.pool.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanPostgresRow(row pgx.Row) (Row, error) {
	var (
		r                                                   Row
		name, city, state, leadType, location, phone, email *string
		address, description                                *string
	)
	if err := row.Scan(&r.SourceID, &name, &city, &state, &leadType, &location, &phone,
		&email, &address, &description, &r.MessageSentAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r, err
		}
		return r, eris.Wrap(err, "postgres: scan lead")
	}
	r.Name, r.City, r.State = deref(name), deref(city), deref(state)
	r.LeadType, r.Location, r.Phone = deref(leadType), deref(location), deref(phone)
	r.Email, r.PhysicalAddress, r.Description = deref(email), deref(address), deref(description)
	return r, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
