// Package lead persists merged leads. Every store upserts by source id in
// one statement and never lets a NULL overwrite a known value.
package lead

import (
	"context"
	"strings"
	"time"

	"github.com/sells-group/lead-resolver/internal/db"
	"github.com/sells-group/lead-resolver/internal/model"
)

// DefaultTable is the lead table name.
const DefaultTable = "leads"

// Store persists merged leads.
type Store interface {
	// Upsert inserts lead or fills gaps in the stored row with its
	// non-empty fields.
	Upsert(ctx context.Context, lead model.MergedLead) error
	// ListWithoutPhone returns up to limit stored leads that still have
	// no phone, most recently updated first.
	ListWithoutPhone(ctx context.Context, limit int) ([]Row, error)
	// Get returns the stored row for sourceID, or nil if absent.
	Get(ctx context.Context, sourceID string) (*Row, error)
	Migrate(ctx context.Context) error
	Close() error
}

// Row is a persisted lead.
type Row struct {
	SourceID        string
	Name            string
	City            string
	State           string
	LeadType        string
	Location        string
	Phone           string
	Email           string
	PhysicalAddress string
	Description     string
	MessageSentAt   *time.Time
	UpdatedAt       time.Time
}

// Identity rebuilds the resolution input from a stored row.
func (r Row) Identity() model.Identity {
	return model.NewIdentity(r.Name, r.City, r.State, "")
}

// Meta rebuilds the lead metadata from a stored row. The stored
// description leads the notes of a re-run so it is never replaced.
func (r Row) Meta() model.LeadMeta {
	return model.LeadMeta{
		SourceID:      r.SourceID,
		DisplayName:   r.Name,
		LeadType:      r.LeadType,
		Location:      r.Location,
		Description:   r.Description,
		MessageSentAt: r.MessageSentAt,
	}
}

var columns = []string{
	"source_id",
	"name",
	"city",
	"state",
	"lead_type",
	"location",
	"phone",
	"email",
	"physical_address",
	"description",
	"message_sent_at",
	"updated_at",
}

func upsertConfig(table string) db.UpsertConfig {
	return db.UpsertConfig{
		Table:        table,
		Columns:      columns,
		ConflictKeys: []string{"source_id"},
		Overwrite:    []string{"updated_at"},
	}
}

// values maps lead onto columns. Empty text becomes NULL so the
// coalescing update keeps whatever is stored. ts renders times for the
// target driver.
func values(lead model.MergedLead, now time.Time, ts func(time.Time) any) []any {
	var sent any
	if lead.MessageSentAt != nil {
		sent = ts(lead.MessageSentAt.UTC())
	}
	return []any{
		lead.SourceID,
		nullable(lead.Name),
		nullable(lead.City),
		nullable(lead.State),
		nullable(lead.LeadType),
		nullable(lead.Location),
		nullable(lead.Phone),
		nullable(lead.Email),
		nullable(lead.PhysicalAddress),
		nullable(lead.Description()),
		sent,
		ts(now.UTC()),
	}
}

func nullable(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
