package model

import (
	"strings"
	"time"
)

// MergedLead is the single reconciled record for one identity after all
// tiers ran. Every field except DescriptionParts is first-non-null-wins;
// DescriptionParts is append-only provenance.
type MergedLead struct {
	SourceID         string   `json:"source_id"`
	Name             string   `json:"name"`
	City             string   `json:"city"`
	State            string   `json:"state,omitempty"`
	LeadType         string   `json:"lead_type"`
	Location         string   `json:"location,omitempty"`
	Phone            string   `json:"phone,omitempty"`
	Email            string   `json:"email,omitempty"`
	PhysicalAddress  string   `json:"physical_address,omitempty"`
	DescriptionParts []string `json:"description_parts,omitempty"`
	// MessageSentAt is when the lead's originating message was sent.
	MessageSentAt *time.Time `json:"message_sent_at,omitempty"`

	// Results holds the provider results the lead was folded from.
	Results []ProviderResult `json:"results,omitempty"`
}

// Description renders the provenance notes as a single line.
func (l MergedLead) Description() string {
	return strings.Join(l.DescriptionParts, " | ")
}

// Notifiable reports whether the lead carries the phone an alert requires.
func (l MergedLead) Notifiable() bool {
	return strings.TrimSpace(l.Phone) != ""
}

// AppendNote adds a provenance note. Empty notes are ignored.
func (l *MergedLead) AppendNote(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	l.DescriptionParts = append(l.DescriptionParts, note)
}
