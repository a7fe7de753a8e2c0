// Package model defines the records that flow through the lead resolution
// pipeline: identities, provider results, merged leads and challenge state.
package model

import (
	"strings"
	"time"
)

// Identity is the weak identity a resolution run starts from. It is not
// mutated once a run begins.
type Identity struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	City      string `json:"city"`
	State     string `json:"state,omitempty"`
	Zip       string `json:"zip,omitempty"`
}

// FullName joins first and last name with a single space.
func (id Identity) FullName() string {
	return strings.TrimSpace(strings.Join(strings.Fields(id.FirstName+" "+id.LastName), " "))
}

// HasFullName reports whether both a first and a last name are present.
func (id Identity) HasFullName() bool {
	return strings.TrimSpace(id.FirstName) != "" && strings.TrimSpace(id.LastName) != ""
}

// NewIdentity builds an Identity from a display name. The first token is
// the first name; everything after it is the last name.
func NewIdentity(displayName, city, state, zip string) Identity {
	first, last := SplitName(displayName)
	return Identity{
		FirstName: first,
		LastName:  last,
		City:      strings.TrimSpace(city),
		State:     strings.ToUpper(strings.TrimSpace(state)),
		Zip:       strings.TrimSpace(zip),
	}
}

// LeadMeta carries the lead attributes that come from the discovery
// front-end rather than from providers.
type LeadMeta struct {
	SourceID      string     `json:"source_id"`
	DisplayName   string     `json:"name"`
	LeadType      string     `json:"lead_type"`
	Location      string     `json:"location,omitempty"`
	Description   string     `json:"description,omitempty"`
	MessageSentAt *time.Time `json:"message_sent_at,omitempty"`
}
