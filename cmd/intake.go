package main

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-resolver/internal/alert"
	"github.com/sells-group/lead-resolver/internal/model"
)

// leadRequest is one lead handed to the resolver, from flags or from the
// intake API.
type leadRequest struct {
	SourceID      string     `json:"source_id"`
	Name          string     `json:"name"`
	City          string     `json:"city"`
	State         string     `json:"state"`
	Zip           string     `json:"zip"`
	LeadType      string     `json:"lead_type"`
	Location      string     `json:"location"`
	Description   string     `json:"description"`
	MessageSentAt *time.Time `json:"message_sent_at"`
}

// intakeDefaults fills fields a request may omit.
type intakeDefaults struct {
	State    string
	LeadType string
}

// normalize validates r and returns the identity and metadata to resolve.
// A missing source id gets a fresh uuid.
func (r leadRequest) normalize(d intakeDefaults) (model.Identity, model.LeadMeta, error) {
	name := strings.Join(strings.Fields(r.Name), " ")
	city := strings.TrimSpace(r.City)
	if name == "" {
		return model.Identity{}, model.LeadMeta{}, eris.New("name is required")
	}
	if city == "" {
		return model.Identity{}, model.LeadMeta{}, eris.New("city is required")
	}

	state := r.State
	if strings.TrimSpace(state) == "" {
		state = d.State
	}
	leadType := r.LeadType
	if strings.TrimSpace(leadType) == "" {
		leadType = d.LeadType
	}
	sourceID := strings.TrimSpace(r.SourceID)
	if sourceID == "" {
		sourceID = uuid.NewString()
	}

	id := model.NewIdentity(name, city, state, r.Zip)
	meta := model.LeadMeta{
		SourceID:      sourceID,
		DisplayName:   name,
		LeadType:      alert.DefaultCategories().Canonical(leadType),
		Location:      strings.TrimSpace(r.Location),
		Description:   strings.TrimSpace(r.Description),
		MessageSentAt: r.MessageSentAt,
	}
	return id, meta, nil
}

func defaultsFromConfig() intakeDefaults {
	if cfg == nil {
		return intakeDefaults{}
	}
	return intakeDefaults{State: cfg.Pipeline.DefaultState, LeadType: cfg.Pipeline.DefaultLeadType}
}
