package model

// PhoneType classifies a phone line.
type PhoneType string

const (
	PhoneWireless PhoneType = "wireless"
	PhoneLandline PhoneType = "landline"
	PhoneVoIP     PhoneType = "voip"
	PhoneUnknown  PhoneType = "unknown"
)

// Phone is a single phone fact reported by a provider.
type Phone struct {
	Number             string    `json:"number"`
	Type               PhoneType `json:"type"`
	Carrier            string    `json:"carrier,omitempty"`
	LastReportedPeriod string    `json:"last_reported_period,omitempty"`
	IsPrimary          bool      `json:"is_primary,omitempty"`
}

// ProviderResult is the outcome of one adapter invocation. It is built once
// and never edited afterwards; the orchestrator folds results, it does not
// patch them.
type ProviderResult struct {
	ProviderID string    `json:"provider_id"`
	Tier       int       `json:"tier"`
	Success    bool      `json:"success"`
	Phones     []Phone   `json:"phones,omitempty"`
	Address    string    `json:"address,omitempty"`
	Email      string    `json:"email,omitempty"`
	Reason     ErrorKind `json:"reason,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// HasPhone reports whether the result carries at least one phone number.
func (r ProviderResult) HasPhone() bool {
	return len(r.Phones) > 0 && r.Phones[0].Number != ""
}

// FirstPhone returns the highest-priority phone number, or "".
func (r ProviderResult) FirstPhone() string {
	if !r.HasPhone() {
		return ""
	}
	return r.Phones[0].Number
}

// PhoneNumbers returns the numbers of all phones, in priority order.
func (r ProviderResult) PhoneNumbers() []string {
	out := make([]string, 0, len(r.Phones))
	for _, p := range r.Phones {
		if p.Number != "" {
			out = append(out, p.Number)
		}
	}
	return out
}

// Failed builds an unsuccessful result for the given provider.
func Failed(providerID string, tier int, kind ErrorKind, detail string) ProviderResult {
	return ProviderResult{
		ProviderID: providerID,
		Tier:       tier,
		Success:    false,
		Reason:     kind,
		Detail:     detail,
	}
}

// Candidate is a row surfaced by a provider's results listing. It only
// lives for the duration of a matching phase.
type Candidate struct {
	RawText        string `json:"raw_text"`
	NormalizedName string `json:"normalized_name"`
	RowIndex       int    `json:"row_index"`
	DetailURL      string `json:"detail_url,omitempty"`
}
