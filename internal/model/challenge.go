package model

// ChallengeStatus is the lifecycle state of an anti-automation challenge.
type ChallengeStatus string

const (
	ChallengeDetected  ChallengeStatus = "detected"
	ChallengeSubmitted ChallengeStatus = "submitted"
	ChallengePolling   ChallengeStatus = "polling"
	ChallengeSolved    ChallengeStatus = "solved"
	ChallengeTimedOut  ChallengeStatus = "timed_out"
	ChallengeFailed    ChallengeStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s ChallengeStatus) Terminal() bool {
	switch s {
	case ChallengeSolved, ChallengeTimedOut, ChallengeFailed:
		return true
	}
	return false
}

// CaptchaChallenge is created when a challenge is detected on a provider
// page. The token is owned by the adapter that requested it and is never
// reused for another challenge.
type CaptchaChallenge struct {
	SiteKey string          `json:"site_key"`
	PageURL string          `json:"page_url"`
	Status  ChallengeStatus `json:"status"`
	Token   string          `json:"-"`
	JobID   string          `json:"job_id,omitempty"`
	// FormAction and FormFields describe the form the token is submitted
	// through, when the challenge page carries one.
	FormAction string            `json:"form_action,omitempty"`
	FormFields map[string]string `json:"-"`
	// ResponseField is the input name the token is injected into.
	ResponseField string `json:"response_field,omitempty"`
}
