package judge

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-resolver/internal/model"
	"github.com/sells-group/lead-resolver/internal/resilience"
)

const (
	nameSystemPrompt = "You are an expert at determining whether two names refer to the same person, " +
		"including nicknames and shortened versions (e.g. William and Bill, Robert and Bob). " +
		"Always explain your reasoning briefly."
	citySystemPrompt     = "You pick the geographically closest city from a provided list."
	distanceSystemPrompt = "Estimate driving distance in miles between two US cities. Return only a number (integer)."
)

// NameMatch is the name judge's answer: the candidate names (uppercase)
// that refer to the queried person, with a short rationale.
type NameMatch struct {
	Matches []string `json:"matches"`
	Reason  string   `json:"reason"`
}

func (m NameMatch) normalized() NameMatch {
	out := NameMatch{Reason: m.Reason}
	for _, name := range m.Matches {
		if n := model.NormalizeName(name); n != "" {
			out.Matches = append(out.Matches, n)
		}
	}
	return out
}

// Accepts reports whether rowName contains one of the matched names.
func (m NameMatch) Accepts(rowName string) bool {
	row := model.NormalizeName(rowName)
	for _, name := range m.Matches {
		if strings.Contains(row, name) {
			return true
		}
	}
	return false
}

// Judges is the set of fuzzy decisions the account-based provider needs.
type Judges interface {
	MatchNames(ctx context.Context, queried string, candidates []string) (NameMatch, error)
	NearestCity(ctx context.Context, city, state string, observed []string) (string, error)
	DistanceMiles(ctx context.Context, from, to, state string) (float64, error)
}

// Judge implements Judges on top of a Completer. Transport failures are
// returned; malformed answers degrade to a trivial default (no matches,
// empty city, +Inf miles) with a warning.
type Judge struct {
	completer Completer
	timeout   time.Duration
	retry     resilience.RetryConfig
}

// New creates a Judge. A zero timeout defaults to 30s per call.
func New(completer Completer, timeout time.Duration) *Judge {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger(completer.Name(), "judge")
	return &Judge{completer: completer, timeout: timeout, retry: retry}
}

func (j *Judge) ask(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	return resilience.DoVal(ctx, j.retry, func(ctx context.Context) (string, error) {
		return j.completer.Complete(ctx, system, user)
	})
}

// MatchNames asks which candidates are the queried person.
func (j *Judge) MatchNames(ctx context.Context, queried string, candidates []string) (NameMatch, error) {
	if len(candidates) == 0 {
		return NameMatch{}, nil
	}
	user := fmt.Sprintf(`Input name: "%s". Candidate names: %s.
Return a JSON object in the following format:
{"matches": [ARRAY OF MATCHING NAMES, UPPERCASE], "reason": "EXPLAIN WHY THESE NAMES MATCH OR NOT"}`,
		queried, strings.Join(candidates, ", "))

	raw, err := j.ask(ctx, nameSystemPrompt, user)
	if err != nil {
		return NameMatch{}, eris.Wrap(err, "judge: match names")
	}

	m, ok := decodeNameMatch(raw)
	if !ok {
		zap.L().Warn("judge: malformed name answer, treating as no match",
			zap.String("kind", string(model.KindParseError)),
			zap.String("raw", truncate(raw, 200)),
		)
		return NameMatch{}, nil
	}
	zap.L().Debug("judge: name match",
		zap.String("queried", queried),
		zap.Strings("matches", m.Matches),
		zap.String("reason", m.Reason),
	)
	return m, nil
}

// NearestCity asks which observed city is closest to city.
func (j *Judge) NearestCity(ctx context.Context, city, state string, observed []string) (string, error) {
	if len(observed) == 0 {
		return "", nil
	}
	user := fmt.Sprintf("Cities: %s. Original city: %s, %s. Return only the name of the closest match.",
		strings.Join(observed, ", "), city, state)

	raw, err := j.ask(ctx, citySystemPrompt, user)
	if err != nil {
		return "", eris.Wrap(err, "judge: nearest city")
	}
	suggested := decodeCity(raw)
	if suggested == "" {
		zap.L().Warn("judge: empty nearest-city answer",
			zap.String("kind", string(model.KindParseError)),
		)
	}
	return suggested, nil
}

// DistanceMiles estimates the driving distance between two cities in
// state. Unparseable answers and transport failures yield +Inf.
func (j *Judge) DistanceMiles(ctx context.Context, from, to, state string) (float64, error) {
	user := fmt.Sprintf("How many miles apart are %s, %s and %s, %s? Return only a number.", from, state, to, state)

	raw, err := j.ask(ctx, distanceSystemPrompt, user)
	if err != nil {
		return math.Inf(1), eris.Wrap(err, "judge: distance")
	}
	miles := decodeMiles(raw)
	if math.IsInf(miles, 1) {
		zap.L().Warn("judge: no number in distance answer",
			zap.String("kind", string(model.KindParseError)),
			zap.String("raw", truncate(raw, 200)),
		)
	}
	return miles, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
