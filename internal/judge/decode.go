package judge

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	fenceRe   = regexp.MustCompile("(?i)```(?:json)?")
	quotedRe  = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
	integerRe = regexp.MustCompile(`\d+`)
)

// decodeJSON decodes a model answer into T in two stages: a strict decode
// of the fence-stripped text, then a decode of the outermost {...} span.
func decodeJSON[T any](raw string) (T, bool) {
	var out T
	text := strings.TrimSpace(fenceRe.ReplaceAllString(raw, ""))
	if err := json.Unmarshal([]byte(text), &out); err == nil {
		return out, true
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		var loose T
		if err := json.Unmarshal([]byte(text[start:end+1]), &loose); err == nil {
			return loose, true
		}
	}
	return out, false
}

// decodeNameMatch parses the name judge's answer. When neither JSON stage
// succeeds it falls back to the quoted strings inside the first [...]
// span after "matches".
func decodeNameMatch(raw string) (NameMatch, bool) {
	if m, ok := decodeJSON[NameMatch](raw); ok {
		return m.normalized(), true
	}

	lower := strings.ToLower(raw)
	idx := strings.Index(lower, "matches")
	if idx < 0 {
		return NameMatch{}, false
	}
	rest := raw[idx:]
	open := strings.Index(rest, "[")
	closing := strings.Index(rest, "]")
	if open < 0 || closing < open {
		return NameMatch{}, false
	}
	var m NameMatch
	for _, q := range quotedRe.FindAllStringSubmatch(rest[open:closing], -1) {
		m.Matches = append(m.Matches, q[1])
	}
	return m.normalized(), true
}

// decodeCity cleans a free-text city answer.
func decodeCity(raw string) string {
	text := strings.TrimSpace(fenceRe.ReplaceAllString(raw, ""))
	if line, _, ok := strings.Cut(text, "\n"); ok {
		text = line
	}
	text = strings.Trim(text, " \t\"'`.")
	// "Round Rock, TX" -> "Round Rock"
	if city, _, ok := strings.Cut(text, ","); ok {
		text = city
	}
	return strings.ToUpper(strings.TrimSpace(text))
}

// decodeMiles reads the first integer in the answer; anything else is
// treated as unknown, which is +Inf.
func decodeMiles(raw string) float64 {
	m := integerRe.FindString(raw)
	if m == "" {
		return math.Inf(1)
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return math.Inf(1)
	}
	return float64(n)
}
