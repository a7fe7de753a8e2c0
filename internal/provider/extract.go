package provider

import (
	"regexp"
	"strings"

	"github.com/sells-group/lead-resolver/internal/model"
)

var (
	phoneRe   = regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	emailRe   = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)
	addressRe = regexp.MustCompile(`(?i)\b\d{1,5}[ \t][\w \t.,]+?\b(Street|St|Avenue|Ave|Road|Rd|Blvd|Drive|Dr|Lane|Ln)\b\.?`)
)

// TextFacts are the contact facts found in free page text.
type TextFacts struct {
	Phones  []string
	Emails  []string
	Address string
}

// ScanText pulls phones, emails and the first street address out of the
// visible text of a page. Phones are deduplicated by digits.
func ScanText(text string) TextFacts {
	var f TextFacts
	seen := map[string]bool{}
	for _, m := range phoneRe.FindAllString(text, -1) {
		d := model.PhoneDigits(m)
		if len(d) != 10 || seen[d] {
			continue
		}
		seen[d] = true
		f.Phones = append(f.Phones, strings.TrimSpace(m))
	}

	seenEmail := map[string]bool{}
	for _, m := range emailRe.FindAllString(text, -1) {
		key := strings.ToLower(m)
		if seenEmail[key] {
			continue
		}
		seenEmail[key] = true
		f.Emails = append(f.Emails, m)
	}

	if m := addressRe.FindString(text); m != "" {
		f.Address = strings.Join(strings.Fields(m), " ")
	}
	return f
}

// UniquePhones drops entries whose digits were already seen, keeping order.
func UniquePhones(phones []model.Phone) []model.Phone {
	seen := map[string]bool{}
	out := make([]model.Phone, 0, len(phones))
	for _, p := range phones {
		d := model.PhoneDigits(p.Number)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, p)
	}
	return out
}
