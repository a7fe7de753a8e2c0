package alert

import (
	_ "embed"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var categoriesYAML []byte

// Categories folds free-form lead types onto the canonical set.
type Categories struct {
	aliases map[string]string
}

// LoadCategories parses a canonical-name to aliases table.
func LoadCategories(data []byte) (*Categories, error) {
	var table map[string][]string
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, eris.Wrap(err, "alert: parse categories")
	}
	c := &Categories{aliases: make(map[string]string)}
	for canonical, aliases := range table {
		canonical = strings.ToLower(strings.TrimSpace(canonical))
		c.aliases[canonical] = canonical
		for _, a := range aliases {
			c.aliases[strings.ToLower(strings.TrimSpace(a))] = canonical
		}
	}
	return c, nil
}

// DefaultCategories returns the built-in table.
func DefaultCategories() *Categories {
	c, err := LoadCategories(categoriesYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Canonical maps leadType onto its canonical name. Unknown types are
// returned lowercased and trimmed; empty input yields "".
func (c *Categories) Canonical(leadType string) string {
	v := strings.ToLower(strings.TrimSpace(leadType))
	if canonical, ok := c.aliases[v]; ok {
		return canonical
	}
	return v
}
